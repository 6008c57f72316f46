// Package llm is the structured-output client: it sends one prompt to a
// generative worker, waits for the answer within a tier deadline, retries
// transient failures, and normalizes whatever the worker printed into a
// JSON document.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Tier selects the model class, and with it the deadline, for a request.
type Tier string

// Model tiers.
const (
	TierFast        Tier = "fast"
	TierStandard    Tier = "standard"
	TierHighQuality Tier = "high-quality"
)

// DefaultTimeouts maps each tier to its per-attempt deadline.
// The slowest tier gets five times the fastest.
var DefaultTimeouts = map[Tier]time.Duration{
	TierFast:        2 * time.Minute,
	TierStandard:    5 * time.Minute,
	TierHighQuality: 10 * time.Minute,
}

// DefaultMaxRetries is used when a request leaves MaxRetries at zero.
const DefaultMaxRetries = 2

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := DefaultTimeouts[t]
	return ok
}

// Request is one structured-output call.
type Request struct {
	// Op names the calling operation for logs and metrics (e.g. "generate_arcs").
	Op string `json:"op,omitempty"`

	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Tier defaults to TierStandard.
	Tier Tier `json:"tier,omitempty"`

	// Schema, when set, asks the worker for output matching this JSON Schema.
	Schema json.RawMessage `json:"schema,omitempty"`

	// DisableTools runs the worker without tool access.
	DisableTools bool `json:"disable_tools,omitempty"`

	// MaxRetries is the number of retries after the first attempt.
	// Zero means DefaultMaxRetries; negative disables retries.
	MaxRetries int `json:"max_retries,omitempty"`
}

func (r Request) tier() Tier {
	if r.Tier == "" {
		return TierStandard
	}
	return r.Tier
}

func (r Request) attempts() int {
	switch {
	case r.MaxRetries < 0:
		return 1
	case r.MaxRetries == 0:
		return DefaultMaxRetries + 1
	default:
		return r.MaxRetries + 1
	}
}

// Source records which extraction strategy produced Response.Structured.
type Source string

// Extraction sources in priority order.
const (
	SourceStructuredOutput Source = "structured_output"
	SourceResultText       Source = "result"
	SourceAssistantText    Source = "assistant"
	SourceJSONObject       Source = "json"
	SourceEmbedded         Source = "embedded"
	SourceRawText          Source = "raw"
)

// Response is the normalized worker output.
type Response struct {
	// Text is the best textual answer found, or the raw output unmodified
	// when nothing better was found.
	Text string `json:"text"`

	// Structured is the extracted JSON document, nil when Source is SourceRawText.
	Structured json.RawMessage `json:"structured,omitempty"`

	Source   Source        `json:"source"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// ErrNoStructuredOutput is returned by Decode when no JSON was extracted.
var ErrNoStructuredOutput = errors.New("worker output contained no JSON document")

// Decode unmarshals the structured output into v.
func (r *Response) Decode(v any) error {
	if len(r.Structured) == 0 {
		return ErrNoStructuredOutput
	}
	if err := json.Unmarshal(r.Structured, v); err != nil {
		return fmt.Errorf("decode %s output: %w", r.Source, err)
	}
	return nil
}

// Invoker performs structured-output calls.
// Implementations must be safe for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
