package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
	"github.com/randalmurphal/casefile/pkg/flowgraph/observability"
)

// OpenAI implements Invoker against a chat-completions endpoint. Tool
// access does not apply, so DisableTools is ignored.
type OpenAI struct {
	client   openai.Client
	models   map[Tier]string
	timeouts map[Tier]time.Duration
	retry    fgerrors.RetryConfig

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// OpenAIConfig configures the API worker.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Models maps each tier to a model name. Missing tiers use the
	// standard tier's model.
	Models   map[Tier]string
	Timeouts map[Tier]time.Duration
	Retry    *fgerrors.RetryConfig

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// NewOpenAI creates an API invoker.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing")
	}
	if cfg.Models[TierStandard] == "" {
		return nil, errors.New("openai model for the standard tier is required")
	}

	// Retries are driven by fgerrors.Retry, not the SDK.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	o := &OpenAI{
		client:   openai.NewClient(opts...),
		models:   cfg.Models,
		timeouts: make(map[Tier]time.Duration, len(DefaultTimeouts)),
		retry:    fgerrors.DefaultRetry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		spans:    cfg.Spans,
	}
	for tier, d := range DefaultTimeouts {
		o.timeouts[tier] = d
	}
	for tier, d := range cfg.Timeouts {
		if d > 0 {
			o.timeouts[tier] = d
		}
	}
	if cfg.Retry != nil {
		o.retry = *cfg.Retry
	}
	if o.metrics == nil {
		o.metrics = observability.NoopMetrics{}
	}
	if o.spans == nil {
		o.spans = observability.NoopSpanManager{}
	}
	return o, nil
}

func (o *OpenAI) model(tier Tier) string {
	if m := o.models[tier]; m != "" {
		return m
	}
	return o.models[TierStandard]
}

// Invoke implements Invoker.
func (o *OpenAI) Invoke(ctx context.Context, req Request) (resp *Response, err error) {
	tier := req.tier()
	if !tier.Valid() {
		return nil, fgerrors.Permanent(fmt.Errorf("unknown tier %q", tier), "invoke")
	}
	op := req.Op
	if op == "" {
		op = "invoke"
	}

	start := time.Now()
	ctx, span := o.spans.StartInvocationSpan(ctx, op, string(tier))
	attempts := 0
	defer func() {
		o.spans.EndSpanWithError(span, err)
		o.metrics.RecordInvocation(ctx, op, string(tier), attempts, time.Since(start), err)
		observability.LogInvocation(o.logger, op, string(tier), attempts, float64(time.Since(start).Milliseconds()), err)
	}()

	params := o.params(req, tier)
	timeout := o.timeouts[tier]

	cfg := o.retry
	cfg.MaxAttempts = req.attempts()
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		if o.logger != nil {
			o.logger.Warn("model request failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
	}

	out, n, err := fgerrors.Retry(ctx, cfg, func(ctx context.Context) (string, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		completion, err := o.client.Chat.Completions.New(attemptCtx, params)
		if err != nil {
			return "", classifyAPIError(ctx, attemptCtx, err, timeout)
		}
		if len(completion.Choices) == 0 {
			return "", fgerrors.Transient(errors.New("openai: empty choices"), "chat completion")
		}
		return completion.Choices[0].Message.Content, nil
	})
	if err != nil {
		return nil, newWorkerError(op, n, err)
	}

	text, doc, source := Extract([]byte(out))
	return &Response{
		Text:       text,
		Structured: doc,
		Source:     source,
		Attempts:   n,
		Duration:   time.Since(start),
	}, nil
}

func (o *OpenAI) params(req Request, tier Tier) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model(tier)),
		Messages: msgs,
	}
	if len(req.Schema) > 0 {
		name := req.Op
		if name == "" {
			name = "output"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}
	return params
}

// classifyAPIError maps SDK failures onto the shared taxonomy so the retry
// loop treats 429 and 5xx as transient.
func classifyAPIError(parent, attemptCtx context.Context, err error, timeout time.Duration) error {
	if parent.Err() != nil {
		return fgerrors.Permanent(parent.Err(), "invoke")
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &fgerrors.TimeoutError{Operation: "chat completion", Duration: timeout.String()}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &fgerrors.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Endpoint:   "chat/completions",
		}
	}
	return fgerrors.Transient(err, "chat completion")
}
