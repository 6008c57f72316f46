package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
	"github.com/randalmurphal/casefile/pkg/flowgraph/observability"
	"go.opentelemetry.io/otel/attribute"
)

// ClaudeCLI implements Invoker by running the claude binary once per
// attempt. The prompt is written to stdin and stdout is read to completion.
type ClaudeCLI struct {
	path        string
	models      map[Tier]string
	timeouts    map[Tier]time.Duration
	retry       fgerrors.RetryConfig
	scratchRoot string
	extraArgs   []string

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a subprocess invoker.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:     "claude",
		models:   map[Tier]string{},
		timeouts: make(map[Tier]time.Duration, len(DefaultTimeouts)),
		retry:    fgerrors.DefaultRetry,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for tier, d := range DefaultTimeouts {
		c.timeouts[tier] = d
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the worker binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithTierModel sets the model passed with --model for a tier.
func WithTierModel(tier Tier, model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.models[tier] = model }
}

// WithTierTimeout overrides the per-attempt deadline for a tier.
func WithTierTimeout(tier Tier, d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) {
		if d > 0 {
			c.timeouts[tier] = d
		}
	}
}

// WithRetry sets the backoff policy. MaxAttempts is taken from each request.
func WithRetry(cfg fgerrors.RetryConfig) ClaudeOption {
	return func(c *ClaudeCLI) { c.retry = cfg }
}

// WithScratchRoot sets the parent directory for per-call scratch
// directories. Defaults to os.TempDir().
func WithScratchRoot(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.scratchRoot = dir }
}

// WithExtraArgs appends arguments to every invocation.
func WithExtraArgs(args ...string) ClaudeOption {
	return func(c *ClaudeCLI) { c.extraArgs = append(c.extraArgs, args...) }
}

// WithLogger sets the logger for attempt and retry logs.
func WithLogger(logger *slog.Logger) ClaudeOption {
	return func(c *ClaudeCLI) { c.logger = logger }
}

// WithInstrumentation sets the metrics recorder and span manager.
func WithInstrumentation(metrics observability.MetricsRecorder, spans observability.SpanManager) ClaudeOption {
	return func(c *ClaudeCLI) {
		if metrics != nil {
			c.metrics = metrics
		}
		if spans != nil {
			c.spans = spans
		}
	}
}

// Timeout returns the per-attempt deadline for a tier.
func (c *ClaudeCLI) Timeout(tier Tier) time.Duration {
	if d, ok := c.timeouts[tier]; ok {
		return d
	}
	return c.timeouts[TierStandard]
}

// Invoke implements Invoker.
func (c *ClaudeCLI) Invoke(ctx context.Context, req Request) (resp *Response, err error) {
	tier := req.tier()
	if !tier.Valid() {
		return nil, fgerrors.Permanent(fmt.Errorf("unknown tier %q", tier), "invoke")
	}
	op := req.Op
	if op == "" {
		op = "invoke"
	}

	start := time.Now()
	ctx, span := c.spans.StartInvocationSpan(ctx, op, string(tier))
	attempts := 0
	defer func() {
		c.spans.EndSpanWithError(span, err)
		c.metrics.RecordInvocation(ctx, op, string(tier), attempts, time.Since(start), err)
		observability.LogInvocation(c.logger, op, string(tier), attempts, float64(time.Since(start).Milliseconds()), err)
	}()

	scratch, err := os.MkdirTemp(c.scratchRoot, "casefile-"+uuid.NewString()+"-")
	if err != nil {
		return nil, fgerrors.Permanent(err, "create scratch directory")
	}
	defer os.RemoveAll(scratch)

	args := c.buildArgs(req, tier)
	timeout := c.Timeout(tier)

	cfg := c.retry
	cfg.MaxAttempts = req.attempts()
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.Warn("worker attempt failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		c.spans.AddSpanEvent(ctx, "retry", attribute.Int("attempt", attempt))
	}

	out, n, err := fgerrors.Retry(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		attempts++
		return c.runOnce(ctx, scratch, args, req.Prompt, timeout)
	})
	if err != nil {
		return nil, newWorkerError(op, n, err)
	}

	text, doc, source := Extract(out)
	return &Response{
		Text:       text,
		Structured: doc,
		Source:     source,
		Attempts:   n,
		Duration:   time.Since(start),
	}, nil
}

// runOnce executes a single attempt under its own deadline.
func (c *ClaudeCLI) runOnce(ctx context.Context, dir string, args []string, prompt string, timeout time.Duration) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(attemptCtx, c.path, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctx.Err() != nil {
		return nil, fgerrors.Permanent(ctx.Err(), "invoke")
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, &fgerrors.TimeoutError{Operation: c.path, Duration: timeout.String()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &fgerrors.ProcessError{
			Op:       "exit",
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}
	return nil, &fgerrors.ProcessError{Op: "spawn", ExitCode: -1, Err: err}
}

// buildArgs constructs worker arguments. The prompt itself goes to stdin.
func (c *ClaudeCLI) buildArgs(req Request, tier Tier) []string {
	args := []string{"-p", "--output-format", "json"}

	if model := c.models[tier]; model != "" {
		args = append(args, "--model", model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if len(req.Schema) > 0 {
		var compact bytes.Buffer
		if err := compactJSON(&compact, req.Schema); err == nil {
			args = append(args, "--json-schema", compact.String())
		} else {
			args = append(args, "--json-schema", string(req.Schema))
		}
	}
	if req.DisableTools {
		args = append(args, "--tools", "")
	}
	return append(args, c.extraArgs...)
}
