package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/flowgraph/config"
	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/flowgraph/observability"
	"github.com/randalmurphal/casefile/pkg/schema"
)

// Worker kinds.
const (
	WorkerClaudeCLI = "claude-cli"
	WorkerOpenAI    = "openai"
)

// MemoryDB selects an in-process checkpoint store.
const MemoryDB = ":memory:"

// WorkerSettings configure the structured-output client.
type WorkerSettings struct {
	Kind           string
	Path           string
	APIKey         string
	BaseURL        string
	ScratchDir     string
	ExtraArgs      []string
	Models         map[llm.Tier]string
	Timeouts       map[llm.Tier]time.Duration
	RetryBaseDelay time.Duration
	RetryJitter    float64
	MaxRetries     int
}

// Settings is the process configuration, usually read from casefile.yaml.
type Settings struct {
	Worker         WorkerSettings
	CheckpointDB   string
	RecursionLimit int
	Metrics        bool
	Tracing        bool
	Curation       curator.Options
	Caps           map[evaluator.Phase]int
	ThemeDir       string
	Addr           string
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return SettingsFrom(config.New(nil))
}

// LoadSettings reads settings from a YAML or JSON file. An empty path
// returns DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	cfg, err := config.FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := SettingsFrom(cfg)
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SettingsFrom reads settings from cfg, filling defaults.
func SettingsFrom(cfg config.Config) Settings {
	w := cfg.Section("worker")
	ws := WorkerSettings{
		Kind:           w.String("kind", WorkerClaudeCLI),
		Path:           w.String("path", "claude"),
		APIKey:         w.String("api_key", ""),
		BaseURL:        w.String("base_url", ""),
		ScratchDir:     w.String("scratch_dir", ""),
		ExtraArgs:      w.StringSlice("extra_args", nil),
		Models:         make(map[llm.Tier]string),
		Timeouts:       make(map[llm.Tier]time.Duration),
		RetryBaseDelay: w.Duration("retry_base_delay", fgerrors.DefaultRetry.BaseDelay),
		RetryJitter:    w.Float("retry_jitter", fgerrors.DefaultRetry.Jitter),
		MaxRetries:     w.Int("max_retries", llm.DefaultMaxRetries),
	}
	for name, m := range w.StringMap("models") {
		if tier := llm.Tier(name); tier.Valid() && m != "" {
			ws.Models[tier] = m
		}
	}
	for _, tier := range []llm.Tier{llm.TierFast, llm.TierStandard, llm.TierHighQuality} {
		ws.Timeouts[tier] = w.Duration("timeouts."+string(tier), llm.DefaultTimeouts[tier])
	}

	caps := make(map[evaluator.Phase]int, len(evaluator.DefaultCaps))
	for phase, def := range evaluator.DefaultCaps {
		caps[phase] = cfg.Int("revision_caps."+string(phase), def)
	}

	return Settings{
		Worker:         ws,
		CheckpointDB:   cfg.String("checkpoint.db", "casefile.db"),
		RecursionLimit: cfg.Int("engine.recursion_limit", 200),
		Metrics:        cfg.Bool("engine.metrics", false),
		Tracing:        cfg.Bool("engine.tracing", false),
		Curation: curator.Options{
			BatchSize:   cfg.Int("curation.batch_size", 0),
			Concurrency: cfg.Int("curation.concurrency", 0),
			Rule:        cfg.String("curation.rule", ""),
			MaxRetries:  ws.MaxRetries,
		},
		Caps:     caps,
		ThemeDir: cfg.String("themes.dir", ""),
		Addr:     cfg.String("server.addr", ":8080"),
	}
}

// Validate reports settings that cannot work.
func (s Settings) Validate() error {
	switch s.Worker.Kind {
	case WorkerClaudeCLI:
	case WorkerOpenAI:
		if s.Worker.APIKey == "" {
			return fmt.Errorf("worker.api_key is required for the %s worker", WorkerOpenAI)
		}
	default:
		return fmt.Errorf("unknown worker kind %q", s.Worker.Kind)
	}
	if s.RecursionLimit < 1 {
		return fmt.Errorf("engine.recursion_limit must be positive")
	}
	if s.Worker.RetryJitter < 0 || s.Worker.RetryJitter > 1 {
		return fmt.Errorf("worker.retry_jitter must be between 0 and 1")
	}
	return nil
}

func (s Settings) retry() fgerrors.RetryConfig {
	cfg := fgerrors.DefaultRetry
	if s.Worker.RetryBaseDelay > 0 {
		cfg.BaseDelay = s.Worker.RetryBaseDelay
	}
	cfg.Jitter = s.Worker.RetryJitter
	return cfg
}

// NewInvoker builds the configured structured-output client.
func (s Settings) NewInvoker(logger *slog.Logger) (llm.Invoker, error) {
	metrics := observability.MetricsRecorder(observability.NoopMetrics{})
	if s.Metrics {
		metrics = observability.NewMetricsRecorder()
	}
	spans := observability.SpanManager(observability.NoopSpanManager{})
	if s.Tracing {
		spans = observability.NewSpanManager()
	}

	switch s.Worker.Kind {
	case WorkerOpenAI:
		retry := s.retry()
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:   s.Worker.APIKey,
			BaseURL:  s.Worker.BaseURL,
			Models:   s.Worker.Models,
			Timeouts: s.Worker.Timeouts,
			Retry:    &retry,
			Logger:   logger,
			Metrics:  metrics,
			Spans:    spans,
		})
	case WorkerClaudeCLI, "":
		opts := []llm.ClaudeOption{
			llm.WithClaudePath(s.Worker.Path),
			llm.WithRetry(s.retry()),
			llm.WithScratchRoot(s.Worker.ScratchDir),
			llm.WithExtraArgs(s.Worker.ExtraArgs...),
			llm.WithLogger(logger),
			llm.WithInstrumentation(metrics, spans),
		}
		for tier, m := range s.Worker.Models {
			opts = append(opts, llm.WithTierModel(tier, m))
		}
		for tier, d := range s.Worker.Timeouts {
			opts = append(opts, llm.WithTierTimeout(tier, d))
		}
		return llm.NewClaudeCLI(opts...), nil
	default:
		return nil, fmt.Errorf("unknown worker kind %q", s.Worker.Kind)
	}
}

// OpenStore opens the checkpoint store.
func (s Settings) OpenStore() (checkpoint.Store, error) {
	if s.CheckpointDB == "" || s.CheckpointDB == MemoryDB {
		return checkpoint.NewMemoryStore(), nil
	}
	return checkpoint.NewSQLiteStore(s.CheckpointDB)
}

// Catalog returns the built-in themes plus any found in ThemeDir.
func (s Settings) Catalog() (*Catalog, error) {
	c, err := NewCatalog()
	if err != nil {
		return nil, err
	}
	if s.ThemeDir != "" {
		if err := c.LoadDir(s.ThemeDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Deps assembles node dependencies from the settings.
func (s Settings) Deps(invoker llm.Invoker, validator *schema.Validator, themes *Catalog, logger *slog.Logger) Deps {
	return Deps{
		Invoker:    invoker,
		Validator:  validator,
		Themes:     themes,
		Curation:   s.Curation,
		Caps:       s.Caps,
		MaxRetries: s.Worker.MaxRetries,
		Logger:     logger,
	}
}

// ServiceOptions returns the run options implied by the settings.
func (s Settings) ServiceOptions(logger *slog.Logger) ServiceOptions {
	return ServiceOptions{
		RecursionLimit: s.RecursionLimit,
		Metrics:        s.Metrics,
		Tracing:        s.Tracing,
		Logger:         logger,
	}
}
