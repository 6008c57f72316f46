package flowgraph

import (
	"log/slog"
	"testing"

	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/flowgraph/observability"
	"github.com/stretchr/testify/assert"
)

func TestRunOptions(t *testing.T) {
	cfg := defaultRunConfig()
	assert.Equal(t, DefaultRecursionLimit, cfg.recursionLimit)
	assert.True(t, cfg.checkpointFailureFatal)
	assert.IsType(t, observability.NoopMetrics{}, cfg.metrics)

	store := checkpoint.NewMemoryStore()
	logger := slog.Default()
	for _, opt := range []RunOption{
		WithRecursionLimit(7),
		WithRecursionLimit(0), // ignored
		WithCheckpointing(store),
		WithRunID("run-9"),
		WithCheckpointFailureFatal(false),
		WithInterruptType("outline-approval"),
		WithObservabilityLogger(logger),
		WithTracing(true),
	} {
		opt(&cfg)
	}

	assert.Equal(t, 7, cfg.recursionLimit)
	assert.Same(t, store, cfg.checkpointStore)
	assert.Equal(t, "run-9", cfg.runID)
	assert.False(t, cfg.checkpointFailureFatal)
	assert.Equal(t, "outline-approval", cfg.expectInterrupt)
	assert.Same(t, logger, cfg.logger)
	assert.True(t, cfg.tracingEnabled)

	WithTracing(false)(&cfg)
	assert.False(t, cfg.tracingEnabled)
	assert.IsType(t, observability.NoopSpanManager{}, cfg.spans)
}
