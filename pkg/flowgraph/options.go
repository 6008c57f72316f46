package flowgraph

import (
	"log/slog"

	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/flowgraph/observability"
)

// DefaultRecursionLimit bounds node executions per Run or Resume call.
const DefaultRecursionLimit = 1000

// runConfig holds configuration for graph execution.
type runConfig struct {
	recursionLimit int

	checkpointStore        checkpoint.Store
	runID                  string
	checkpointFailureFatal bool
	sequence               int

	expectInterrupt string

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		recursionLimit:         DefaultRecursionLimit,
		checkpointFailureFatal: true,
		metrics:                observability.NoopMetrics{},
		spans:                  observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior for Run and Resume.
type RunOption func(*runConfig)

// WithRecursionLimit sets the maximum number of node executions for one
// Run or Resume call. Default: DefaultRecursionLimit.
//
// This guarantees termination when a router keeps looping. Exceeding the
// limit fails with a *RecursionLimitError wrapping ErrRecursionLimit.
func WithRecursionLimit(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.recursionLimit = n
		}
	}
}

// WithCheckpointing enables durable execution: state is saved after every
// node, and checkpoint nodes may suspend the run. Requires WithRunID.
//
// Without a store the graph runs in no-checkpoint mode; any attempt to
// suspend fails with ErrInterruptWithoutStore.
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithRunID sets the identifier checkpoints are keyed by.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpointFailureFatal controls whether failing to save a
// post-node checkpoint aborts the run. Default: true.
// Saving a suspension is always fatal on failure.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = fatal
	}
}

// WithInterruptType makes Resume fail with an *InterruptMismatchError
// unless the pending interrupt has the given type.
func WithInterruptType(interruptType string) RunOption {
	return func(c *runConfig) {
		c.expectInterrupt = interruptType
	}
}

// WithObservabilityLogger sets the logger used for run and node lifecycle logs.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics for runs, nodes and checkpoints.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run and each node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}
