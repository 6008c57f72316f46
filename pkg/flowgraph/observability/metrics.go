package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine and model-invocation metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records the end of a Run or Resume call.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)

	// RecordInterrupt records a run suspending at a checkpoint node.
	RecordInterrupt(ctx context.Context, nodeID, interruptType string)

	// RecordInvocation records one structured-output call, including retries.
	RecordInvocation(ctx context.Context, op, tier string, attempts int, duration time.Duration, err error)
}

type otelMetrics struct {
	nodeExecutions     metric.Int64Counter
	nodeLatency        metric.Float64Histogram
	nodeErrors         metric.Int64Counter
	graphRuns          metric.Int64Counter
	graphLatency       metric.Float64Histogram
	checkpointSize     metric.Int64Histogram
	interrupts         metric.Int64Counter
	invocations        metric.Int64Counter
	invocationLatency  metric.Float64Histogram
	invocationAttempts metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("casefile")
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("casefile.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("casefile.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("casefile.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}
	if m.graphRuns, err = meter.Int64Counter("casefile.graph.runs",
		metric.WithDescription("Number of Run and Resume calls"),
	); err != nil {
		return nil, err
	}
	if m.graphLatency, err = meter.Float64Histogram("casefile.graph.latency_ms",
		metric.WithDescription("Run and Resume latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("casefile.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.interrupts, err = meter.Int64Counter("casefile.graph.interrupts",
		metric.WithDescription("Number of runs suspended at a checkpoint"),
	); err != nil {
		return nil, err
	}
	if m.invocations, err = meter.Int64Counter("casefile.llm.invocations",
		metric.WithDescription("Number of structured-output calls"),
	); err != nil {
		return nil, err
	}
	if m.invocationLatency, err = meter.Float64Histogram("casefile.llm.latency_ms",
		metric.WithDescription("Structured-output call latency in milliseconds, retries included"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.invocationAttempts, err = meter.Int64Histogram("casefile.llm.attempts",
		metric.WithDescription("Attempts used per structured-output call"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider; set it with
// otel.SetMeterProvider before calling this function.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

func (m *otelMetrics) RecordInterrupt(ctx context.Context, nodeID, interruptType string) {
	m.interrupts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("checkpoint", interruptType),
	))
}

func (m *otelMetrics) RecordInvocation(ctx context.Context, op, tier string, attempts int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("tier", tier),
		attribute.Bool("success", err == nil),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.invocationLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.invocationAttempts.Record(ctx, int64(attempts), attrs)
}
