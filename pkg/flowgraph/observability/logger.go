// Package observability holds the structured logging, metrics and tracing
// helpers shared by the workflow engine and the structured-output client.
//
// Logging uses log/slog. Metrics and tracing use OpenTelemetry through the
// global providers. Everything has a no-op form; helpers accept a nil
// logger and do nothing.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run and node context to a logger.
func EnrichLogger(logger *slog.Logger, runID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a graph run or resume.
func LogRunStart(logger *slog.Logger, runID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("run_id", runID),
	)
}

// LogRunComplete logs that a run reached END.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogInterrupt logs that a run suspended at a checkpoint node.
func LogInterrupt(logger *slog.Logger, runID, nodeID, interruptType string) {
	if logger == nil {
		return
	}
	logger.Info("graph run suspended",
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.String("checkpoint", interruptType),
	)
}

// LogResume logs a resume request for a suspended run.
func LogResume(logger *slog.Logger, runID, interruptType string) {
	if logger == nil {
		return
	}
	logger.Info("graph run resuming",
		slog.String("run_id", runID),
		slog.String("checkpoint", interruptType),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a non-fatal checkpoint failure.
func LogCheckpointError(logger *slog.Logger, nodeID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogInvocation logs the outcome of one structured-output call.
func LogInvocation(logger *slog.Logger, op, tier string, attempts int, durationMs float64, err error) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("op", op),
		slog.String("tier", tier),
		slog.Int("attempts", attempts),
		slog.Float64("duration_ms", durationMs),
	}
	if err != nil {
		logger.Warn("model invocation failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Debug("model invocation completed", attrs...)
}

// TimedOperation returns a function reporting elapsed milliseconds.
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
