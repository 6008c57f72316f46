package flowgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
)

// Context provides execution context to nodes.
// It extends context.Context with flowgraph-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node with updated NodeID, enriched logger and, for the node that
// is being resumed, the resolution value.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// Checkpointer returns the checkpoint store, or nil if not configured.
	Checkpointer() checkpoint.Store

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Resolution returns the value supplied to Resume when the current node
	// is the checkpoint node being resumed. ok is false otherwise.
	Resolution() (value any, ok bool)
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger        *slog.Logger
	checkpointer  checkpoint.Store
	runID         string
	nodeID        string
	resolution    any
	hasResolution bool
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// Checkpointer returns the checkpoint store.
func (c *executionContext) Checkpointer() checkpoint.Store {
	return c.checkpointer
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Resolution returns the resume value for the current node.
func (c *executionContext) Resolution() (any, bool) {
	return c.resolution, c.hasResolution
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with run_id and node_id during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCheckpointer sets the checkpoint store for the context.
func WithCheckpointer(store checkpoint.Store) ContextOption {
	return func(c *executionContext) {
		c.checkpointer = store
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID will be auto-generated.
// For checkpointing, use WithRunID() as a RunOption.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background(),
//	    flowgraph.WithLogger(myLogger),
//	    flowgraph.WithContextRunID("run-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// forNode returns a derived context for one node execution.
// The resolution is only attached when resolve is true.
func (c *executionContext) forNode(nodeID string, runID string, resolution any, resolve bool) *executionContext {
	if runID == "" {
		runID = c.runID
	}
	return &executionContext{
		Context:       c.Context,
		logger:        c.logger.With("run_id", runID, "node_id", nodeID),
		checkpointer:  c.checkpointer,
		runID:         runID,
		nodeID:        nodeID,
		resolution:    resolution,
		hasResolution: resolve,
	}
}

// nodeContext derives a node context from any Context implementation.
// Foreign implementations are passed through unchanged.
func nodeContext(ctx Context, nodeID, runID string, resolution any, resolve bool) Context {
	if ec, ok := ctx.(*executionContext); ok {
		return ec.forNode(nodeID, runID, resolution, resolve)
	}
	return ctx
}
