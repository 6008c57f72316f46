package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/flowgraph/observability"
	"go.opentelemetry.io/otel/trace"
)

// Run executes the graph from its entry point with the given initial state.
//
// The run ends when a node routes to END, when a checkpoint node suspends,
// or on error. A suspended run is reported through Outcome.Interrupt with a
// nil error; call Resume with a resolution to continue it.
//
// On error, Outcome.State holds the state at the point of failure.
//
// With WithCheckpointing, Run refuses to restart a run ID that is currently
// suspended and returns ErrRunSuspended.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background())
//	out, err := compiled.Run(ctx, initial,
//	    flowgraph.WithCheckpointing(store),
//	    flowgraph.WithRunID("run-123"))
//	if err == nil && out.Suspended() {
//	    // show out.Interrupt.Payload to a reviewer
//	}
func (cg *CompiledGraph[S, P]) Run(ctx Context, state S, opts ...RunOption) (Outcome[S], error) {
	if ctx == nil {
		return Outcome[S]{State: state}, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.checkpointStore != nil {
		if cfg.runID == "" {
			return Outcome[S]{State: state}, ErrRunIDRequired
		}
		latest, err := checkpoint.Latest(cfg.checkpointStore, cfg.runID)
		switch {
		case err == nil && latest.Suspended():
			return Outcome[S]{State: state}, fmt.Errorf("%w: %s waiting on %q",
				ErrRunSuspended, cfg.runID, latest.Interrupt.Type)
		case err == nil:
			cfg.sequence = latest.Sequence
		case !errors.Is(err, checkpoint.ErrNotFound):
			return Outcome[S]{State: state}, &CheckpointError{NodeID: cg.entryPoint, Op: "load", Err: err}
		}
	}

	return cg.execute(ctx, state, cg.entryPoint, nil, &cfg)
}

// resumeInput carries the resolution for the first node of a resumed run.
type resumeInput struct {
	nodeID string
	value  any
}

// execute wraps the node loop with run-level logging, metrics and tracing.
func (cg *CompiledGraph[S, P]) execute(ctx Context, state S, start string, resume *resumeInput, cfg *runConfig) (out Outcome[S], runErr error) {
	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, runID)

	var tracingCtx context.Context = ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		tracingCtx, runSpan = cfg.spans.StartRunSpan(ctx, "casefile", runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	out, runErr = cg.loop(tracingCtx, ctx, state, start, runID, resume, cfg)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())
	cfg.metrics.RecordGraphRun(ctx, runErr == nil, duration)

	switch {
	case runErr != nil:
		observability.LogRunError(cfg.logger, runID, runErr, durationMs, lastNodeOf(runErr))
	case out.Suspended():
		observability.LogInterrupt(cfg.logger, runID, out.Interrupt.NodeID, out.Interrupt.Type)
		cfg.metrics.RecordInterrupt(ctx, out.Interrupt.NodeID, out.Interrupt.Type)
	default:
		observability.LogRunComplete(cfg.logger, runID, durationMs, out.Steps)
	}

	return out, runErr
}

// lastNodeOf extracts the node an error is attributed to, if any.
func lastNodeOf(err error) string {
	var (
		nodeErr   *NodeError
		panicErr  *PanicError
		limitErr  *RecursionLimitError
		cancelErr *CancellationError
		routerErr *RouterError
		cpErr     *CheckpointError
	)
	switch {
	case errors.As(err, &nodeErr):
		return nodeErr.NodeID
	case errors.As(err, &panicErr):
		return panicErr.NodeID
	case errors.As(err, &limitErr):
		return limitErr.LastNodeID
	case errors.As(err, &cancelErr):
		return cancelErr.NodeID
	case errors.As(err, &routerErr):
		return routerErr.FromNode
	case errors.As(err, &cpErr):
		return cpErr.NodeID
	}
	return ""
}

// loop runs nodes from start until END, a suspension, or an error.
// tracingCtx carries span context; ctx is the flowgraph Context.
func (cg *CompiledGraph[S, P]) loop(tracingCtx context.Context, ctx Context, state S, start, runID string, resume *resumeInput, cfg *runConfig) (Outcome[S], error) {
	current := start
	prevNode := ""
	steps := 0

	for current != END {
		if steps >= cfg.recursionLimit {
			return Outcome[S]{State: state, Steps: steps}, &RecursionLimitError{
				Limit:      cfg.recursionLimit,
				LastNodeID: current,
				State:      state,
			}
		}

		select {
		case <-ctx.Done():
			return Outcome[S]{State: state, Steps: steps}, &CancellationError{
				NodeID: current,
				State:  state,
				Cause:  ctx.Err(),
			}
		default:
		}

		var (
			resolution any
			resolving  bool
		)
		if resume != nil && steps == 0 && resume.nodeID == current {
			resolution, resolving = resume.value, true
		}

		observability.LogNodeStart(cfg.logger, current)
		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()
		cmd, err := cg.executeNode(nodeContext(ctx, current, runID, resolution, resolving), current, state)
		nodeDuration := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, err)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, err)
		}
		if err != nil {
			observability.LogNodeError(cfg.logger, current, err)
			return Outcome[S]{State: state, Steps: steps}, err
		}
		observability.LogNodeComplete(cfg.logger, current, float64(nodeDuration.Milliseconds()))
		steps++

		state = cg.reduce(state, cmd.Patch)

		if cmd.Suspended() {
			in, err := cg.suspend(ctx, cfg, current, prevNode, state, cmd.Interrupt)
			if err != nil {
				return Outcome[S]{State: state, Steps: steps}, err
			}
			return Outcome[S]{State: state, Interrupt: in, Steps: steps}, nil
		}

		next, err := cg.nextNode(nodeContext(ctx, current, runID, nil, false), state, current)
		if err != nil {
			return Outcome[S]{State: state, Steps: steps}, err
		}

		if cfg.checkpointStore != nil {
			if err := cg.saveCheckpoint(ctx, cfg, current, prevNode, state, next, nil); err != nil {
				return Outcome[S]{State: state, Steps: steps}, err
			}
		}

		prevNode = current
		current = next
	}

	return Outcome[S]{State: state, Steps: steps}, nil
}

// suspend validates and persists a suspension requested by nodeID.
// The checkpoint's NextNode is the suspending node so that Resume
// re-executes it with the resolution.
func (cg *CompiledGraph[S, P]) suspend(ctx Context, cfg *runConfig, nodeID, prevNode string, state S, in *Interrupt) (*Interrupt, error) {
	if !cg.IsCheckpoint(nodeID) {
		return nil, &NodeError{NodeID: nodeID, Op: "suspend", Err: ErrUnexpectedInterrupt}
	}
	if cfg.checkpointStore == nil {
		return nil, &NodeError{NodeID: nodeID, Op: "suspend", Err: ErrInterruptWithoutStore}
	}

	pending := &Interrupt{Type: in.Type, Payload: in.Payload, NodeID: nodeID}

	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
	}

	// A suspension that cannot be persisted cannot be resumed, so this save
	// is fatal regardless of WithCheckpointFailureFatal.
	fatal := cfg.checkpointFailureFatal
	cfg.checkpointFailureFatal = true
	defer func() { cfg.checkpointFailureFatal = fatal }()

	err = cg.saveCheckpoint(ctx, cfg, nodeID, prevNode, state, nodeID, &checkpoint.Interrupt{
		Type:    pending.Type,
		Payload: payload,
		NodeID:  nodeID,
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// saveCheckpoint persists the state after nodeID executed. The save
// fails with checkpoint.ErrConflict, fatal or not, if the run moved past
// the sequence this execution started from.
func (cg *CompiledGraph[S, P]) saveCheckpoint(ctx Context, cfg *runConfig, nodeID, prevNodeID string, state S, nextNode string, in *checkpoint.Interrupt) error {
	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{NodeID: nodeID, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, nodeID, op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fail("serialize", err)
	}

	cp := checkpoint.New(cfg.runID, nodeID, cfg.sequence+1, stateBytes, nextNode).
		WithPrevNode(prevNodeID).
		WithInterrupt(in)

	data, err := cp.Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	seq, err := cfg.checkpointStore.SaveAfter(cfg.runID, nodeID, cfg.sequence, data)
	if errors.Is(err, checkpoint.ErrConflict) {
		// Another caller advanced the run from the same checkpoint.
		return &CheckpointError{NodeID: nodeID, Op: "save", Err: err}
	}
	if err != nil {
		return fail("save", err)
	}
	cfg.sequence = seq

	observability.LogCheckpoint(cfg.logger, nodeID, len(data))
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(len(data)))
	return nil
}

// executeNode runs a single node with panic recovery.
func (cg *CompiledGraph[S, P]) executeNode(ctx Context, nodeID string, state S) (cmd Command[P], err error) {
	spec, exists := cg.nodes[nodeID]
	if !exists {
		return cmd, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			cmd = Command[P]{}
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	cmd, err = spec.fn(ctx, state)
	if err != nil {
		return Command[P]{}, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}
	return cmd, nil
}

// nextNode determines the node that follows current.
// Conditional edges take precedence over the simple edge.
func (cg *CompiledGraph[S, P]) nextNode(ctx Context, state S, current string) (string, error) {
	if router, ok := cg.routers[current]; ok {
		next := router(ctx, state)
		if next == "" {
			return "", &RouterError{FromNode: current, Returned: next, Err: ErrInvalidRouterResult}
		}
		if next != END && !cg.HasNode(next) {
			return "", &RouterError{FromNode: current, Returned: next, Err: ErrRouterTargetNotFound}
		}
		return next, nil
	}

	next, ok := cg.next[current]
	if !ok || next == "" {
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("%w: %s", ErrNoOutgoingEdge, current),
		}
	}
	return next, nil
}
