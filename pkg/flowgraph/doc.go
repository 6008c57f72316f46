/*
Package flowgraph is the durable workflow engine behind casefile: a graph of
named nodes over a shared state, with conditional routing, loops, and
checkpoint nodes that suspend a run until a human answers.

# Nodes Return Patches

Each node receives a read-only state and returns a Command carrying a patch.
The graph's Reducer is the single place where patches are merged:

	type State struct{ Count int; Log []string }
	type Patch struct{ Count *int; Log []string }

	func reduce(s State, p Patch) State {
	    if p.Count != nil {
	        s.Count = *p.Count
	    }
	    s.Log = append(s.Log, p.Log...)
	    return s
	}

	graph := flowgraph.NewGraph[State, Patch](reduce).
	    AddNode("step", func(ctx flowgraph.Context, s State) (flowgraph.Command[Patch], error) {
	        n := s.Count + 1
	        return flowgraph.Update(Patch{Count: &n, Log: []string{"step"}}), nil
	    }).
	    AddEdge("step", flowgraph.END).
	    SetEntry("step")

# Routing and Loops

A node has exactly one way out: a single simple edge or a router.
Routers return the next node ID or END. Loops are bounded by
WithRecursionLimit (default 1000 node executions per call); exceeding it
fails with a *RecursionLimitError.

# Checkpoints

Nodes added with AddCheckpoint may return Suspend. The executor merges the
patch, persists a checkpoint whose next node is the suspending node, and
returns an Outcome with Interrupt set:

	out, err := compiled.Run(ctx, state,
	    flowgraph.WithCheckpointing(store),
	    flowgraph.WithRunID("run-123"))
	if out.Suspended() {
	    // later, possibly in another process:
	    out, err = compiled.Resume(ctx, store, "run-123", answer,
	        flowgraph.WithInterruptType(out.Interrupt.Type))
	}

On resume the same node runs again and reads the answer with
Context.Resolution. Without a store, suspending fails with
ErrInterruptWithoutStore; callers that want an uninterrupted run resolve
checkpoints from state instead of suspending.

Run refuses to restart a suspended run ID (ErrRunSuspended). Resume of a
run that is not suspended continues from the checkpoint's next node, which
is how crash recovery works.

# Observability

WithObservabilityLogger, WithMetrics and WithTracing enable slog lifecycle
logs, OpenTelemetry counters and histograms, and run/node spans.

# Errors

Node failures surface as *NodeError, panics as *PanicError with a stack,
cancellation as *CancellationError, router mistakes as *RouterError and
persistence failures as *CheckpointError. All support errors.Is/As.

# Thread Safety

Graph is not safe for concurrent use during construction. CompiledGraph is
immutable and may serve concurrent Run and Resume calls for distinct run IDs.
*/
package flowgraph
