package flowgraph

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and a read-only view of the current
// state, and return a Command carrying the patch to merge into the state.
//
// Nodes must not mutate state through shared references (slices, maps).
// The executor owns the single mutation point: it applies the returned
// patch with the graph's Reducer.
//
// Example:
//
//	func increment(ctx flowgraph.Context, s Counter) (flowgraph.Command[int], error) {
//	    return flowgraph.Update(1), nil
//	}
type NodeFunc[S, P any] func(ctx Context, state S) (Command[P], error)

// RouterFunc determines the next node based on state.
// It is used for conditional edges where the next node depends on runtime state.
//
// The router should return a valid node ID or flowgraph.END.
// Returning an empty string or an unknown node ID will cause a runtime error.
//
// Example:
//
//	func router(ctx flowgraph.Context, s State) string {
//	    if s.Done {
//	        return flowgraph.END
//	    }
//	    return "process"
//	}
type RouterFunc[S any] func(ctx Context, state S) string

// Reducer merges a node's patch into the accumulated state and returns
// the new state. Field-level overwrite is the usual behavior; accumulating
// fields (error lists, histories) append instead.
//
// Reducers must be pure: the same state and patch always yield the same
// result. This is what makes checkpoint replay deterministic.
type Reducer[S, P any] func(state S, patch P) S

// nodeSpec is the stored form of a node.
type nodeSpec[S, P any] struct {
	fn         NodeFunc[S, P]
	checkpoint bool
}
