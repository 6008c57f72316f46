package flowgraph

import "sort"

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is thread-safe and can be used concurrently for multiple
// Run() calls. The graph structure cannot be modified after compilation.
type CompiledGraph[S, P any] struct {
	reduce       Reducer[S, P]
	nodes        map[string]nodeSpec[S, P]
	next         map[string]string
	routers      map[string]RouterFunc[S]
	entryPoint   string
	predecessors map[string][]string
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S, P]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph, sorted.
func (cg *CompiledGraph[S, P]) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S, P]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// IsCheckpoint reports whether the node was added with AddCheckpoint.
func (cg *CompiledGraph[S, P]) IsCheckpoint(id string) bool {
	return cg.nodes[id].checkpoint
}

// Successor returns the simple-edge target of a node.
// Returns "" for END, unknown nodes, and nodes routed conditionally.
func (cg *CompiledGraph[S, P]) Successor(id string) string {
	return cg.next[id]
}

// Predecessors returns the node IDs that have simple edges to the given node.
func (cg *CompiledGraph[S, P]) Predecessors(id string) []string {
	return cg.predecessors[id]
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S, P]) IsConditional(id string) bool {
	_, ok := cg.routers[id]
	return ok
}
