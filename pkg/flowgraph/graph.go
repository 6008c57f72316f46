package flowgraph

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := flowgraph.NewGraph[MyState, MyPatch](MyState.Apply).
//	    AddNode("fetch", fetchNode).
//	    AddCheckpoint("approve", approveNode).
//	    AddEdge("fetch", "approve").
//	    AddEdge("approve", flowgraph.END).
//	    SetEntry("fetch")
//
//	compiled, err := graph.Compile()
type Graph[S, P any] struct {
	mu               sync.RWMutex
	reduce           Reducer[S, P]
	nodes            map[string]nodeSpec[S, P]
	edges            map[string][]string
	conditionalEdges map[string]RouterFunc[S]
	entryPoint       string
}

// NewGraph creates a new graph builder for state type S and patch type P.
// The reducer merges every node's patch into the state.
//
// Panics if reduce is nil.
func NewGraph[S, P any](reduce Reducer[S, P]) *Graph[S, P] {
	if reduce == nil {
		panic("flowgraph: reducer cannot be nil")
	}
	return &Graph[S, P]{
		reduce:           reduce,
		nodes:            make(map[string]nodeSpec[S, P]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]RouterFunc[S]),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S, P]) AddNode(id string, fn NodeFunc[S, P]) *Graph[S, P] {
	return g.addNode(id, fn, false)
}

// AddCheckpoint adds a node that may suspend the run by returning a
// Suspend command. On resume the same node is executed again with the
// resolution available through Context.Resolution.
//
// Panics under the same conditions as AddNode.
func (g *Graph[S, P]) AddCheckpoint(id string, fn NodeFunc[S, P]) *Graph[S, P] {
	return g.addNode(id, fn, true)
}

func (g *Graph[S, P]) addNode(id string, fn NodeFunc[S, P], checkpoint bool) *Graph[S, P] {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("flowgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = nodeSpec[S, P]{fn: fn, checkpoint: checkpoint}
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph[S, P]) AddEdge(from, to string) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge where a RouterFunc
// determines the next node at runtime based on state.
// Returns the graph for method chaining.
//
// A node can have either simple edges or a conditional edge, not both.
// If both are present, the conditional edge takes precedence.
func (g *Graph[S, P]) AddConditionalEdge(from string, router RouterFunc[S]) *Graph[S, P] {
	if router == nil {
		panic("flowgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = router
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S, P]) SetEntry(id string) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}
