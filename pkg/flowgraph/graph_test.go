package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGraph_NilReducerPanics(t *testing.T) {
	assert.PanicsWithValue(t, "flowgraph: reducer cannot be nil", func() {
		NewGraph[Doc, DocPatch](nil)
	})
}

func TestAddNode_Validation(t *testing.T) {
	tests := []struct {
		name string
		id   string
		fn   NodeFunc[Doc, DocPatch]
		want string
	}{
		{"empty id", "", visit("x"), "flowgraph: node ID cannot be empty"},
		{"reserved END", "END", visit("x"), "flowgraph: node ID cannot be reserved word 'END'"},
		{"reserved sentinel", "__END__", visit("x"), "flowgraph: node ID cannot be reserved word 'END'"},
		{"whitespace", "bad id", visit("x"), "flowgraph: node ID cannot contain whitespace"},
		{"nil fn", "ok", nil, "flowgraph: node function cannot be nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PanicsWithValue(t, tt.want, func() {
				newDocGraph().AddNode(tt.id, tt.fn)
			})
		})
	}
}

func TestAddNode_DuplicatePanics(t *testing.T) {
	g := newDocGraph().AddNode("a", visit("a"))
	assert.PanicsWithValue(t, "flowgraph: duplicate node ID: a", func() {
		g.AddCheckpoint("a", visit("a"))
	})
}

func TestAddConditionalEdge_NilRouterPanics(t *testing.T) {
	assert.Panics(t, func() {
		newDocGraph().AddConditionalEdge("a", nil)
	})
}

func TestAddCheckpoint_MarksNode(t *testing.T) {
	compiled, err := newDocGraph().
		AddNode("work", visit("work")).
		AddCheckpoint("gate", approvalGate("gate")).
		AddEdge("work", "gate").
		AddEdge("gate", END).
		SetEntry("work").
		Compile()
	assert.NoError(t, err)
	assert.True(t, compiled.IsCheckpoint("gate"))
	assert.False(t, compiled.IsCheckpoint("work"))
	assert.False(t, compiled.IsCheckpoint("missing"))
}
