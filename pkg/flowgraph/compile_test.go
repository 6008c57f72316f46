package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Linear(t *testing.T) {
	compiled, err := newDocGraph().
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()

	require.NoError(t, err)
	assert.Equal(t, "a", compiled.EntryPoint())
	assert.Equal(t, []string{"a", "b"}, compiled.NodeIDs())
	assert.Equal(t, "b", compiled.Successor("a"))
	assert.Equal(t, END, compiled.Successor("b"))
	assert.Equal(t, []string{"a"}, compiled.Predecessors("b"))
	assert.False(t, compiled.IsConditional("a"))
}

func TestCompile_Loop(t *testing.T) {
	compiled, err := newDocGraph().
		AddNode("evaluate", visit("evaluate")).
		AddNode("revise", visit("revise")).
		AddConditionalEdge("evaluate", func(ctx Context, d Doc) string {
			if d.Approved {
				return END
			}
			return "revise"
		}).
		AddEdge("revise", "evaluate").
		SetEntry("evaluate").
		Compile()

	require.NoError(t, err)
	assert.True(t, compiled.IsConditional("evaluate"))
	assert.Empty(t, compiled.Successor("evaluate"))
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph[Doc, DocPatch]
		want  error
	}{
		{
			name: "no entry",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().AddNode("a", visit("a")).AddEdge("a", END)
			},
			want: ErrNoEntryPoint,
		},
		{
			name: "entry missing",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().AddNode("a", visit("a")).AddEdge("a", END).SetEntry("zzz")
			},
			want: ErrEntryNotFound,
		},
		{
			name: "edge target missing",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().AddNode("a", visit("a")).AddEdge("a", "ghost").SetEntry("a")
			},
			want: ErrNodeNotFound,
		},
		{
			name: "edge source missing",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().AddNode("a", visit("a")).AddEdge("a", END).AddEdge("ghost", "a").SetEntry("a")
			},
			want: ErrNodeNotFound,
		},
		{
			name: "two simple edges",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge("a", "b").AddEdge("a", END).AddEdge("b", END).
					SetEntry("a")
			},
			want: ErrAmbiguousEdges,
		},
		{
			name: "dead end",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge("a", END).
					SetEntry("a")
			},
			want: ErrNoOutgoingEdge,
		},
		{
			name: "no path to end",
			build: func() *Graph[Doc, DocPatch] {
				return newDocGraph().
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge("a", "b").AddEdge("b", "a").
					SetEntry("a")
			},
			want: ErrNoPathToEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := tt.build().Compile()
			assert.Nil(t, compiled)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompile_JoinsMultipleErrors(t *testing.T) {
	_, err := newDocGraph().
		AddNode("a", visit("a")).
		AddEdge("a", "ghost").
		AddEdge("nobody", END).
		Compile()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
