package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tpl, err := Parse("greet", "Hello ${name}, meet ${other} and ${name}. Costs $40.")
	require.NoError(t, err)
	assert.Equal(t, "greet", tpl.Name())
	assert.Equal(t, []string{"name", "other"}, tpl.Vars())

	_, err = Parse("empty", "  \n")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	tpl := MustParse("greet", "Hello ${name}. Costs $40.")
	out, err := tpl.Render(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada. Costs $40.", out)
}

func TestRender_Missing(t *testing.T) {
	tpl := MustParse("greet", "${a} ${b} ${c}")
	_, err := tpl.Render(map[string]any{"b": 1})

	var undef *UndefinedVariableError
	require.True(t, errors.As(err, &undef))
	assert.Equal(t, []string{"a", "c"}, undef.Names)
	assert.Contains(t, err.Error(), "undefined variables: a, c")
}

type label string

func (l label) String() string { return "<" + string(l) + ">" }

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"list", []string{"a", "b"}, "- a\n- b"},
		{"empty list", []string{}, "(none)"},
		{"stringer", label("x"), "<x>"},
		{"int", 3, "3"},
		{"struct", struct {
			ID string `json:"id"`
		}{"e1"}, "{\n  \"id\": \"e1\"\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}

func TestSet(t *testing.T) {
	set, err := NewSet(map[string]string{
		"arcs":    "Find arcs for ${theme}",
		"outline": "Outline ${arcs}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"arcs", "outline"}, set.Names())

	themed, err := set.With(map[string]string{"arcs": "Detective arcs for ${theme}"})
	require.NoError(t, err)

	out, err := themed.Render("arcs", map[string]any{"theme": "noir"})
	require.NoError(t, err)
	assert.Equal(t, "Detective arcs for noir", out)

	out, err = set.Render("arcs", map[string]any{"theme": "noir"})
	require.NoError(t, err)
	assert.Equal(t, "Find arcs for noir", out, "overrides do not leak into the base set")

	_, err = set.With(map[string]string{"press": "x"})
	assert.Error(t, err)

	_, err = set.Render("press", nil)
	assert.Error(t, err)
}
