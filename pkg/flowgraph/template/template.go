package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholder matches ${name}. Bare $name is never expanded, so prompt
// text can mention amounts like $40.
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Template is a parsed prompt text with ${name} placeholders.
// It is immutable and safe for concurrent use.
type Template struct {
	name string
	text string
	vars []string
}

// Parse prepares text for rendering. Empty text is rejected.
func Parse(name, text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("template %s: empty text", name)
	}
	seen := make(map[string]bool)
	var vars []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return &Template{name: name, text: text, vars: vars}, nil
}

// MustParse is Parse that panics on error, for package-level defaults.
func MustParse(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Vars returns the placeholder names in order of first appearance.
func (t *Template) Vars() []string {
	return append([]string(nil), t.vars...)
}

// Render substitutes every placeholder. Values are formatted with Format.
// Any placeholder without a value fails with *UndefinedVariableError.
func (t *Template) Render(vars map[string]any) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(t.text, func(match string) string {
		name := match[2 : len(match)-1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return Format(v)
	})
	if len(missing) > 0 {
		return "", &UndefinedVariableError{Template: t.name, Names: missing}
	}
	return out, nil
}

// Format renders a value for inclusion in a prompt: strings as-is, string
// lists as "- " bullets, Stringers via String, everything else as
// indented JSON.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		if len(val) == 0 {
			return "(none)"
		}
		return "- " + strings.Join(val, "\n- ")
	case fmt.Stringer:
		return val.String()
	case json.RawMessage:
		return string(val)
	case int, int64, float64, bool:
		return fmt.Sprint(val)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// UndefinedVariableError is returned when a placeholder has no value.
type UndefinedVariableError struct {
	Template string
	Names    []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("template %s: undefined variable: %s", e.Template, e.Names[0])
	}
	return fmt.Sprintf("template %s: undefined variables: %s", e.Template, strings.Join(e.Names, ", "))
}

// Set is a named collection of templates with per-name overrides, used
// for theme-specific prompt text.
type Set struct {
	templates map[string]*Template
}

// NewSet parses defaults into a Set.
func NewSet(defaults map[string]string) (*Set, error) {
	s := &Set{templates: make(map[string]*Template, len(defaults))}
	for name, text := range defaults {
		t, err := Parse(name, text)
		if err != nil {
			return nil, err
		}
		s.templates[name] = t
	}
	return s, nil
}

// With returns a copy of s with the given texts replacing same-named
// templates. Overrides for names s does not define are rejected.
func (s *Set) With(overrides map[string]string) (*Set, error) {
	out := &Set{templates: make(map[string]*Template, len(s.templates))}
	for k, v := range s.templates {
		out.templates[k] = v
	}
	for name, text := range overrides {
		if _, ok := s.templates[name]; !ok {
			return nil, fmt.Errorf("template %s: no such prompt", name)
		}
		t, err := Parse(name, text)
		if err != nil {
			return nil, err
		}
		out.templates[name] = t
	}
	return out, nil
}

// Names returns the template names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render renders the named template.
func (s *Set) Render(name string, vars map[string]any) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s: no such prompt", name)
	}
	return t.Render(vars)
}
