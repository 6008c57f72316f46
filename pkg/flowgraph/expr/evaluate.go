package expr

import (
	"fmt"
	"strings"
)

// Rule is a compiled boolean condition over a fixed set of variables,
// such as a curation inclusion rule ("total >= 6 and substance > 0").
// It is immutable and safe for concurrent use.
type Rule struct {
	src   string
	known []string
}

// Compile checks src against the variables it may reference. Unknown
// identifiers and dangling operators are rejected here rather than at
// match time.
func Compile(src string, known ...string) (*Rule, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty rule")
	}
	zeros := make(map[string]any, len(known))
	for _, k := range known {
		zeros[k] = 0
	}
	if _, err := evaluate(src, zeros); err != nil {
		return nil, fmt.Errorf("rule %q: %w", src, err)
	}
	return &Rule{src: src, known: known}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(src string, known ...string) *Rule {
	r, err := Compile(src, known...)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the rule source.
func (r *Rule) String() string { return r.src }

// Match evaluates the rule. Every known variable must be present in vars.
func (r *Rule) Match(vars map[string]any) (bool, error) {
	for _, k := range r.known {
		if _, ok := vars[k]; !ok {
			return false, fmt.Errorf("rule %q: %w", r.src, &UnknownVariableError{Name: k})
		}
	}
	ok, err := evaluate(r.src, vars)
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", r.src, err)
	}
	return ok, nil
}

// evaluate handles, in precedence order: "not"/"!" prefixes, "and", "or",
// binary comparisons, and finally a single truthy operand.
func evaluate(src string, vars map[string]any) (bool, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return false, fmt.Errorf("missing operand")
	}

	if rest, ok := strings.CutPrefix(src, "not "); ok {
		v, err := evaluate(rest, vars)
		return !v, err
	}
	if rest, ok := strings.CutPrefix(src, "!"); ok && !strings.HasPrefix(rest, "=") {
		v, err := evaluate(rest, vars)
		return !v, err
	}

	for _, logical := range []string{" and ", " or "} {
		left, right, found := strings.Cut(src, logical)
		if !found {
			continue
		}
		l, err := evaluate(left, vars)
		if err != nil {
			return false, err
		}
		r, err := evaluate(right, vars)
		if err != nil {
			return false, err
		}
		if logical == " and " {
			return l && r, nil
		}
		return l || r, nil
	}

	for _, op := range operators {
		left, right, found := strings.Cut(src, op.token)
		if !found {
			continue
		}
		l, err := resolve(left, vars)
		if err != nil {
			return false, err
		}
		r, err := resolve(right, vars)
		if err != nil {
			return false, err
		}
		return op.compare(l, r), nil
	}

	v, err := resolve(src, vars)
	if err != nil {
		return false, err
	}
	return isTruthy(v), nil
}
