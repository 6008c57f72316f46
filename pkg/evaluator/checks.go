package evaluator

import (
	"fmt"
	"strings"
)

// Checks accumulates structural issues. The zero value is ready to use.
type Checks struct {
	issues []string
}

// Issues returns the accumulated issues, nil when everything passed.
func (c *Checks) Issues() []string {
	return c.issues
}

// Failf records an issue.
func (c *Checks) Failf(format string, args ...any) {
	c.issues = append(c.issues, fmt.Sprintf(format, args...))
}

// RequireMentioned checks that every entity appears, case-insensitively,
// in at least one of texts.
func (c *Checks) RequireMentioned(entities []string, texts ...string) {
	haystack := strings.ToLower(strings.Join(texts, "\n"))
	for _, e := range entities {
		if strings.TrimSpace(e) == "" {
			continue
		}
		if !strings.Contains(haystack, strings.ToLower(e)) {
			c.Failf("%s is never referenced", e)
		}
	}
}

// RequireKnownIDs checks that every reference is usable. excluded, when
// non-nil, identifies references to items that were deliberately left
// out so they get a clearer message.
func (c *Checks) RequireKnownIDs(what string, refs []string, usable func(string) bool, excluded func(string) bool) {
	seen := make(map[string]bool)
	for _, id := range refs {
		if seen[id] {
			continue
		}
		seen[id] = true
		switch {
		case usable(id):
		case excluded != nil && excluded(id):
			c.Failf("%s %s was excluded during curation and must not be cited", what, id)
		default:
			c.Failf("%s %s does not exist", what, id)
		}
	}
}

// RequirePresent checks that each wanted value occurs in have,
// case-insensitively.
func (c *Checks) RequirePresent(what string, have, want []string) {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, w := range want {
		if !set[strings.ToLower(strings.TrimSpace(w))] {
			c.Failf("missing required %s %q", what, w)
		}
	}
}
