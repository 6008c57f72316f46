package pipeline

import (
	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
)

// arcIssues runs the deterministic checks for the arcs phase.
func arcIssues(theme Theme, roster []string, bundle curator.Bundle, arcs []Arc) []string {
	var c evaluator.Checks
	if len(arcs) == 0 {
		c.Failf("no arcs were proposed")
	}

	var texts, kinds []string
	for _, a := range arcs {
		texts = append(texts, a.Title, a.Summary)
		texts = append(texts, a.Characters...)
		kinds = append(kinds, a.Kind)
		c.RequireKnownIDs("arc "+a.ID+" evidence", a.EvidenceIDs, bundle.Usable, bundle.IsExcluded)
	}
	c.RequireMentioned(roster, texts...)
	if theme.MandatoryArcKind != "" {
		c.RequirePresent("arc kind", kinds, []string{theme.MandatoryArcKind})
	}
	return c.Issues()
}

// outlineIssues runs the deterministic checks for the outline phase.
func outlineIssues(theme Theme, roster []string, bundle curator.Bundle, selected []string, o *Outline) []string {
	var c evaluator.Checks
	if o == nil {
		c.Failf("no outline was produced")
		return c.Issues()
	}

	isSelected := func(id string) bool {
		for _, s := range selected {
			if s == id {
				return true
			}
		}
		return false
	}

	var headings, texts []string
	for _, s := range o.Sections {
		headings = append(headings, s.Heading)
		texts = append(texts, s.Heading)
		texts = append(texts, s.Beats...)
		c.RequireKnownIDs("section "+s.ID+" arc", s.ArcIDs, isSelected, nil)
		c.RequireKnownIDs("section "+s.ID+" evidence", s.EvidenceIDs, bundle.Usable, bundle.IsExcluded)
	}
	c.RequirePresent("section", headings, theme.RequiredSections)
	c.RequireMentioned(roster, texts...)
	return c.Issues()
}

// articleIssues runs the deterministic checks for the article phase.
func articleIssues(theme Theme, roster []string, bundle curator.Bundle, a *Article) []string {
	var c evaluator.Checks
	if a == nil {
		c.Failf("no article was produced")
		return c.Issues()
	}

	var headings, texts []string
	for _, s := range a.Sections {
		headings = append(headings, s.Heading)
		texts = append(texts, s.Body)
		if s.Body == "" {
			c.Failf("section %s has no body", s.ID)
		}
		c.RequireKnownIDs("section "+s.ID+" evidence", s.EvidenceIDs, bundle.Usable, bundle.IsExcluded)
	}
	c.RequirePresent("section", headings, theme.RequiredSections)
	c.RequireMentioned(roster, texts...)
	return c.Issues()
}

// withoutExcluded drops references to excluded evidence so they never
// reach a later stage. It reports the dropped ids.
func withoutExcluded(bundle curator.Bundle, ids []string) ([]string, []string) {
	if len(ids) == 0 {
		return ids, nil
	}
	kept := make([]string, 0, len(ids))
	var dropped []string
	for _, id := range ids {
		if bundle.IsExcluded(id) {
			dropped = append(dropped, id)
			continue
		}
		kept = append(kept, id)
	}
	return kept, dropped
}
