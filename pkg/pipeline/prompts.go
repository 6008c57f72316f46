package pipeline

// Default generation prompts. Themes may replace any of them by name.
const (
	ArcsPrompt = `${voice}

${brief}

Using only the evidence below, propose the narrative arcs this write-up
could follow. Each arc needs a stable id, a title, a kind, a short summary,
the ids of the evidence supporting it, and the people it involves. At least
one arc must be of kind "${mandatory_kind}". Cite only the ids listed.

Evidence:
${evidence}

Transactions with withheld content (cite by id, never invent content):
${buried}`

	OutlinePrompt = `${voice}

${brief}

Plan the write-up around the selected arcs below. The outline must contain
these sections, by heading: ${sections}
Each section lists the beats it will cover, the arc ids it advances and the
evidence ids it draws on. Cite only the ids listed.

Selected arcs:
${arcs}

Evidence:
${evidence}`

	ArticlePrompt = `${voice}

${brief}

Write the full piece from the approved outline below. Keep the outline's
section ids and headings, write each body in markdown, and list the
evidence ids each section relies on. Give the piece a title and a one
sentence dek.

Outline:
${outline}

Evidence:
${evidence}`
)

func defaultPrompts() map[string]string {
	return map[string]string{
		"arcs":    ArcsPrompt,
		"outline": OutlinePrompt,
		"article": ArticlePrompt,
	}
}
