// Package render turns a validated article into its hand-off formats:
// a markdown document and a standalone HTML page.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/randalmurphal/casefile/pkg/pipeline"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("article").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
<header>
<h1>{{.Title}}</h1>
<p class="dek">{{.Dek}}</p>
{{- if .Byline}}
<p class="byline">{{.Byline}}</p>
{{- end}}
{{- if .GeneratedAt}}
<p class="generated"><time datetime="{{.GeneratedAt}}">{{.GeneratedAt}}</time></p>
{{- end}}
</header>
{{- range .Sections}}
<section id="{{.ID}}">
<h2>{{.Heading}}</h2>
{{.Body}}
{{- if .Sources}}
<p class="sources">Sources: {{.Sources}}</p>
{{- end}}
</section>
{{- end}}
</article>
</body>
</html>
`))

type pageSection struct {
	ID      string
	Heading string
	Body    template.HTML
	Sources string
}

type pageData struct {
	Title       string
	Dek         string
	Byline      string
	GeneratedAt string
	Sections    []pageSection
}

// HTML writes a as a standalone HTML page. Section bodies are rendered
// from markdown; raw HTML in them is not passed through.
func HTML(w io.Writer, a *pipeline.Article) error {
	if a == nil {
		return fmt.Errorf("render: no article")
	}
	data := pageData{Title: a.Title, Dek: a.Dek, Byline: a.Byline, GeneratedAt: a.GeneratedAt}
	for _, s := range a.Sections {
		var buf bytes.Buffer
		if err := md.Convert([]byte(s.Body), &buf); err != nil {
			return fmt.Errorf("render section %s: %w", s.ID, err)
		}
		data.Sections = append(data.Sections, pageSection{
			ID:      s.ID,
			Heading: s.Heading,
			Body:    template.HTML(buf.String()),
			Sources: strings.Join(s.EvidenceIDs, ", "),
		})
	}
	return page.Execute(w, data)
}

// Markdown writes a as a single markdown document.
func Markdown(w io.Writer, a *pipeline.Article) error {
	if a == nil {
		return fmt.Errorf("render: no article")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n_%s_\n", a.Title, a.Dek)
	if a.Byline != "" {
		fmt.Fprintf(&b, "\nBy %s\n", a.Byline)
	}
	for _, s := range a.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Heading, strings.TrimSpace(s.Body))
		if len(s.EvidenceIDs) > 0 {
			fmt.Fprintf(&b, "\nSources: %s\n", strings.Join(s.EvidenceIDs, ", "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
