/*
Package template renders prompt text with ${name} placeholders.

Prompt wording is configuration: every stage ships a default text, and a
theme may replace any of them. A Set holds the defaults and produces
per-theme copies with With:

	defaults := template.MustParse("score", "Score these items for ${theme}:\n${items}")
	out, err := defaults.Render(map[string]any{
	    "theme": "journalist",
	    "items": []string{"e1: receipt", "e2: voicemail"},
	})

Only the brace form is recognized; "$40" stays literal. A placeholder with
no value is an error rather than silently left in the prompt.

Values go through Format: strings verbatim, []string as a bullet list,
fmt.Stringer via String, anything else as indented JSON.
*/
package template
