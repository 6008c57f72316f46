package llm

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// fencePattern matches a fenced code block, optionally tagged with a language.
var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)```")

// workerMessage is one element of the worker's JSON output.
type workerMessage struct {
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype,omitempty"`
	Result           *string         `json:"result,omitempty"`
	StructuredOutput json.RawMessage `json:"structured_output,omitempty"`
	IsError          bool            `json:"is_error,omitempty"`
	Message          *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message,omitempty"`
}

func (m workerMessage) assistantText() string {
	if m.Message == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range m.Message.Content {
		if c.Type == "text" || c.Type == "" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Extract normalizes raw worker output. It never fails: when no JSON
// document can be found it returns raw unmodified with SourceRawText,
// even if raw is a message list.
//
// Strategies, in order:
//  1. a result message's structured_output field
//  2. a result message's result text (first fenced block, or bare JSON)
//  3. the last assistant message's text (same parsing as 2)
//  4. the output itself as a JSON object
//  5. the first fenced block or outermost JSON object in plain text
func Extract(raw []byte) (text string, structured json.RawMessage, source Source) {
	trimmed := bytes.TrimSpace(raw)
	rawText := string(raw)

	if msgs, ok := parseMessages(trimmed); ok {
		if text, doc, src, ok := fromMessages(msgs); ok {
			return text, doc, src
		}
		return rawText, nil, SourceRawText
	}

	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return rawText, json.RawMessage(trimmed), SourceJSONObject
	}

	if doc, ok := jsonFromText(rawText); ok {
		return rawText, doc, SourceEmbedded
	}
	return rawText, nil, SourceRawText
}

// parseMessages recognizes either a JSON array of typed messages or a single
// result message object.
func parseMessages(data []byte) ([]workerMessage, bool) {
	if len(data) == 0 {
		return nil, false
	}
	switch data[0] {
	case '[':
		var msgs []workerMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, false
		}
		for _, m := range msgs {
			if m.Type != "" {
				return msgs, true
			}
		}
		return nil, false
	case '{':
		var m workerMessage
		if err := json.Unmarshal(data, &m); err != nil || m.Type != "result" {
			return nil, false
		}
		return []workerMessage{m}, true
	}
	return nil, false
}

func fromMessages(msgs []workerMessage) (string, json.RawMessage, Source, bool) {
	var result *workerMessage
	for i := range msgs {
		if msgs[i].Type == "result" {
			result = &msgs[i]
		}
	}

	if result != nil {
		if so := bytes.TrimSpace(result.StructuredOutput); len(so) > 0 && !bytes.Equal(so, []byte("null")) {
			text := ""
			if result.Result != nil {
				text = *result.Result
			}
			return text, json.RawMessage(so), SourceStructuredOutput, true
		}
		if result.Result != nil {
			if doc, ok := jsonFromText(*result.Result); ok {
				return *result.Result, doc, SourceResultText, true
			}
		}
		// A result message exists; assistant text is only consulted when
		// there is none.
		return "", nil, "", false
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type != "assistant" {
			continue
		}
		text := msgs[i].assistantText()
		if doc, ok := jsonFromText(text); ok {
			return text, doc, SourceAssistantText, true
		}
	}
	return "", nil, "", false
}

// jsonFromText finds a JSON document in free text: the first fenced block
// if there is one, else the whole text, else the outermost {...} span.
func jsonFromText(text string) (json.RawMessage, bool) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return json.RawMessage(body), true
		}
	}

	body := strings.TrimSpace(text)
	if body != "" && (body[0] == '{' || body[0] == '[') && json.Valid([]byte(body)) {
		return json.RawMessage(body), true
	}

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start >= 0 && end > start {
		candidate := body[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

func compactJSON(dst *bytes.Buffer, src []byte) error {
	return json.Compact(dst, src)
}
