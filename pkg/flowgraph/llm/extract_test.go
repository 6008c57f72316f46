package llm_test

import (
	"testing"

	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantDoc    string
		wantSource llm.Source
		wantText   string
	}{
		{
			name:       "structured_output beats result text",
			raw:        `[{"type":"result","result":"{\"from\":\"result\"}","structured_output":{"from":"structured"}}]`,
			wantDoc:    `{"from":"structured"}`,
			wantSource: llm.SourceStructuredOutput,
		},
		{
			name:       "single result object",
			raw:        `{"type":"result","subtype":"success","result":"done","structured_output":{"ok":true}}`,
			wantDoc:    `{"ok":true}`,
			wantSource: llm.SourceStructuredOutput,
			wantText:   "done",
		},
		{
			name:       "null structured_output falls through to result",
			raw:        `[{"type":"result","result":"{\"n\":1}","structured_output":null}]`,
			wantDoc:    `{"n":1}`,
			wantSource: llm.SourceResultText,
		},
		{
			name:       "fenced result text",
			raw:        "[{\"type\":\"result\",\"result\":\"Here:\\n```json\\n{\\\"n\\\":2}\\n```\"}]",
			wantDoc:    `{"n":2}`,
			wantSource: llm.SourceResultText,
		},
		{
			name:       "first of several fences",
			raw:        "[{\"type\":\"result\",\"result\":\"```json\\n{\\\"first\\\":1}\\n```\\n```json\\n{\\\"second\\\":2}\\n```\"}]",
			wantDoc:    `{"first":1}`,
			wantSource: llm.SourceResultText,
		},
		{
			name: "result message wins over assistant",
			raw: `[{"type":"assistant","message":{"content":[{"type":"text","text":"{\"from\":\"assistant\"}"}]}},` +
				`{"type":"result","result":"{\"from\":\"result\"}"}]`,
			wantDoc:    `{"from":"result"}`,
			wantSource: llm.SourceResultText,
		},
		{
			name:       "assistant used when no result message",
			raw:        `[{"type":"system"},{"type":"assistant","message":{"content":[{"type":"text","text":"{\"from\":\"assistant\"}"}]}}]`,
			wantDoc:    `{"from":"assistant"}`,
			wantSource: llm.SourceAssistantText,
		},
		{
			name:       "plain JSON object",
			raw:        `{"arcs":[]}`,
			wantDoc:    `{"arcs":[]}`,
			wantSource: llm.SourceJSONObject,
		},
		{
			name:       "JSON embedded in prose",
			raw:        `Sure! {"n":3} hope that helps`,
			wantDoc:    `{"n":3}`,
			wantSource: llm.SourceEmbedded,
		},
		{
			name:       "malformed JSON returns raw text",
			raw:        `{"broken": `,
			wantSource: llm.SourceRawText,
			wantText:   `{"broken": `,
		},
		{
			name:       "result text without JSON returns raw output",
			raw:        `[{"type":"result","result":"no json here"}]`,
			wantSource: llm.SourceRawText,
			wantText:   `[{"type":"result","result":"no json here"}]`,
		},
		{
			name:       "assistant text without JSON returns raw output",
			raw:        " [{\"type\":\"assistant\",\"message\":{\"content\":[{\"type\":\"text\",\"text\":\"thinking\"}]}}]\n",
			wantSource: llm.SourceRawText,
			wantText:   " [{\"type\":\"assistant\",\"message\":{\"content\":[{\"type\":\"text\",\"text\":\"thinking\"}]}}]\n",
		},
		{
			name:       "empty output",
			raw:        "",
			wantSource: llm.SourceRawText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, doc, source := llm.Extract([]byte(tt.raw))
			assert.Equal(t, tt.wantSource, source)
			if tt.wantDoc == "" {
				assert.Nil(t, doc)
			} else {
				assert.JSONEq(t, tt.wantDoc, string(doc))
			}
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, text)
			}
		})
	}
}

func TestResponse_Decode(t *testing.T) {
	resp := &llm.Response{Structured: []byte(`{"name":"x"}`), Source: llm.SourceJSONObject}
	var v struct{ Name string }
	assert.NoError(t, resp.Decode(&v))
	assert.Equal(t, "x", v.Name)

	empty := &llm.Response{Text: "hello", Source: llm.SourceRawText}
	assert.ErrorIs(t, empty.Decode(&v), llm.ErrNoStructuredOutput)

	wrong := &llm.Response{Structured: []byte(`[1,2]`), Source: llm.SourceEmbedded}
	assert.Error(t, wrong.Decode(&v))
}

func TestTier_Valid(t *testing.T) {
	assert.True(t, llm.TierFast.Valid())
	assert.True(t, llm.TierHighQuality.Valid())
	assert.False(t, llm.Tier("turbo").Valid())
	assert.Equal(t, 5*llm.DefaultTimeouts[llm.TierFast], llm.DefaultTimeouts[llm.TierHighQuality])
}
