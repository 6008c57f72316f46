package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func newOpenAI(t *testing.T, handler http.HandlerFunc) *llm.OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	retry := fastRetry
	client, err := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Models:  map[llm.Tier]string{llm.TierStandard: "test-model", llm.TierFast: "fast-model"},
		Retry:   &retry,
	})
	require.NoError(t, err)
	return client
}

func TestOpenAI_Invoke(t *testing.T) {
	var captured map[string]any
	client := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody(`{"ready":true}`))
	})

	resp, err := client.Invoke(context.Background(), llm.Request{
		Op:           "evaluate_outline",
		Prompt:       "evaluate",
		SystemPrompt: "you are a strict editor",
		Tier:         llm.TierFast,
		Schema:       json.RawMessage(`{"type":"object"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, llm.SourceJSONObject, resp.Source)
	assert.JSONEq(t, `{"ready":true}`, string(resp.Structured))

	assert.Equal(t, "fast-model", captured["model"])
	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)

	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
			return
		}
		_, _ = io.WriteString(w, completionBody(`{"ok":1}`))
	})

	resp, err := client.Invoke(context.Background(), llm.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad schema"}}`)
	})

	_, err := client.Invoke(context.Background(), llm.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var httpErr *fgerrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestNewOpenAI_Validation(t *testing.T) {
	_, err := llm.NewOpenAI(llm.OpenAIConfig{Models: map[llm.Tier]string{llm.TierStandard: "m"}})
	assert.Error(t, err)

	_, err = llm.NewOpenAI(llm.OpenAIConfig{APIKey: "k"})
	assert.Error(t, err)
}
