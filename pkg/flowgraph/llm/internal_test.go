package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaudeCLI_BuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		client   *ClaudeCLI
		req      Request
		contains []string
		excludes []string
	}{
		{
			name:     "basic request",
			client:   NewClaudeCLI(),
			req:      Request{Prompt: "Hello"},
			contains: []string{"-p", "--output-format", "json"},
			excludes: []string{"Hello", "--model", "--tools", "--json-schema"},
		},
		{
			name:     "system prompt",
			client:   NewClaudeCLI(),
			req:      Request{Prompt: "Hi", SystemPrompt: "Be terse"},
			contains: []string{"--system-prompt", "Be terse"},
		},
		{
			name:     "tier model",
			client:   NewClaudeCLI(WithTierModel(TierFast, "small-model")),
			req:      Request{Tier: TierFast},
			contains: []string{"--model", "small-model"},
		},
		{
			name:     "no model for unmapped tier",
			client:   NewClaudeCLI(WithTierModel(TierFast, "small-model")),
			req:      Request{Tier: TierHighQuality},
			excludes: []string{"--model"},
		},
		{
			name:     "schema is compacted",
			client:   NewClaudeCLI(),
			req:      Request{Schema: []byte("{\n  \"type\": \"object\"\n}")},
			contains: []string{"--json-schema", `{"type":"object"}`},
		},
		{
			name:     "tools disabled",
			client:   NewClaudeCLI(),
			req:      Request{DisableTools: true},
			contains: []string{"--tools", ""},
		},
		{
			name:     "extra args",
			client:   NewClaudeCLI(WithExtraArgs("--verbose")),
			req:      Request{},
			contains: []string{"--verbose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.client.buildArgs(tt.req, tt.req.tier())
			for _, want := range tt.contains {
				assert.Contains(t, args, want)
			}
			for _, exclude := range tt.excludes {
				assert.NotContains(t, args, exclude)
			}
		})
	}
}

func TestRequest_Attempts(t *testing.T) {
	assert.Equal(t, DefaultMaxRetries+1, Request{}.attempts())
	assert.Equal(t, 1, Request{MaxRetries: -1}.attempts())
	assert.Equal(t, 5, Request{MaxRetries: 4}.attempts())
	assert.Equal(t, TierStandard, Request{}.tier())
}

func TestClaudeCLI_TimeoutFallback(t *testing.T) {
	c := NewClaudeCLI(WithTierTimeout(TierFast, 0))
	assert.Equal(t, DefaultTimeouts[TierFast], c.Timeout(TierFast))
	assert.Equal(t, DefaultTimeouts[TierStandard], c.Timeout(Tier("unknown")))
}
