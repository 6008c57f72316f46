package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/casefile/pkg/flowgraph/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cfg := config.New(nil)
	assert.Equal(t, "x", cfg.String("anything", "x"))
	assert.Empty(t, cfg.StringMap("anything"))
}

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "journalist",
		"timeout":  "30s",
		"seconds":  90,
		"fraction": 1.5,
		"enabled":  true,
		"count":    float64(8),
		"ratio":    3,
		"tags":     []any{"a", "b"},
		"mixed":    []any{"a", 1},
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.String("name", "x"), "journalist"},
		{"string missing", cfg.String("nope", "x"), "x"},
		{"string wrong type", cfg.String("enabled", "x"), "x"},
		{"duration string", cfg.Duration("timeout", time.Second), 30 * time.Second},
		{"duration int seconds", cfg.Duration("seconds", time.Second), 90 * time.Second},
		{"duration float seconds", cfg.Duration("fraction", time.Second), 1500 * time.Millisecond},
		{"duration invalid", cfg.Duration("name", time.Second), time.Second},
		{"bool", cfg.Bool("enabled", false), true},
		{"bool wrong type", cfg.Bool("name", false), false},
		{"int from float", cfg.Int("count", 0), 8},
		{"int from fractional float", cfg.Int("fraction", 7), 7},
		{"float from int", cfg.Float("ratio", 0), 3.0},
		{"string slice", cfg.StringSlice("tags", nil), []string{"a", "b"}},
		{"string slice mixed", cfg.StringSlice("mixed", []string{"d"}), []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestDottedPaths(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
llm:
  worker: openai
  timeouts:
    fast: 1m
  models:
    fast: small
    standard: medium
    broken: 3
curation:
  batch_size: 4
`))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.String("llm.worker", ""))
	assert.Equal(t, time.Minute, cfg.Duration("llm.timeouts.fast", 0))
	assert.Equal(t, 4, cfg.Int("curation.batch_size", 8))
	assert.Equal(t, 8, cfg.Int("curation.concurrency", 8))
	assert.Equal(t, "fallback", cfg.String("llm.worker.path", "fallback"))

	models := cfg.StringMap("llm.models")
	assert.Equal(t, map[string]string{"fast": "small", "standard": "medium"}, models)

	section := cfg.Section("llm")
	assert.Equal(t, time.Minute, section.Duration("timeouts.fast", 0))
	assert.Empty(t, cfg.StringMap("llm.worker"), "not a map")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CASEFILE_TEST_KEY", "secret")

	cfg, err := config.FromYAML([]byte(`
key: ${CASEFILE_TEST_KEY}
fallback: ${CASEFILE_TEST_UNSET:-default}
empty: "${CASEFILE_TEST_UNSET}"
literal: $CASEFILE_TEST_KEY
`))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.String("key", ""))
	assert.Equal(t, "default", cfg.String("fallback", ""))
	assert.Equal(t, "", cfg.String("empty", "x"))
	assert.Equal(t, "$CASEFILE_TEST_KEY", cfg.String("literal", ""))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "casefile.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("store:\n  path: runs.db\n"), 0o600))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "runs.db", cfg.String("store.path", ""))

	jsonPath := filepath.Join(dir, "casefile.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"recursion_limit": 50}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Int("recursion_limit", 0))

	_, err = config.FromFile(filepath.Join(dir, "casefile.toml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("a: [unclosed"), 0o600))
	_, err = config.FromFile(badPath)
	assert.Error(t, err)
}
