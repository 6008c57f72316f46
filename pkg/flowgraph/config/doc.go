/*
Package config provides typed extraction from decoded YAML/JSON settings.

# Overview

Config wraps a map[string]any and provides accessors that return a default
when a key is missing or holds the wrong type. Keys may be dotted paths
that descend through nested maps:

	cfg, err := config.FromFile("casefile.yaml")
	if err != nil {
	    return err
	}

	worker := cfg.String("llm.worker", "claude-cli")
	fast := cfg.Duration("llm.timeouts.fast", 2*time.Minute)
	batch := cfg.Int("curation.batch_size", 8)

	themes := cfg.Section("themes") // nested Config

# Type Coercion

Duration accepts "30s"-style strings, or numbers interpreted as seconds.
Int accepts floats only when they have no fractional part.

# Environment

FromFile, FromYAML and FromJSON expand ${NAME} and ${NAME:-fallback}
before parsing, so secrets can stay out of the file:

	llm:
	  api_key: ${OPENAI_API_KEY}

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
