package pipeline

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/flowgraph/registry"
)

//go:embed themes/*.yaml
var builtinThemes embed.FS

// CurationProfile overrides curator options for a theme.
type CurationProfile struct {
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	Rule        string `yaml:"rule"`
}

// Theme is a narrative profile: voice, required structure, revision caps
// and model tiers.
type Theme struct {
	Name             string                                 `yaml:"name"`
	Description      string                                 `yaml:"description"`
	Voice            string                                 `yaml:"voice"`
	Byline           string                                 `yaml:"byline"`
	RequiredSections []string                               `yaml:"required_sections"`
	MandatoryArcKind string                                 `yaml:"mandatory_arc_kind"`
	RevisionCaps     map[evaluator.Phase]int                `yaml:"revision_caps"`
	Curation         CurationProfile                        `yaml:"curation"`
	Tiers            map[string]llm.Tier                    `yaml:"tiers"`
	Criteria         map[evaluator.Phase]evaluator.Criteria `yaml:"criteria"`
	// Prompts replace default templates by name: "arcs", "outline",
	// "article", "evaluate", "revise", "curation".
	Prompts map[string]string `yaml:"prompts"`
}

// Cap returns the theme's revision cap for phase, falling back to
// defaults and then evaluator.DefaultCaps.
func (t Theme) Cap(phase evaluator.Phase, defaults map[evaluator.Phase]int) int {
	if n, ok := t.RevisionCaps[phase]; ok && n >= 0 {
		return n
	}
	return evaluator.Cap(defaults, phase)
}

// Tier returns the model tier for a step, or def when the theme leaves it
// unset.
func (t Theme) Tier(step string, def llm.Tier) llm.Tier {
	if tier, ok := t.Tiers[step]; ok && tier != "" {
		return tier
	}
	return def
}

// CuratorOptions merges the theme's curation profile over base.
func (t Theme) CuratorOptions(base curator.Options) curator.Options {
	out := base
	if t.Curation.BatchSize > 0 {
		out.BatchSize = t.Curation.BatchSize
	}
	if t.Curation.Concurrency > 0 {
		out.Concurrency = t.Curation.Concurrency
	}
	if t.Curation.Rule != "" {
		out.Rule = t.Curation.Rule
	}
	out.Tier = t.Tier("curation", out.Tier)
	if p, ok := t.Prompts["curation"]; ok {
		out.Prompt = p
	}
	return out
}

func (t Theme) validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	for step, tier := range t.Tiers {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("tier for %s: unknown tier %q", step, tier))
		}
	}
	for phase, n := range t.RevisionCaps {
		if n < 0 {
			errs = append(errs, fmt.Errorf("revision cap for %s must not be negative", phase))
		}
	}
	return errors.Join(errs...)
}

// ParseTheme decodes a YAML theme profile.
func ParseTheme(data []byte) (Theme, error) {
	var t Theme
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Theme{}, fmt.Errorf("parse theme: %w", err)
	}
	if err := t.validate(); err != nil {
		return Theme{}, fmt.Errorf("theme %q: %w", t.Name, err)
	}
	return t, nil
}

// Catalog holds the available themes by name.
type Catalog struct {
	themes *registry.Registry[string, Theme]
}

// NewCatalog returns a catalog holding the built-in themes.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{themes: registry.New[string, Theme]("theme")}
	entries, err := builtinThemes.ReadDir("themes")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := builtinThemes.ReadFile("themes/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.Add(data); err != nil {
			return nil, fmt.Errorf("built-in %s: %w", e.Name(), err)
		}
	}
	return c, nil
}

// Add parses a theme and registers it, replacing any theme of the same name.
func (c *Catalog) Add(data []byte) error {
	t, err := ParseTheme(data)
	if err != nil {
		return err
	}
	c.themes.Register(t.Name, t)
	return nil
}

// LoadDir adds every *.yaml and *.yml file in dir.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read theme dir: %w", err)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if err := c.Add(data); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

// Get returns the named theme or a *registry.NotFoundError.
func (c *Catalog) Get(name string) (Theme, error) {
	return c.themes.Lookup(name)
}

// Names lists theme names in sorted order.
func (c *Catalog) Names() []string {
	return c.themes.Keys()
}

// Themes returns every theme sorted by name.
func (c *Catalog) Themes() []Theme {
	out := make([]Theme, 0, c.themes.Len())
	c.themes.Range(func(_ string, t Theme) bool {
		out = append(out, t)
		return true
	})
	return out
}
