package curator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/casefile/pkg/batch"
	"github.com/randalmurphal/casefile/pkg/flowgraph/expr"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/flowgraph/template"
	"github.com/randalmurphal/casefile/pkg/schema"
)

// DefaultRule includes an item when its summed score reaches 6 of 12.
const DefaultRule = "total >= 6"

// RuleVars are the variables an inclusion rule may reference.
var RuleVars = []string{"total", "relevance", "corroboration", "thematic", "substance", "kind"}

// ScorePrompt is the default batch scoring prompt.
const ScorePrompt = `You are curating evidence for a ${theme} investigation.
${focus}
People who must be accounted for:
${roster}

Evidence already in the record:
${exposed}

Score each item below from 0 to 3 on: relevance to the investigation,
corroboration with the evidence already in the record, thematic alignment,
and weight of substantive content. Give a one-sentence rationale for each.
Return one score entry per item id, and nothing else.

Items:
${items}`

// Context is what scoring needs to know about the run.
type Context struct {
	Theme  string
	Focus  string
	Roster []string
}

// Options configures a Curator.
type Options struct {
	BatchSize   int
	Concurrency int
	// Rule decides inclusion from the score; defaults to DefaultRule.
	Rule       string
	Tier       llm.Tier
	MaxRetries int
	// Prompt overrides ScorePrompt.
	Prompt string
}

// Curator builds evidence bundles.
type Curator struct {
	invoker   llm.Invoker
	validator *schema.Validator
	rule      *expr.Rule
	prompt    *template.Template
	opts      Options
	logger    *slog.Logger
}

// New creates a Curator. The validator must have the curation-batch schema.
func New(invoker llm.Invoker, validator *schema.Validator, opts Options, logger *slog.Logger) (*Curator, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = batch.DefaultBatchSize
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = batch.DefaultConcurrency
	}
	if opts.Rule == "" {
		opts.Rule = DefaultRule
	}
	if opts.Tier == "" {
		opts.Tier = llm.TierFast
	}
	if opts.Prompt == "" {
		opts.Prompt = ScorePrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	if !validator.Has(schema.CurationBatch) {
		return nil, &schema.UnknownSchemaError{Name: schema.CurationBatch}
	}

	rule, err := expr.Compile(opts.Rule, RuleVars...)
	if err != nil {
		return nil, fmt.Errorf("inclusion rule: %w", err)
	}
	prompt, err := template.Parse("curation", opts.Prompt)
	if err != nil {
		return nil, err
	}
	return &Curator{
		invoker:   invoker,
		validator: validator,
		rule:      rule,
		prompt:    prompt,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Route applies the deterministic half of curation: disclosed items are
// exposed with their content, transaction items are buried with only
// their metadata, and everything else is returned as pending. A
// disclosed item with blank content has nothing to expose and is
// returned as pending too.
func Route(items []Item) (Bundle, []Item) {
	b := NewBundle()
	var pending []Item
	for _, it := range items {
		switch {
		case it.Disposition == DispositionDisclosed && strings.TrimSpace(it.Content) != "":
			b.Exposed = append(b.Exposed, it)
		case it.Disposition == DispositionTransaction:
			b.Buried = append(b.Buried, it.buried())
		default:
			pending = append(pending, it)
		}
	}
	return b, pending
}

// Curate routes items and scores the pending ones. Empty input returns an
// empty bundle without any model call.
//
// A batch whose scoring fails is not fatal: its items are excluded with
// the failure as rationale so a reviewer can rescue them. Cancellation of
// ctx is returned as an error.
func (c *Curator) Curate(ctx context.Context, items []Item, cc Context) (Bundle, error) {
	bundle, pending := Route(items)
	if len(pending) == 0 {
		return bundle, nil
	}

	start := time.Now()
	exposed := make([]string, 0, len(bundle.Exposed))
	for _, it := range bundle.Exposed {
		exposed = append(exposed, it.ID+": "+it.Summary)
	}

	results, err := batch.RunBatches(ctx, pending, c.opts.BatchSize, c.opts.Concurrency,
		func(ctx context.Context, index int, items []Item) ([]decision, error) {
			return c.scoreBatch(ctx, index, items, cc, exposed)
		})
	if err != nil {
		return Bundle{}, err
	}

	var included, excluded int
	for _, decisions := range results {
		for _, d := range decisions {
			if d.include {
				bundle.include(d.item)
				included++
				continue
			}
			bundle.Excluded = append(bundle.Excluded, ExcludedItem{Item: d.item, Score: d.score, Rationale: d.rationale})
			excluded++
		}
	}

	c.logger.Info("evidence curated",
		slog.Int("pending", len(pending)),
		slog.Int("included", included),
		slog.Int("excluded", excluded),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return bundle, nil
}

type decision struct {
	item      Item
	include   bool
	score     float64
	rationale string
}

type batchScores struct {
	Scores []struct {
		ID string `json:"id"`
		Score
		Rationale string `json:"rationale"`
	} `json:"scores"`
}

func (c *Curator) scoreBatch(ctx context.Context, index int, items []Item, cc Context, exposed []string) ([]decision, error) {
	scores, err := c.requestScores(ctx, items, cc, exposed)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("scoring batch failed, excluding its items",
			slog.Int("batch", index),
			slog.Int("items", len(items)),
			slog.String("error", err.Error()),
		)
		out := make([]decision, len(items))
		for i, it := range items {
			out[i] = decision{item: it, rationale: "not scored: " + err.Error()}
		}
		return out, nil
	}

	byID := make(map[string]int, len(scores.Scores))
	for i, s := range scores.Scores {
		byID[s.ID] = i
	}

	out := make([]decision, len(items))
	for i, it := range items {
		j, ok := byID[it.ID]
		if !ok {
			out[i] = decision{item: it, rationale: "not scored: missing from model output"}
			continue
		}
		s := scores.Scores[j]
		include, err := c.rule.Match(map[string]any{
			"total":         s.Total(),
			"relevance":     s.Relevance,
			"corroboration": s.Corroboration,
			"thematic":      s.Thematic,
			"substance":     s.Substance,
			"kind":          string(it.Kind),
		})
		if err != nil {
			return nil, err
		}
		out[i] = decision{item: it, include: include, score: s.Total(), rationale: s.Rationale}
	}
	return out, nil
}

func (c *Curator) requestScores(ctx context.Context, items []Item, cc Context, exposed []string) (*batchScores, error) {
	schemaDoc, err := c.validator.Schema(schema.CurationBatch)
	if err != nil {
		return nil, err
	}

	listing := make([]map[string]any, len(items))
	for i, it := range items {
		entry := map[string]any{"id": it.ID, "kind": it.Kind, "summary": it.Summary}
		if it.Content != "" {
			entry["content"] = it.Content
		}
		listing[i] = entry
	}
	prompt, err := c.prompt.Render(map[string]any{
		"theme":   cc.Theme,
		"focus":   cc.Focus,
		"roster":  cc.Roster,
		"exposed": exposed,
		"items":   listing,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.invoker.Invoke(ctx, llm.Request{
		Op:           "curate_evidence",
		Prompt:       prompt,
		Tier:         c.opts.Tier,
		Schema:       schemaDoc,
		DisableTools: true,
		MaxRetries:   c.opts.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Structured) == 0 {
		return nil, llm.ErrNoStructuredOutput
	}
	if err := c.validator.Check(schema.CurationBatch, resp.Structured); err != nil {
		return nil, err
	}
	var out batchScores
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rescue moves excluded items back into the bundle by their nature.
// Transaction items are stripped to metadata as if routed directly.
// Unknown or non-excluded ids are an error and leave b unchanged.
func Rescue(b Bundle, ids []string) (Bundle, error) {
	if len(ids) == 0 {
		return b, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !b.IsExcluded(id) {
			return b, fmt.Errorf("cannot rescue %q: not an excluded item", id)
		}
		want[id] = true
	}

	out := Bundle{
		Exposed:  append([]Item{}, b.Exposed...),
		Buried:   append([]Item{}, b.Buried...),
		Excluded: make([]ExcludedItem, 0, len(b.Excluded)),
	}
	for _, ex := range b.Excluded {
		if want[ex.Item.ID] {
			out.include(ex.Item)
			continue
		}
		out.Excluded = append(out.Excluded, ex)
	}
	return out, nil
}
