// Package evaluator implements the generate, check, revise loop shared by
// the arcs, outline and article phases.
//
// A phase output first goes through cheap structural checks. Failing them
// skips the model evaluation and goes straight to revision, unless the
// phase is already at its revision cap, in which case the model still
// evaluates so the reviewer sees its feedback. Model criteria are either
// structural (they block) or advisory (they are recorded and never block).
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/flowgraph/template"
	"github.com/randalmurphal/casefile/pkg/schema"
)

// Phase is a generation phase with its own revision counter.
type Phase string

// Phases.
const (
	PhaseArcs    Phase = "arcs"
	PhaseOutline Phase = "outline"
	PhaseArticle Phase = "article"
)

// DefaultCaps are the revision caps per phase.
var DefaultCaps = map[Phase]int{
	PhaseArcs:    2,
	PhaseOutline: 3,
	PhaseArticle: 3,
}

// Source records who produced an evaluation.
type Source string

// Evaluation sources.
const (
	SourceStructural Source = "structural"
	SourceModel      Source = "model"
	SourceHuman      Source = "human"
)

// Result is one evaluation. Results are appended to the run's history and
// never modified.
type Result struct {
	Phase            Phase              `json:"phase"`
	Ready            bool               `json:"ready"`
	StructuralPassed bool               `json:"structuralPassed"`
	Feedback         []string           `json:"feedback"`
	Advisory         []string           `json:"advisory,omitempty"`
	Scores           map[string]float64 `json:"scores,omitempty"`
	Summary          string             `json:"summary,omitempty"`
	Source           Source             `json:"source"`
	// Revision is the phase's revision count when this evaluation ran.
	Revision int `json:"revision"`
}

// Criteria are the model-evaluated quality criteria for a phase.
type Criteria struct {
	Structural []string `json:"structural" yaml:"structural"`
	Advisory   []string `json:"advisory" yaml:"advisory"`
}

// Request is one evaluation.
type Request struct {
	Phase    Phase
	Document any
	// Issues are the structural check failures for Document.
	Issues    []string
	Revisions int
	Cap       int
	Criteria  Criteria
	// Brief describes the run (theme, roster, focus) for the evaluator.
	Brief string
}

// EvaluatePrompt is the default model evaluation prompt.
const EvaluatePrompt = `You are reviewing the ${phase} stage of an investigative write-up.
${brief}

Judge the document against each criterion. Structural criteria must hold
for the document to move on; advisory criteria are suggestions.

Structural criteria:
${structural}

Advisory criteria:
${advisory}

Automated checks reported:
${issues}

Return one entry per criterion with kind "structural" or "advisory",
whether it passed, and specific feedback for anything that did not.

Document:
${document}`

// RevisePrompt is the default targeted revision prompt.
const RevisePrompt = `You previously produced the ${phase} below for an investigative write-up.
${brief}

Make a targeted fix: change only what the feedback below points at and keep
every other part of the document exactly as it is, including ids.

Required fixes:
${feedback}

Optional improvements:
${advisory}

${instructions}

Previous ${phase}:
${previous}`

// Options configures an Evaluator.
type Options struct {
	Tier       llm.Tier
	MaxRetries int
	// Prompts may replace "evaluate" and "revise".
	Prompts map[string]string
}

// Evaluator runs model evaluations and targeted revisions.
type Evaluator struct {
	invoker   llm.Invoker
	validator *schema.Validator
	prompts   *template.Set
	opts      Options
	logger    *slog.Logger
}

// New creates an Evaluator.
func New(invoker llm.Invoker, validator *schema.Validator, opts Options, logger *slog.Logger) (*Evaluator, error) {
	if !validator.Has(schema.Evaluation) {
		return nil, &schema.UnknownSchemaError{Name: schema.Evaluation}
	}
	if opts.Tier == "" {
		opts.Tier = llm.TierStandard
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := template.NewSet(map[string]string{"evaluate": EvaluatePrompt, "revise": RevisePrompt})
	if err != nil {
		return nil, err
	}
	prompts, err := base.With(opts.Prompts)
	if err != nil {
		return nil, err
	}
	return &Evaluator{invoker: invoker, validator: validator, prompts: prompts, opts: opts, logger: logger}, nil
}

type modelEvaluation struct {
	Criteria []struct {
		Name     string `json:"name"`
		Kind     string `json:"kind"`
		Passed   bool   `json:"passed"`
		Feedback string `json:"feedback"`
	} `json:"criteria"`
	Scores  map[string]float64 `json:"scores"`
	Summary string             `json:"summary"`
}

// Evaluate runs the structural short circuit and, when needed, the model
// evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Result, error) {
	structuralPassed := len(req.Issues) == 0
	if !structuralPassed && req.Revisions < req.Cap {
		e.logger.Info("structural checks failed, skipping model evaluation",
			slog.String("phase", string(req.Phase)),
			slog.Int("issues", len(req.Issues)),
			slog.Int("revision", req.Revisions),
		)
		return Result{
			Phase:    req.Phase,
			Feedback: append([]string(nil), req.Issues...),
			Source:   SourceStructural,
			Revision: req.Revisions,
		}, nil
	}

	doc, err := json.MarshalIndent(req.Document, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode %s for evaluation: %w", req.Phase, err)
	}
	prompt, err := e.prompts.Render("evaluate", map[string]any{
		"phase":      string(req.Phase),
		"brief":      req.Brief,
		"structural": req.Criteria.Structural,
		"advisory":   req.Criteria.Advisory,
		"issues":     req.Issues,
		"document":   string(doc),
	})
	if err != nil {
		return Result{}, err
	}
	schemaDoc, err := e.validator.Schema(schema.Evaluation)
	if err != nil {
		return Result{}, err
	}

	resp, err := e.invoker.Invoke(ctx, llm.Request{
		Op:           "evaluate_" + string(req.Phase),
		Prompt:       prompt,
		Tier:         e.opts.Tier,
		Schema:       schemaDoc,
		DisableTools: true,
		MaxRetries:   e.opts.MaxRetries,
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Structured) == 0 {
		return Result{}, fmt.Errorf("evaluate %s: %w", req.Phase, llm.ErrNoStructuredOutput)
	}
	if err := e.validator.Check(schema.Evaluation, resp.Structured); err != nil {
		return Result{}, err
	}
	var me modelEvaluation
	if err := resp.Decode(&me); err != nil {
		return Result{}, err
	}

	res := Result{
		Phase:            req.Phase,
		StructuralPassed: structuralPassed,
		Feedback:         append([]string{}, req.Issues...),
		Scores:           me.Scores,
		Summary:          me.Summary,
		Source:           SourceModel,
		Revision:         req.Revisions,
	}
	blocked := false
	for _, c := range me.Criteria {
		if c.Passed {
			continue
		}
		note := c.Name
		if c.Feedback != "" {
			note += ": " + c.Feedback
		}
		if c.Kind == "structural" {
			blocked = true
			res.Feedback = append(res.Feedback, note)
		} else {
			res.Advisory = append(res.Advisory, note)
		}
	}
	res.Ready = structuralPassed && !blocked

	e.logger.Info("evaluation complete",
		slog.String("phase", string(req.Phase)),
		slog.Bool("ready", res.Ready),
		slog.Int("blocking", len(res.Feedback)),
		slog.Int("advisory", len(res.Advisory)),
	)
	return res, nil
}

// RevisionRequest asks for a targeted fix of a previous output.
type RevisionRequest struct {
	Phase    Phase
	Previous json.RawMessage
	Feedback []string
	Advisory []string
	// Schema is the schema the revised document must satisfy.
	Schema       string
	Brief        string
	Instructions string
	Tier         llm.Tier
}

// Revise returns the revised document. It does not validate the result;
// callers check it against the phase schema like any generated output.
func (e *Evaluator) Revise(ctx context.Context, req RevisionRequest) (json.RawMessage, error) {
	prompt, err := e.prompts.Render("revise", map[string]any{
		"phase":        string(req.Phase),
		"brief":        req.Brief,
		"feedback":     req.Feedback,
		"advisory":     req.Advisory,
		"instructions": req.Instructions,
		"previous":     req.Previous,
	})
	if err != nil {
		return nil, err
	}
	schemaDoc, err := e.validator.Schema(req.Schema)
	if err != nil {
		return nil, err
	}
	tier := req.Tier
	if tier == "" {
		tier = e.opts.Tier
	}

	resp, err := e.invoker.Invoke(ctx, llm.Request{
		Op:           "revise_" + string(req.Phase),
		Prompt:       prompt,
		Tier:         tier,
		Schema:       schemaDoc,
		DisableTools: true,
		MaxRetries:   e.opts.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Structured) == 0 {
		return nil, fmt.Errorf("revise %s: %w", req.Phase, llm.ErrNoStructuredOutput)
	}
	return resp.Structured, nil
}
