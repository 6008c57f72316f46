package pipeline

import (
	"errors"
	"log/slog"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
	"github.com/randalmurphal/casefile/pkg/flowgraph"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/flowgraph/template"
	"github.com/randalmurphal/casefile/pkg/schema"
)

// Deps are the collaborators the workflow nodes call.
type Deps struct {
	Invoker   llm.Invoker
	Validator *schema.Validator
	Themes    *Catalog
	// Curation holds defaults under each theme's curation profile.
	Curation curator.Options
	// Caps are used for phases a theme sets no cap for.
	Caps       map[evaluator.Phase]int
	MaxRetries int
	Logger     *slog.Logger
}

func (d Deps) validate() error {
	var errs []error
	if d.Invoker == nil {
		errs = append(errs, errors.New("invoker is required"))
	}
	if d.Validator == nil {
		errs = append(errs, errors.New("validator is required"))
	}
	if d.Themes == nil {
		errs = append(errs, errors.New("theme catalog is required"))
	}
	return errors.Join(errs...)
}

// NewGraph builds and compiles the workflow graph.
//
//	init → curate_evidence → evidence_review* → generate_arcs → evaluate_arcs
//	evaluate_arcs → revise_arcs → evaluate_arcs | arc_selection*
//	arc_selection* → generate_outline → evaluate_outline
//	evaluate_outline → revise_outline | outline_approval*
//	outline_approval* → revise_outline | generate_article
//	generate_article → evaluate_article → revise_article | article_approval*
//	article_approval* → revise_article | validate_article
//	validate_article → finalize | END
//
// Checkpoint nodes are starred. Any node that records an error routes to END.
func NewGraph(deps Deps) (*flowgraph.CompiledGraph[State, Patch], error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	prompts, err := template.NewSet(defaultPrompts())
	if err != nil {
		return nil, err
	}
	n := &nodes{deps: deps, prompts: prompts}

	g := flowgraph.NewGraph[State, Patch](Apply).
		AddNode(NodeInit, n.initialize).
		AddNode(NodeCurateEvidence, n.curate).
		AddCheckpoint(NodeEvidenceReview, n.evidenceReview).
		AddNode(NodeGenerateArcs, n.generateArcs).
		AddNode(NodeEvaluateArcs, n.evaluateArcs).
		AddNode(NodeReviseArcs, n.reviseArcs).
		AddCheckpoint(NodeArcSelection, n.arcSelection).
		AddNode(NodeGenerateOutline, n.generateOutline).
		AddNode(NodeEvaluateOutline, n.evaluateOutline).
		AddNode(NodeReviseOutline, n.reviseOutline).
		AddCheckpoint(NodeOutlineApproval, n.outlineApproval).
		AddNode(NodeGenerateArticle, n.generateArticle).
		AddNode(NodeEvaluateArticle, n.evaluateArticle).
		AddNode(NodeReviseArticle, n.reviseArticle).
		AddCheckpoint(NodeArticleApproval, n.articleApproval).
		AddNode(NodeValidateArticle, n.validateArticle).
		AddNode(NodeFinalize, n.finalize)

	g.AddConditionalEdge(NodeInit, unlessError(NodeCurateEvidence)).
		AddConditionalEdge(NodeCurateEvidence, unlessError(NodeEvidenceReview)).
		AddEdge(NodeEvidenceReview, NodeGenerateArcs).
		AddConditionalEdge(NodeGenerateArcs, unlessError(NodeEvaluateArcs)).
		AddConditionalEdge(NodeEvaluateArcs, n.afterEvaluation(evaluator.PhaseArcs, NodeReviseArcs, NodeArcSelection)).
		AddConditionalEdge(NodeReviseArcs, unlessError(NodeEvaluateArcs)).
		AddEdge(NodeArcSelection, NodeGenerateOutline).
		AddConditionalEdge(NodeGenerateOutline, unlessError(NodeEvaluateOutline)).
		AddConditionalEdge(NodeEvaluateOutline, n.afterEvaluation(evaluator.PhaseOutline, NodeReviseOutline, NodeOutlineApproval)).
		AddConditionalEdge(NodeReviseOutline, unlessError(NodeEvaluateOutline)).
		AddConditionalEdge(NodeOutlineApproval, afterApproval(PhaseArticle, NodeGenerateArticle, NodeReviseOutline)).
		AddConditionalEdge(NodeGenerateArticle, unlessError(NodeEvaluateArticle)).
		AddConditionalEdge(NodeEvaluateArticle, n.afterEvaluation(evaluator.PhaseArticle, NodeReviseArticle, NodeArticleApproval)).
		AddConditionalEdge(NodeReviseArticle, unlessError(NodeEvaluateArticle)).
		AddConditionalEdge(NodeArticleApproval, afterApproval(PhaseValidation, NodeValidateArticle, NodeReviseArticle)).
		AddConditionalEdge(NodeValidateArticle, unlessError(NodeFinalize)).
		AddEdge(NodeFinalize, flowgraph.END).
		SetEntry(NodeInit)

	return g.Compile()
}

func unlessError(next string) flowgraph.RouterFunc[State] {
	return func(_ flowgraph.Context, s State) string {
		if s.Phase == PhaseError {
			return flowgraph.END
		}
		return next
	}
}

func (n *nodes) afterEvaluation(phase evaluator.Phase, revise, checkpoint string) flowgraph.RouterFunc[State] {
	return func(_ flowgraph.Context, s State) string {
		if s.Phase == PhaseError {
			return flowgraph.END
		}
		theme, _ := n.theme(s)
		if evaluator.Route(s.EvaluationHistory, phase, s.Revisions[phase], n.cap(theme, phase)) == evaluator.DecisionRevise {
			return revise
		}
		return checkpoint
	}
}

// afterApproval continues once the approval advanced the phase and sends
// a rejected document back to revision.
func afterApproval(approved Phase, next, revise string) flowgraph.RouterFunc[State] {
	return func(_ flowgraph.Context, s State) string {
		switch s.Phase {
		case PhaseError:
			return flowgraph.END
		case approved:
			return next
		}
		return revise
	}
}
