// Package pipeline wires the curator, evaluator and structured-output
// client into the casefile workflow graph and exposes it as a Service
// with start, resume and status operations.
package pipeline

import (
	"encoding/json"
	"slices"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
)

// Phase is the run's position in the workflow.
type Phase string

// Phases in order. PhaseError is reachable from any phase and is terminal.
const (
	PhaseInit       Phase = "init"
	PhaseCuration   Phase = "curation"
	PhaseArcs       Phase = "arcs"
	PhaseOutline    Phase = "outline"
	PhaseArticle    Phase = "article"
	PhaseValidation Phase = "validation"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

var phaseRank = map[Phase]int{
	PhaseInit:       0,
	PhaseCuration:   1,
	PhaseArcs:       2,
	PhaseOutline:    3,
	PhaseArticle:    4,
	PhaseValidation: 5,
	PhaseComplete:   6,
}

// Terminal reports whether no further node runs after this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// advance returns next unless it would move backwards or leave a
// terminal phase.
func (p Phase) advance(next Phase) Phase {
	if p.Terminal() {
		return p
	}
	if next == PhaseError {
		return next
	}
	if phaseRank[next] < phaseRank[p] {
		return p
	}
	return next
}

// Arc is one candidate narrative thread.
type Arc struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Kind        string   `json:"kind"`
	Summary     string   `json:"summary"`
	EvidenceIDs []string `json:"evidenceIds"`
	Characters  []string `json:"characters"`
}

// ArcSet is the arcs phase output document.
type ArcSet struct {
	Arcs []Arc `json:"arcs"`
}

// OutlineSection is one planned section.
type OutlineSection struct {
	ID          string   `json:"id"`
	Heading     string   `json:"heading"`
	ArcIDs      []string `json:"arcIds,omitempty"`
	EvidenceIDs []string `json:"evidenceIds,omitempty"`
	Beats       []string `json:"beats"`
}

// Outline is the outline phase output document.
type Outline struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
}

// ArticleSection is one written section. Body is markdown.
type ArticleSection struct {
	ID          string   `json:"id"`
	Heading     string   `json:"heading"`
	Body        string   `json:"body"`
	EvidenceIDs []string `json:"evidenceIds,omitempty"`
}

// Article is the final content bundle handed to rendering.
type Article struct {
	Title       string           `json:"title"`
	Dek         string           `json:"dek"`
	Byline      string           `json:"byline,omitempty"`
	GeneratedAt string           `json:"generatedAt,omitempty"`
	Sections    []ArticleSection `json:"sections"`
}

// Error record types.
const (
	ErrorTypeSchemaValidation = "schema-validation"
	ErrorTypeGeneration       = "generation"
	ErrorTypeConfiguration    = "configuration"
)

// ErrorRecord is an error kept in run state.
type ErrorRecord struct {
	Type    string   `json:"type"`
	Phase   Phase    `json:"phase"`
	Node    string   `json:"node"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// PendingCheckpoint describes the checkpoint a run is waiting at.
type PendingCheckpoint struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// State is the run state threaded through the graph. Nodes never modify
// it directly; they return a Patch.
type State struct {
	RunID  string   `json:"runId"`
	Theme  string   `json:"theme"`
	Phase  Phase    `json:"phase"`
	Roster []string `json:"roster"`
	Focus  string   `json:"focus,omitempty"`

	Evidence []curator.Item  `json:"evidence,omitempty"`
	Bundle   *curator.Bundle `json:"bundle,omitempty"`

	Arcs           []Arc    `json:"arcs,omitempty"`
	SelectedArcIDs []string `json:"selectedArcIds,omitempty"`
	Outline        *Outline `json:"outline,omitempty"`
	Article        *Article `json:"article,omitempty"`

	EvaluationHistory []evaluator.Result                  `json:"evaluationHistory"`
	Revisions         map[evaluator.Phase]int             `json:"revisions"`
	PreviousOutput    map[evaluator.Phase]json.RawMessage `json:"_previousOutput,omitempty"`
	Errors            []ErrorRecord                       `json:"errors"`
	Pending           *PendingCheckpoint                  `json:"pending,omitempty"`

	// Approvals pre-resolve checkpoints for unattended runs.
	Approvals Approvals `json:"approvals"`
}

// SelectedArcs returns the selected arcs in selection order.
func (s State) SelectedArcs() []Arc {
	out := make([]Arc, 0, len(s.SelectedArcIDs))
	for _, id := range s.SelectedArcIDs {
		for _, a := range s.Arcs {
			if a.ID == id {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// bundle returns the curated bundle, or an empty one.
func (s State) bundle() curator.Bundle {
	if s.Bundle == nil {
		return curator.NewBundle()
	}
	return *s.Bundle
}

// Patch is a partial state update. Nil fields leave state unchanged.
// Evaluation and Errors append; Revise increments that phase's counter.
type Patch struct {
	Phase          *Phase
	Bundle         *curator.Bundle
	Arcs           *[]Arc
	SelectedArcIDs *[]string
	Outline        *Outline
	Article        *Article

	Evaluation     *evaluator.Result
	Revise         *evaluator.Phase
	PreviousOutput map[evaluator.Phase]json.RawMessage
	Errors         []ErrorRecord

	Pending      *PendingCheckpoint
	ClearPending bool
}

// Apply merges p into s. s is not modified; the result shares no mutable
// collections with it.
func Apply(s State, p Patch) State {
	out := s
	out.EvaluationHistory = slices.Clone(s.EvaluationHistory)
	out.Errors = slices.Clone(s.Errors)
	out.Revisions = make(map[evaluator.Phase]int, len(s.Revisions)+1)
	for k, v := range s.Revisions {
		out.Revisions[k] = v
	}
	if s.PreviousOutput != nil || p.PreviousOutput != nil {
		out.PreviousOutput = make(map[evaluator.Phase]json.RawMessage, len(s.PreviousOutput)+len(p.PreviousOutput))
		for k, v := range s.PreviousOutput {
			out.PreviousOutput[k] = v
		}
	}

	if p.Phase != nil {
		out.Phase = out.Phase.advance(*p.Phase)
	}
	if p.Bundle != nil {
		b := *p.Bundle
		out.Bundle = &b
	}
	if p.Arcs != nil {
		out.Arcs = slices.Clone(*p.Arcs)
	}
	if p.SelectedArcIDs != nil {
		out.SelectedArcIDs = slices.Clone(*p.SelectedArcIDs)
	}
	if p.Outline != nil {
		o := *p.Outline
		out.Outline = &o
	}
	if p.Article != nil {
		a := *p.Article
		out.Article = &a
	}
	if p.Evaluation != nil {
		out.EvaluationHistory = append(out.EvaluationHistory, *p.Evaluation)
	}
	if p.Revise != nil {
		out.Revisions[*p.Revise]++
	}
	for k, v := range p.PreviousOutput {
		out.PreviousOutput[k] = v
	}
	out.Errors = append(out.Errors, p.Errors...)

	switch {
	case p.Pending != nil:
		pc := *p.Pending
		out.Pending = &pc
	case p.ClearPending:
		out.Pending = nil
	}
	return out
}

func phasePtr(p Phase) *Phase { return &p }
