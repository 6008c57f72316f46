package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
	"github.com/randalmurphal/casefile/pkg/flowgraph"
	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/flowgraph/template"
	"github.com/randalmurphal/casefile/pkg/schema"
)

// Node ids.
const (
	NodeInit            = "init"
	NodeCurateEvidence  = "curate_evidence"
	NodeEvidenceReview  = "evidence_review"
	NodeGenerateArcs    = "generate_arcs"
	NodeEvaluateArcs    = "evaluate_arcs"
	NodeReviseArcs      = "revise_arcs"
	NodeArcSelection    = "arc_selection"
	NodeGenerateOutline = "generate_outline"
	NodeEvaluateOutline = "evaluate_outline"
	NodeReviseOutline   = "revise_outline"
	NodeOutlineApproval = "outline_approval"
	NodeGenerateArticle = "generate_article"
	NodeEvaluateArticle = "evaluate_article"
	NodeReviseArticle   = "revise_article"
	NodeArticleApproval = "article_approval"
	NodeValidateArticle = "validate_article"
	NodeFinalize        = "finalize"
)

type cmd = flowgraph.Command[Patch]

// nodes holds the dependencies shared by every node.
type nodes struct {
	deps    Deps
	prompts *template.Set
}

func (n *nodes) theme(s State) (Theme, error) {
	return n.deps.Themes.Get(s.Theme)
}

func (n *nodes) cap(theme Theme, phase evaluator.Phase) int {
	return theme.Cap(phase, n.deps.Caps)
}

func (n *nodes) evaluator(theme Theme, logger *slog.Logger) (*evaluator.Evaluator, error) {
	return evaluator.New(n.deps.Invoker, n.deps.Validator, evaluator.Options{
		Tier:       theme.Tier("evaluation", llm.TierStandard),
		MaxRetries: n.deps.MaxRetries,
		Prompts:    pick(theme.Prompts, "evaluate", "revise"),
	}, logger)
}

func pick(m map[string]string, keys ...string) map[string]string {
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func fail(errType string, phase Phase, node, msg string, details []string) Patch {
	return Patch{
		Phase:  phasePtr(PhaseError),
		Errors: []ErrorRecord{{Type: errType, Phase: phase, Node: node, Message: msg, Details: details}},
	}
}

// contractFailure turns output that broke its schema into an error
// record. Other errors are left to the caller.
func contractFailure(ctx flowgraph.Context, s State, err error) (Patch, bool) {
	var sv *fgerrors.SchemaViolationError
	switch {
	case errors.As(err, &sv):
		ctx.Logger().Warn("output failed schema validation",
			slog.String("schema", sv.Schema),
			slog.Int("issues", len(sv.Issues)),
		)
		return fail(ErrorTypeSchemaValidation, s.Phase, ctx.NodeID(), sv.Error(), sv.Issues), true
	case errors.Is(err, llm.ErrNoStructuredOutput):
		ctx.Logger().Warn("output contained no JSON document")
		return fail(ErrorTypeSchemaValidation, s.Phase, ctx.NodeID(), err.Error(), nil), true
	}
	return Patch{}, false
}

func brief(s State, theme Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s", theme.Name)
	if theme.Description != "" {
		fmt.Fprintf(&b, " (%s)", theme.Description)
	}
	if s.Focus != "" {
		fmt.Fprintf(&b, "\nFocus: %s", s.Focus)
	}
	fmt.Fprintf(&b, "\nPeople who must appear: %s", strings.Join(s.Roster, ", "))
	return b.String()
}

// evidenceListing renders the usable evidence for prompts. Excluded
// items never appear.
func evidenceListing(b curator.Bundle) (exposed, buried []map[string]any) {
	for _, it := range b.Exposed {
		entry := map[string]any{"id": it.ID, "kind": it.Kind, "summary": it.Summary}
		if it.Content != "" {
			entry["content"] = it.Content
		}
		exposed = append(exposed, entry)
	}
	for _, it := range b.Buried {
		entry := map[string]any{"id": it.ID, "kind": it.Kind, "summary": it.Summary}
		if it.Transaction != nil {
			entry["transaction"] = it.Transaction
		}
		buried = append(buried, entry)
	}
	return exposed, buried
}

func instructions(theme Theme, phase evaluator.Phase) string {
	switch phase {
	case evaluator.PhaseArcs:
		if theme.MandatoryArcKind != "" {
			return fmt.Sprintf("Keep at least one arc of kind %q.", theme.MandatoryArcKind)
		}
	case evaluator.PhaseOutline, evaluator.PhaseArticle:
		if len(theme.RequiredSections) > 0 {
			return "Keep these section headings: " + strings.Join(theme.RequiredSections, ", ") + "."
		}
	}
	return ""
}

// generate renders a generation prompt, calls the model and checks the
// output against schemaName.
func (n *nodes) generate(ctx flowgraph.Context, theme Theme, step, schemaName string, def llm.Tier, vars map[string]any) (json.RawMessage, error) {
	set, err := n.prompts.With(pick(theme.Prompts, "arcs", "outline", "article"))
	if err != nil {
		return nil, err
	}
	prompt, err := set.Render(step, vars)
	if err != nil {
		return nil, err
	}
	schemaDoc, err := n.deps.Validator.Schema(schemaName)
	if err != nil {
		return nil, err
	}
	resp, err := n.deps.Invoker.Invoke(ctx, llm.Request{
		Op:           "generate_" + step,
		Prompt:       prompt,
		Tier:         theme.Tier(step, def),
		Schema:       schemaDoc,
		DisableTools: true,
		MaxRetries:   n.deps.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Structured) == 0 {
		return nil, fmt.Errorf("generate %s: %w", step, llm.ErrNoStructuredOutput)
	}
	if err := n.deps.Validator.Check(schemaName, resp.Structured); err != nil {
		return nil, err
	}
	return resp.Structured, nil
}

func pending(checkpointType string, payload any) *PendingCheckpoint {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &PendingCheckpoint{Type: checkpointType}
	}
	return &PendingCheckpoint{Type: checkpointType, Payload: raw}
}

func suspend(checkpointType string, payload any) cmd {
	return flowgraph.Suspend(Patch{Pending: pending(checkpointType, payload)}, checkpointType, payload)
}

// --- init and curation ---

func (n *nodes) initialize(ctx flowgraph.Context, s State) (cmd, error) {
	if _, err := n.theme(s); err != nil {
		return flowgraph.Update(fail(ErrorTypeConfiguration, s.Phase, NodeInit, err.Error(), nil)), nil
	}
	ctx.Logger().Info("run initialized",
		slog.String("theme", s.Theme),
		slog.Int("evidence", len(s.Evidence)),
		slog.Int("roster", len(s.Roster)),
	)
	return flowgraph.Update(Patch{Phase: phasePtr(PhaseCuration)}), nil
}

func (n *nodes) curate(ctx flowgraph.Context, s State) (cmd, error) {
	if s.Bundle != nil {
		ctx.Logger().Info("evidence bundle supplied, skipping curation")
		return flowgraph.Update(Patch{}), nil
	}
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	cur, err := curator.New(n.deps.Invoker, n.deps.Validator, theme.CuratorOptions(n.deps.Curation), ctx.Logger())
	if err != nil {
		return flowgraph.Update(fail(ErrorTypeConfiguration, s.Phase, NodeCurateEvidence, err.Error(), nil)), nil
	}
	b, err := cur.Curate(ctx, s.Evidence, curator.Context{Theme: theme.Name, Focus: s.Focus, Roster: s.Roster})
	if err != nil {
		return cmd{}, err
	}
	return flowgraph.Update(Patch{Bundle: &b}), nil
}

func (n *nodes) evidenceReview(ctx flowgraph.Context, s State) (cmd, error) {
	bundle := s.bundle()

	var review *EvidenceReview
	if pre := s.Approvals.EvidenceReview; pre != nil && pre.Approved {
		review = pre
	}
	if v, ok := ctx.Resolution(); ok {
		r, err := decodeResolution[EvidenceReview](CheckpointEvidenceReview, v)
		if err != nil {
			return cmd{}, err
		}
		review = &r
	}
	if review == nil {
		return suspend(CheckpointEvidenceReview, EvidenceReviewPayload{
			Exposed:  summarize(bundle.Exposed),
			Buried:   summarize(bundle.Buried),
			Excluded: bundle.Excluded,
		}), nil
	}

	if !review.Approved {
		return cmd{}, resolutionErrorf(CheckpointEvidenceReview, "the evidence bundle must be approved to continue")
	}
	rescued, err := curator.Rescue(bundle, review.RescuedIDs)
	if err != nil {
		return cmd{}, resolutionErrorf(CheckpointEvidenceReview, "%v", err)
	}
	if len(review.RescuedIDs) > 0 {
		ctx.Logger().Info("evidence rescued", slog.Int("items", len(review.RescuedIDs)))
	}
	return flowgraph.Update(Patch{Bundle: &rescued, Phase: phasePtr(PhaseArcs), ClearPending: true}), nil
}

// --- arcs ---

func (n *nodes) generateArcs(ctx flowgraph.Context, s State) (cmd, error) {
	if len(s.Arcs) > 0 {
		ctx.Logger().Info("arcs supplied, skipping generation")
		return flowgraph.Update(Patch{Phase: phasePtr(PhaseArcs)}), nil
	}
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	exposed, buried := evidenceListing(s.bundle())
	raw, err := n.generate(ctx, theme, "arcs", schema.Arcs, llm.TierStandard, map[string]any{
		"voice":          theme.Voice,
		"brief":          brief(s, theme),
		"mandatory_kind": theme.MandatoryArcKind,
		"evidence":       exposed,
		"buried":         buried,
	})
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	arcs, err := n.decodeArcs(ctx, s, raw)
	if err != nil {
		return cmd{}, err
	}
	return flowgraph.Update(Patch{Arcs: &arcs, Phase: phasePtr(PhaseArcs)}), nil
}

func (n *nodes) decodeArcs(ctx flowgraph.Context, s State, raw json.RawMessage) ([]Arc, error) {
	var set ArcSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode arcs: %w", err)
	}
	bundle := s.bundle()
	for i := range set.Arcs {
		var dropped []string
		set.Arcs[i].EvidenceIDs, dropped = withoutExcluded(bundle, set.Arcs[i].EvidenceIDs)
		logDropped(ctx, "arc "+set.Arcs[i].ID, dropped)
	}
	return set.Arcs, nil
}

func logDropped(ctx flowgraph.Context, where string, dropped []string) {
	if len(dropped) > 0 {
		ctx.Logger().Warn("dropped citations of excluded evidence",
			slog.String("in", where),
			slog.Any("ids", dropped),
		)
	}
}

func (n *nodes) evaluateArcs(ctx flowgraph.Context, s State) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	issues := arcIssues(theme, s.Roster, s.bundle(), s.Arcs)
	return n.evaluate(ctx, s, theme, evaluator.PhaseArcs, ArcSet{Arcs: s.Arcs}, issues)
}

func (n *nodes) reviseArcs(ctx flowgraph.Context, s State) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	raw, prev, err := n.revise(ctx, s, theme, evaluator.PhaseArcs, ArcSet{Arcs: s.Arcs}, schema.Arcs, "arcs", llm.TierStandard)
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	arcs, err := n.decodeArcs(ctx, s, raw)
	if err != nil {
		return cmd{}, err
	}
	phase := evaluator.PhaseArcs
	return flowgraph.Update(Patch{
		Arcs:           &arcs,
		Revise:         &phase,
		PreviousOutput: map[evaluator.Phase]json.RawMessage{phase: prev},
	}), nil
}

func (n *nodes) arcSelection(ctx flowgraph.Context, s State) (cmd, error) {
	var sel *ArcSelection
	if pre := s.Approvals.ArcSelection; pre != nil {
		sel = pre
	}
	if v, ok := ctx.Resolution(); ok {
		r, err := decodeResolution[ArcSelection](CheckpointArcSelection, v)
		if err != nil {
			return cmd{}, err
		}
		sel = &r
	}
	if sel == nil {
		payload := ArcSelectionPayload{Arcs: s.Arcs}
		if latest, ok := evaluator.Latest(s.EvaluationHistory, evaluator.PhaseArcs); ok {
			payload.Evaluation = &latest
		}
		return suspend(CheckpointArcSelection, payload), nil
	}

	if len(sel.SelectedArcIDs) == 0 {
		return cmd{}, resolutionErrorf(CheckpointArcSelection, "selectedArcIds must not be empty")
	}
	known := make(map[string]bool, len(s.Arcs))
	for _, a := range s.Arcs {
		known[a.ID] = true
	}
	seen := make(map[string]bool)
	ids := make([]string, 0, len(sel.SelectedArcIDs))
	for _, id := range sel.SelectedArcIDs {
		if !known[id] {
			return cmd{}, resolutionErrorf(CheckpointArcSelection, "unknown arc %q", id)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return flowgraph.Update(Patch{SelectedArcIDs: &ids, Phase: phasePtr(PhaseOutline), ClearPending: true}), nil
}

// --- outline ---

func (n *nodes) generateOutline(ctx flowgraph.Context, s State) (cmd, error) {
	if s.Outline != nil {
		ctx.Logger().Info("outline supplied, skipping generation")
		return flowgraph.Update(Patch{Phase: phasePtr(PhaseOutline)}), nil
	}
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	exposed, _ := evidenceListing(s.bundle())
	raw, err := n.generate(ctx, theme, "outline", schema.Outline, llm.TierStandard, map[string]any{
		"voice":    theme.Voice,
		"brief":    brief(s, theme),
		"sections": strings.Join(theme.RequiredSections, ", "),
		"arcs":     s.SelectedArcs(),
		"evidence": exposed,
	})
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	o, err := n.decodeOutline(ctx, s, raw)
	if err != nil {
		return cmd{}, err
	}
	return flowgraph.Update(Patch{Outline: o, Phase: phasePtr(PhaseOutline)}), nil
}

func (n *nodes) decodeOutline(ctx flowgraph.Context, s State, raw json.RawMessage) (*Outline, error) {
	var o Outline
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	bundle := s.bundle()
	for i := range o.Sections {
		var dropped []string
		o.Sections[i].EvidenceIDs, dropped = withoutExcluded(bundle, o.Sections[i].EvidenceIDs)
		logDropped(ctx, "section "+o.Sections[i].ID, dropped)
	}
	return &o, nil
}

func (n *nodes) evaluateOutline(ctx flowgraph.Context, s State) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	issues := outlineIssues(theme, s.Roster, s.bundle(), s.SelectedArcIDs, s.Outline)
	return n.evaluate(ctx, s, theme, evaluator.PhaseOutline, s.Outline, issues)
}

func (n *nodes) reviseOutline(ctx flowgraph.Context, s State) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	raw, prev, err := n.revise(ctx, s, theme, evaluator.PhaseOutline, s.Outline, schema.Outline, "outline", llm.TierStandard)
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	o, err := n.decodeOutline(ctx, s, raw)
	if err != nil {
		return cmd{}, err
	}
	phase := evaluator.PhaseOutline
	return flowgraph.Update(Patch{
		Outline:        o,
		Revise:         &phase,
		PreviousOutput: map[evaluator.Phase]json.RawMessage{phase: prev},
	}), nil
}

func (n *nodes) outlineApproval(ctx flowgraph.Context, s State) (cmd, error) {
	return n.approval(ctx, s, CheckpointOutlineApproval, evaluator.PhaseOutline, s.Outline, s.Approvals.OutlineApproval, PhaseArticle)
}

// --- article ---

func (n *nodes) generateArticle(ctx flowgraph.Context, s State) (cmd, error) {
	if s.Article != nil {
		ctx.Logger().Info("article supplied, skipping generation")
		return flowgraph.Update(Patch{Phase: phasePtr(PhaseArticle)}), nil
	}
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	exposed, _ := evidenceListing(s.bundle())
	raw, err := n.generate(ctx, theme, "article", schema.Article, llm.TierHighQuality, map[string]any{
		"voice":    theme.Voice,
		"brief":    brief(s, theme),
		"outline":  s.Outline,
		"evidence": exposed,
	})
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	a, err := n.decodeArticle(ctx, s, theme, raw)
	if err != nil {
		return cmd{}, err
	}
	return flowgraph.Update(Patch{Article: a, Phase: phasePtr(PhaseArticle)}), nil
}

func (n *nodes) decodeArticle(ctx flowgraph.Context, s State, theme Theme, raw json.RawMessage) (*Article, error) {
	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	if a.Byline == "" {
		a.Byline = theme.Byline
	}
	if a.GeneratedAt == "" {
		a.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	}
	bundle := s.bundle()
	for i := range a.Sections {
		var dropped []string
		a.Sections[i].EvidenceIDs, dropped = withoutExcluded(bundle, a.Sections[i].EvidenceIDs)
		logDropped(ctx, "section "+a.Sections[i].ID, dropped)
	}
	return &a, nil
}

func (n *nodes) evaluateArticle(ctx flowgraph.Context, s State) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	issues := articleIssues(theme, s.Roster, s.bundle(), s.Article)
	return n.evaluate(ctx, s, theme, evaluator.PhaseArticle, s.Article, issues)
}

func (n *nodes) reviseArticle(ctx flowgraph.Context, s State) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	raw, prev, err := n.revise(ctx, s, theme, evaluator.PhaseArticle, s.Article, schema.Article, "article", llm.TierHighQuality)
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	a, err := n.decodeArticle(ctx, s, theme, raw)
	if err != nil {
		return cmd{}, err
	}
	phase := evaluator.PhaseArticle
	return flowgraph.Update(Patch{
		Article:        a,
		Revise:         &phase,
		PreviousOutput: map[evaluator.Phase]json.RawMessage{phase: prev},
	}), nil
}

func (n *nodes) articleApproval(ctx flowgraph.Context, s State) (cmd, error) {
	return n.approval(ctx, s, CheckpointArticleApproval, evaluator.PhaseArticle, s.Article, s.Approvals.ArticleApproval, PhaseValidation)
}

func (n *nodes) validateArticle(ctx flowgraph.Context, s State) (cmd, error) {
	if s.Article == nil {
		return flowgraph.Update(fail(ErrorTypeSchemaValidation, s.Phase, NodeValidateArticle, "no article to validate", nil)), nil
	}
	if err := n.deps.Validator.Check(schema.Article, s.Article); err != nil {
		if p, ok := contractFailure(ctx, s, err); ok {
			return flowgraph.Update(p), nil
		}
		return cmd{}, err
	}
	return flowgraph.Update(Patch{}), nil
}

func (n *nodes) finalize(ctx flowgraph.Context, s State) (cmd, error) {
	ctx.Logger().Info("run complete",
		slog.Int("evaluations", len(s.EvaluationHistory)),
		slog.Any("revisions", s.Revisions),
	)
	return flowgraph.Update(Patch{Phase: phasePtr(PhaseComplete)}), nil
}

// --- shared steps ---

func (n *nodes) evaluate(ctx flowgraph.Context, s State, theme Theme, phase evaluator.Phase, doc any, issues []string) (cmd, error) {
	ev, err := n.evaluator(theme, ctx.Logger())
	if err != nil {
		return flowgraph.Update(fail(ErrorTypeConfiguration, s.Phase, ctx.NodeID(), err.Error(), nil)), nil
	}
	res, err := ev.Evaluate(ctx, evaluator.Request{
		Phase:     phase,
		Document:  doc,
		Issues:    issues,
		Revisions: s.Revisions[phase],
		Cap:       n.cap(theme, phase),
		Criteria:  theme.Criteria[phase],
		Brief:     brief(s, theme),
	})
	if p, ok := contractFailure(ctx, s, err); ok {
		return flowgraph.Update(p), nil
	}
	if err != nil {
		return cmd{}, err
	}
	return flowgraph.Update(Patch{Evaluation: &res}), nil
}

// revise asks for a targeted fix of doc using the latest evaluation's
// feedback. It returns the revised document and the previous one.
func (n *nodes) revise(ctx flowgraph.Context, s State, theme Theme, phase evaluator.Phase, doc any, schemaName, step string, def llm.Tier) (json.RawMessage, json.RawMessage, error) {
	ev, err := n.evaluator(theme, ctx.Logger())
	if err != nil {
		return nil, nil, err
	}
	prev, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s for revision: %w", phase, err)
	}
	latest, _ := evaluator.Latest(s.EvaluationHistory, phase)
	out, err := ev.Revise(ctx, evaluator.RevisionRequest{
		Phase:        phase,
		Previous:     prev,
		Feedback:     latest.Feedback,
		Advisory:     latest.Advisory,
		Schema:       schemaName,
		Brief:        brief(s, theme),
		Instructions: instructions(theme, phase),
		Tier:         theme.Tier(step, def),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := n.deps.Validator.Check(schemaName, out); err != nil {
		return nil, nil, err
	}
	ctx.Logger().Info("revision produced",
		slog.String("phase", string(phase)),
		slog.Int("revision", s.Revisions[phase]+1),
	)
	return out, prev, nil
}

// approval handles the outline and article approval checkpoints. An
// approval advances to next; a rejection with feedback below the cap is
// recorded as a human evaluation and sends the phase back to revision.
func (n *nodes) approval(ctx flowgraph.Context, s State, checkpoint string, phase evaluator.Phase, doc any, pre *Approval, next Phase) (cmd, error) {
	theme, err := n.theme(s)
	if err != nil {
		return cmd{}, err
	}
	limit := n.cap(theme, phase)
	count := s.Revisions[phase]
	latest, hasLatest := evaluator.Latest(s.EvaluationHistory, phase)

	var a *Approval
	if pre != nil && pre.Approved {
		a = pre
	}
	if v, ok := ctx.Resolution(); ok {
		r, err := decodeResolution[Approval](checkpoint, v)
		if err != nil {
			return cmd{}, err
		}
		a = &r
	}
	if a == nil {
		payload := ApprovalPayload{Document: doc, Revisions: count, Cap: limit, CanReject: count < limit}
		if hasLatest {
			payload.Evaluation = &latest
		}
		return suspend(checkpoint, payload), nil
	}

	if a.Approved {
		return flowgraph.Update(Patch{Phase: phasePtr(next), ClearPending: true}), nil
	}
	feedback := strings.TrimSpace(a.Feedback)
	if feedback == "" {
		return cmd{}, resolutionErrorf(checkpoint, "feedback is required when rejecting")
	}
	if count >= limit {
		return cmd{}, resolutionErrorf(checkpoint, "revision cap of %d reached for %s; approve or abandon the run", limit, phase)
	}
	ctx.Logger().Info("human requested revision", slog.String("phase", string(phase)))
	res := evaluator.Result{
		Phase:            phase,
		StructuralPassed: !hasLatest || latest.StructuralPassed,
		Feedback:         []string{feedback},
		Source:           evaluator.SourceHuman,
		Revision:         count,
	}
	return flowgraph.Update(Patch{Evaluation: &res, ClearPending: true}), nil
}
