package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
)

// Checkpoint types.
const (
	CheckpointEvidenceReview  = "evidence-review"
	CheckpointArcSelection    = "arc-selection"
	CheckpointOutlineApproval = "outline-approval"
	CheckpointArticleApproval = "article-approval"
)

// CheckpointTypes lists the checkpoint types in workflow order.
var CheckpointTypes = []string{
	CheckpointEvidenceReview,
	CheckpointArcSelection,
	CheckpointOutlineApproval,
	CheckpointArticleApproval,
}

// EvidenceReview resolves the evidence-review checkpoint. RescuedIDs
// moves excluded items back into the bundle.
type EvidenceReview struct {
	Approved   bool     `json:"approved"`
	RescuedIDs []string `json:"rescuedIds,omitempty"`
}

// ArcSelection resolves the arc-selection checkpoint.
type ArcSelection struct {
	SelectedArcIDs []string `json:"selectedArcIds"`
}

// Approval resolves the outline and article approval checkpoints.
// Feedback is required when Approved is false.
type Approval struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Approvals pre-resolve checkpoints so a run can complete unattended.
// Only approving resolutions are honored; a pre-supplied rejection would
// never change.
type Approvals struct {
	EvidenceReview  *EvidenceReview `json:"evidenceReview,omitempty"`
	ArcSelection    *ArcSelection   `json:"arcSelection,omitempty"`
	OutlineApproval *Approval       `json:"outlineApproval,omitempty"`
	ArticleApproval *Approval       `json:"articleApproval,omitempty"`
}

// ResolutionError reports a resolution the checkpoint refuses. The run
// stays suspended at the same checkpoint.
type ResolutionError struct {
	Checkpoint string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("invalid %s resolution: %s", e.Checkpoint, e.Reason)
}

func resolutionErrorf(checkpoint, format string, args ...any) *ResolutionError {
	return &ResolutionError{Checkpoint: checkpoint, Reason: fmt.Sprintf(format, args...)}
}

// decodeResolution accepts the value passed to Resume: a typed value, a
// pointer to one, or JSON.
func decodeResolution[T any](checkpoint string, v any) (T, error) {
	var out T
	switch r := v.(type) {
	case T:
		return r, nil
	case *T:
		if r == nil {
			return out, resolutionErrorf(checkpoint, "resolution is empty")
		}
		return *r, nil
	case json.RawMessage:
		return decodeJSON[T](checkpoint, r)
	case []byte:
		return decodeJSON[T](checkpoint, r)
	case string:
		return decodeJSON[T](checkpoint, []byte(r))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return out, resolutionErrorf(checkpoint, "cannot encode resolution: %v", err)
		}
		return decodeJSON[T](checkpoint, data)
	}
}

func decodeJSON[T any](checkpoint string, data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, resolutionErrorf(checkpoint, "malformed resolution: %v", err)
	}
	return out, nil
}

// EvidenceReviewPayload is shown to the reviewer at evidence-review.
type EvidenceReviewPayload struct {
	Exposed  []EvidenceSummary      `json:"exposed"`
	Buried   []EvidenceSummary      `json:"buried"`
	Excluded []curator.ExcludedItem `json:"excluded"`
}

// EvidenceSummary is an item as listed for review.
type EvidenceSummary struct {
	ID          string               `json:"id"`
	Kind        curator.Kind         `json:"kind"`
	Summary     string               `json:"summary"`
	Transaction *curator.Transaction `json:"transaction,omitempty"`
}

// ArcSelectionPayload is shown to the reviewer at arc-selection.
type ArcSelectionPayload struct {
	Arcs       []Arc             `json:"arcs"`
	Evaluation *evaluator.Result `json:"evaluation,omitempty"`
}

// ApprovalPayload is shown at the outline and article approvals.
type ApprovalPayload struct {
	Document   any               `json:"document"`
	Evaluation *evaluator.Result `json:"evaluation,omitempty"`
	Revisions  int               `json:"revisions"`
	Cap        int               `json:"cap"`
	// CanReject is false once the revision cap is reached.
	CanReject bool `json:"canReject"`
}

func summarize(items []curator.Item) []EvidenceSummary {
	out := make([]EvidenceSummary, 0, len(items))
	for _, it := range items {
		out = append(out, EvidenceSummary{ID: it.ID, Kind: it.Kind, Summary: it.Summary, Transaction: it.Transaction})
	}
	return out
}
