package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/pipeline"
	"github.com/randalmurphal/casefile/pkg/schema"
)

var roster = []string{"Mara Quill", "Dov Archer"}

func evidence() []curator.Item {
	return []curator.Item{
		{ID: "e1", Kind: curator.KindMessage, Disposition: curator.DispositionDisclosed,
			Content: "Mara Quill: the transfer went through.", Summary: "Quill confirms a transfer"},
		{ID: "e2", Kind: curator.KindDocument, Disposition: curator.DispositionTransaction,
			Content: "SEALED-MEMO-TEXT", Summary: "Wire to an offshore account",
			Transaction: &curator.Transaction{Amount: 5000, Account: "ACCT-9", Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}},
		{ID: "e3", Kind: curator.KindDocument, Disposition: curator.DispositionUnresolved,
			Content: "Ledger page listing Dov Archer", Summary: "Ledger page"},
		{ID: "e4", Kind: curator.KindMedia, Disposition: curator.DispositionUnresolved,
			Content: "BURNER-PHOTO-CONTENT", Summary: "Blurry photo"},
	}
}

// scoreEvidence keeps e3 and drops e4.
func scoreEvidence(_ context.Context, req llm.Request) (*llm.Response, error) {
	doc := `{"scores":[
		{"id":"e3","relevance":3,"corroboration":3,"thematic":3,"substance":3,"rationale":"names Archer"},
		{"id":"e4","relevance":0,"corroboration":0,"thematic":1,"substance":0,"rationale":"unreadable"}]}`
	return &llm.Response{Structured: json.RawMessage(doc), Source: llm.SourceStructuredOutput, Attempts: 1}, nil
}

func arcs(evidenceIDs ...string) pipeline.ArcSet {
	if len(evidenceIDs) == 0 {
		evidenceIDs = []string{"e1", "e3"}
	}
	return pipeline.ArcSet{Arcs: []pipeline.Arc{
		{ID: "arc-1", Title: "The wire", Kind: "central",
			Summary:     "Mara Quill moved money to Dov Archer",
			EvidenceIDs: evidenceIDs, Characters: roster},
		{ID: "arc-2", Title: "The ledger", Kind: "supporting",
			Summary:     "A ledger page ties the payment to Dov Archer",
			EvidenceIDs: []string{"e3"}, Characters: []string{"Dov Archer"}},
	}}
}

func outline() *pipeline.Outline {
	return &pipeline.Outline{Title: "Follow the wire", Sections: []pipeline.OutlineSection{
		{ID: "s1", Heading: "Lede", ArcIDs: []string{"arc-1"}, EvidenceIDs: []string{"e1"},
			Beats: []string{"Mara Quill confirms the transfer to Dov Archer"}},
		{ID: "s2", Heading: "What the Records Show", ArcIDs: []string{"arc-1"}, EvidenceIDs: []string{"e2", "e3"},
			Beats: []string{"The wire and the ledger line up"}},
		{ID: "s3", Heading: "What Remains Unanswered", Beats: []string{"Why the account was opened"}},
	}}
}

func article() *pipeline.Article {
	return &pipeline.Article{Title: "Follow the wire", Dek: "A transfer, a ledger and two names.", Sections: []pipeline.ArticleSection{
		{ID: "s1", Heading: "Lede", Body: "Mara Quill said the transfer went through.", EvidenceIDs: []string{"e1"}},
		{ID: "s2", Heading: "What the Records Show", Body: "A ledger page lists **Dov Archer**.", EvidenceIDs: []string{"e2", "e3"}},
		{ID: "s3", Heading: "What Remains Unanswered", Body: "Who opened ACCT-9 is still unknown."},
	}}
}

func verdict(ready bool) map[string]any {
	c := map[string]any{"name": "grounded", "kind": "structural", "passed": ready}
	if !ready {
		c["feedback"] = "cite the ledger"
	}
	return map[string]any{"criteria": []any{c}, "summary": fmt.Sprintf("ready=%v", ready)}
}

// scripted answers every op with a passing document.
func scripted() *llm.MockInvoker {
	m := llm.NewMockInvoker()
	m.On("curate_evidence", scoreEvidence)
	m.Respond("generate_arcs", arcs())
	m.Respond("generate_outline", outline())
	m.Respond("generate_article", article())
	for _, op := range []string{"evaluate_arcs", "evaluate_outline", "evaluate_article"} {
		m.Respond(op, verdict(true))
	}
	m.Respond("revise_arcs", arcs())
	m.Respond("revise_outline", outline())
	m.Respond("revise_article", article())
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	svc     *pipeline.Service
	store   checkpoint.Store
	invoker llm.Invoker
}

func newHarness(t *testing.T, inv llm.Invoker, store checkpoint.Store, themes ...string) *harness {
	t.Helper()
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	v, err := schema.NewDefault()
	require.NoError(t, err)
	cat, err := pipeline.NewCatalog()
	require.NoError(t, err)
	for _, th := range themes {
		require.NoError(t, cat.Add([]byte(th)))
	}
	svc, err := pipeline.NewService(pipeline.Deps{Invoker: inv, Validator: v, Themes: cat}, store,
		pipeline.ServiceOptions{RecursionLimit: 100, Logger: quietLogger()})
	require.NoError(t, err)
	return &harness{svc: svc, store: store, invoker: inv}
}

func (h *harness) start(t *testing.T, req pipeline.StartRequest) *pipeline.Response {
	t.Helper()
	if req.Theme == "" {
		req.Theme = "journalist"
	}
	if req.Roster == nil {
		req.Roster = roster
	}
	if req.Evidence == nil {
		req.Evidence = evidence()
	}
	resp, err := h.svc.Start(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func (h *harness) resume(t *testing.T, runID, checkpointType string, resolution any) (*pipeline.Response, error) {
	t.Helper()
	raw, err := json.Marshal(resolution)
	require.NoError(t, err)
	return h.svc.Resume(context.Background(), runID, pipeline.ResumeRequest{CheckpointType: checkpointType, Resolution: raw})
}

func (h *harness) mustResume(t *testing.T, runID, checkpointType string, resolution any) *pipeline.Response {
	t.Helper()
	resp, err := h.resume(t, runID, checkpointType, resolution)
	require.NoError(t, err)
	return resp
}

// advance resumes runID through each named checkpoint with an approving
// resolution.
func (h *harness) advance(t *testing.T, runID string, through ...string) *pipeline.Response {
	t.Helper()
	var resp *pipeline.Response
	for _, cp := range through {
		var res any
		switch cp {
		case pipeline.CheckpointEvidenceReview:
			res = pipeline.EvidenceReview{Approved: true}
		case pipeline.CheckpointArcSelection:
			res = pipeline.ArcSelection{SelectedArcIDs: []string{"arc-1"}}
		default:
			res = pipeline.Approval{Approved: true}
		}
		resp = h.mustResume(t, runID, cp, res)
	}
	return resp
}

func promptsFor(m *llm.MockInvoker, op string) string {
	var b strings.Builder
	for _, c := range m.CallsFor(op) {
		b.WriteString(c.Prompt)
		b.WriteString("\n")
	}
	return b.String()
}

// sequence answers with docs in order, repeating the last one. It
// replaces whatever was queued for the op.
func sequence(docs ...any) llm.MockHandler {
	var (
		mu sync.Mutex
		i  int
	)
	return func(context.Context, llm.Request) (*llm.Response, error) {
		mu.Lock()
		d := docs[min(i, len(docs)-1)]
		i++
		mu.Unlock()
		data, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Structured: data, Source: llm.SourceStructuredOutput, Attempts: 1}, nil
	}
}

func seededBundle() curator.Bundle {
	ev := evidence()
	b := curator.NewBundle()
	b.Exposed = []curator.Item{ev[0], ev[2]}
	b.Buried = []curator.Item{{ID: ev[1].ID, Kind: ev[1].Kind, Disposition: ev[1].Disposition, Summary: ev[1].Summary, Transaction: ev[1].Transaction}}
	b.Excluded = []curator.ExcludedItem{{Item: ev[3], Rationale: "unreadable"}}
	return b
}

// slowStore delays loads so concurrent callers read the same checkpoint.
type slowStore struct {
	checkpoint.Store
	delay time.Duration
}

func (s slowStore) Load(runID, nodeID string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Store.Load(runID, nodeID)
}

// resumeConcurrently resolves runID's checkpoint through each service at
// once, svcs[i] with resolutions[i].
func resumeConcurrently(t *testing.T, runID, checkpointType string, svcs []*pipeline.Service, resolutions []any) []error {
	t.Helper()
	var (
		wg   sync.WaitGroup
		gate = make(chan struct{})
		errs = make([]error, len(svcs))
	)
	for i, svc := range svcs {
		raw, err := json.Marshal(resolutions[i])
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, errs[i] = svc.Resume(context.Background(), runID,
				pipeline.ResumeRequest{CheckpointType: checkpointType, Resolution: raw})
		}()
	}
	close(gate)
	wg.Wait()
	return errs
}
