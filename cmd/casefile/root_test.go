package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/pipeline"
)

var roster = []string{"Mara Quill", "Dov Archer"}

func request(runID string) pipeline.StartRequest {
	return pipeline.StartRequest{
		RunID:  runID,
		Theme:  "journalist",
		Roster: roster,
		Evidence: []curator.Item{
			{ID: "e1", Kind: curator.KindMessage, Disposition: curator.DispositionDisclosed,
				Content: "Mara Quill: the transfer went through.", Summary: "Quill confirms a transfer"},
			{ID: "e2", Kind: curator.KindDocument, Disposition: curator.DispositionTransaction,
				Content: "SEALED", Summary: "Wire to an offshore account",
				Transaction: &curator.Transaction{Amount: 5000, Account: "ACCT-9", Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}},
		},
	}
}

func scripted() *llm.MockInvoker {
	m := llm.NewMockInvoker()
	m.Respond("generate_arcs", pipeline.ArcSet{Arcs: []pipeline.Arc{{
		ID: "arc-1", Title: "The wire", Kind: "central",
		Summary:     "Mara Quill moved money to Dov Archer",
		EvidenceIDs: []string{"e1", "e2"}, Characters: roster,
	}}})
	m.Respond("generate_outline", pipeline.Outline{Title: "Follow the wire", Sections: []pipeline.OutlineSection{
		{ID: "s1", Heading: "Lede", ArcIDs: []string{"arc-1"}, EvidenceIDs: []string{"e1"}, Beats: []string{"Mara Quill confirms it"}},
		{ID: "s2", Heading: "What the Records Show", ArcIDs: []string{"arc-1"}, EvidenceIDs: []string{"e2"}, Beats: []string{"The wire to Dov Archer"}},
		{ID: "s3", Heading: "What Remains Unanswered", Beats: []string{"Who opened the account"}},
	}})
	m.Respond("generate_article", pipeline.Article{Title: "Follow the wire", Dek: "Two names and a wire.", Sections: []pipeline.ArticleSection{
		{ID: "s1", Heading: "Lede", Body: "Mara Quill said the transfer went through.", EvidenceIDs: []string{"e1"}},
		{ID: "s2", Heading: "What the Records Show", Body: "The wire reached Dov Archer.", EvidenceIDs: []string{"e2"}},
		{ID: "s3", Heading: "What Remains Unanswered", Body: "Who opened ACCT-9 is unknown."},
	}})
	pass := map[string]any{
		"criteria": []any{map[string]any{"name": "grounded", "kind": "structural", "passed": true}},
		"summary":  "ready",
	}
	for _, op := range []string{"evaluate_arcs", "evaluate_outline", "evaluate_article"} {
		m.Respond(op, pass)
	}
	return m
}

type cli struct {
	config  string
	dir     string
	invoker *llm.MockInvoker
}

// newCLI writes a config pointing at a temp SQLite file so separate
// invocations share runs.
func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "casefile.yaml")
	db := filepath.Join(dir, "runs.db")
	require.NoError(t, os.WriteFile(config, []byte("checkpoint:\n  db: "+db+"\n"), 0o600))
	return &cli{config: config, dir: dir, invoker: scripted()}
}

func (c *cli) exec(stdin string, args ...string) (string, string, error) {
	a := newApp()
	a.newInvoker = func(pipeline.Settings, *slog.Logger) (llm.Invoker, error) {
		return c.invoker, nil
	}
	var stdout, stderr bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", c.config}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (c *cli) writeRequest(t *testing.T, req pipeline.StartRequest) string {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	path := filepath.Join(c.dir, req.RunID+".json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRoot_Help(t *testing.T) {
	c := newCLI(t)
	stdout, _, err := c.exec("", "--help")
	require.NoError(t, err)
	for _, cmd := range []string{"run", "resume", "status", "export", "serve", "themes"} {
		assert.Contains(t, stdout, cmd)
	}
}

func TestThemes(t *testing.T) {
	c := newCLI(t)
	stdout, _, err := c.exec("", "themes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "journalist")
	assert.Contains(t, stdout, "detective")
}

func TestRunResumeExport(t *testing.T) {
	c := newCLI(t)
	input := c.writeRequest(t, request("run-cli"))

	stdout, _, err := c.exec("", "run", "--input", input, "--json")
	require.NoError(t, err)
	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Checkpoint)
	assert.Equal(t, pipeline.CheckpointEvidenceReview, resp.Checkpoint.Type)

	stdout, _, err = c.exec("", "status", "run-cli")
	require.NoError(t, err)
	assert.Contains(t, stdout, pipeline.CheckpointEvidenceReview)

	// --type defaults to the pending checkpoint.
	_, _, err = c.exec("", "resume", "run-cli", "-r", `{"approved":true}`)
	require.NoError(t, err)
	_, _, err = c.exec("", "resume", "run-cli", "--type", pipeline.CheckpointArcSelection, "-r", `{"selectedArcIds":["arc-1"]}`)
	require.NoError(t, err)
	_, _, err = c.exec(`{"approved":true}`, "resume", "run-cli", "--resolution-file", "-")
	require.NoError(t, err)
	stdout, _, err = c.exec("", "resume", "run-cli", "-r", `{"approved":true}`)
	require.NoError(t, err)
	assert.Contains(t, stdout, string(pipeline.PhaseComplete))

	stdout, _, err = c.exec("", "export", "run-cli", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# Follow the wire")
	assert.Contains(t, stdout, "Sources: e1")

	out := filepath.Join(c.dir, "report.html")
	_, _, err = c.exec("", "export", "run-cli", "-o", out)
	require.NoError(t, err)
	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Follow the wire")

	stdout, _, err = c.exec("", "status", "--json")
	require.NoError(t, err)
	var runs []pipeline.Status
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Done)
}

func TestRun_RequestErrors(t *testing.T) {
	c := newCLI(t)
	req := request("run-bad")
	req.Theme = "gothic"
	input := c.writeRequest(t, req)

	_, _, err := c.exec("", "run", "--input", input)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	input = c.writeRequest(t, request("run-ok"))
	_, _, err = c.exec("", "run", "--input", input)
	require.NoError(t, err)

	_, _, err = c.exec("", "resume", "run-ok", "-r", `{"approved":false}`)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, _, err = c.exec("", "export", "run-ok")
	assert.ErrorIs(t, err, pipeline.ErrNotComplete)

	_, _, err = c.exec("", "status", "missing")
	assert.ErrorIs(t, err, pipeline.ErrUnknownRun)
}

func TestRun_Unattended(t *testing.T) {
	c := newCLI(t)
	req := request("run-u")
	req.Approvals = pipeline.Approvals{
		EvidenceReview:  &pipeline.EvidenceReview{Approved: true},
		ArcSelection:    &pipeline.ArcSelection{SelectedArcIDs: []string{"arc-1"}},
		OutlineApproval: &pipeline.Approval{Approved: true},
		ArticleApproval: &pipeline.Approval{Approved: true},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	stdout, _, err := c.exec(string(data), "run", "--unattended")
	require.NoError(t, err)
	assert.Contains(t, stdout, "## What the Records Show")
	assert.Contains(t, stdout, "By Casefile Investigations Desk")
}
