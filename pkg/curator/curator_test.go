package curator_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validator(t *testing.T) *schema.Validator {
	t.Helper()
	v, err := schema.NewDefault()
	require.NoError(t, err)
	return v
}

func unresolved(n int) []curator.Item {
	items := make([]curator.Item, n)
	for i := range items {
		items[i] = curator.Item{
			ID:          fmt.Sprintf("u%02d", i),
			Kind:        curator.KindMessage,
			Disposition: curator.DispositionUnresolved,
			Content:     fmt.Sprintf("message body %d", i),
			Summary:     fmt.Sprintf("message %d", i),
		}
	}
	return items
}

// scorer answers every scoring call with a score for each id, even ones
// outside the batch; the curator only reads the ids it asked about.
func scorer(ids []string, score func(id string) float64) llm.MockHandler {
	return func(_ context.Context, req llm.Request) (*llm.Response, error) {
		entries := make([]string, 0, len(ids))
		for _, id := range ids {
			s := score(id)
			entries = append(entries, fmt.Sprintf(
				`{"id":%q,"relevance":%g,"corroboration":%g,"thematic":%g,"substance":%g,"rationale":"scored %s"}`,
				id, s, s, s, s, id))
		}
		doc := `{"scores":[` + strings.Join(entries, ",") + `]}`
		return &llm.Response{Structured: []byte(doc), Source: llm.SourceStructuredOutput, Attempts: 1}, nil
	}
}

func ids(items []curator.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRoute(t *testing.T) {
	tx := &curator.Transaction{Amount: 40, Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Account: "checking"}
	items := []curator.Item{
		{ID: "d1", Kind: curator.KindMessage, Disposition: curator.DispositionDisclosed, Content: "full text", Summary: "s"},
		{ID: "t1", Kind: curator.KindMedia, Disposition: curator.DispositionTransaction, Content: "secret photo caption",
			Summary: "photo", Metadata: map[string]string{"caption": "secret"}, Transaction: tx},
		{ID: "u1", Kind: curator.KindDocument, Disposition: curator.DispositionUnresolved, Summary: "s"},
		{ID: "x1", Kind: curator.KindDocument, Disposition: "", Summary: "s"},
	}

	b, pending := curator.Route(items)

	require.Len(t, b.Exposed, 1)
	assert.Equal(t, "full text", b.Exposed[0].Content)

	require.Len(t, b.Buried, 1)
	buried := b.Buried[0]
	assert.Equal(t, "t1", buried.ID)
	assert.Empty(t, buried.Content)
	assert.Nil(t, buried.Metadata)
	require.NotNil(t, buried.Transaction)
	assert.Equal(t, 40.0, buried.Transaction.Amount)
	assert.Equal(t, "checking", buried.Transaction.Account)

	assert.Equal(t, []string{"u1", "x1"}, ids(pending))
	assert.Empty(t, b.Excluded)

	// The caller's item is untouched.
	assert.Equal(t, "secret photo caption", items[1].Content)
}

func TestRoute_DisclosedWithoutContentIsPending(t *testing.T) {
	items := []curator.Item{
		{ID: "x", Kind: curator.KindMessage, Disposition: curator.DispositionDisclosed},
		{ID: "y", Kind: curator.KindMessage, Disposition: curator.DispositionDisclosed, Content: "  \n", Summary: "blank"},
		{ID: "z", Kind: curator.KindMessage, Disposition: curator.DispositionDisclosed, Content: "said it"},
	}

	b, pending := curator.Route(items)

	assert.Equal(t, []string{"z"}, ids(b.Exposed))
	for _, it := range b.Exposed {
		assert.NotEmpty(t, it.Content)
	}
	assert.Equal(t, []string{"x", "y"}, ids(pending))
}

func TestCurate_EmptyInputSkipsModel(t *testing.T) {
	mock := llm.NewMockInvoker()
	c, err := curator.New(mock, validator(t), curator.Options{}, nil)
	require.NoError(t, err)

	b, err := c.Curate(context.Background(), nil, curator.Context{})
	require.NoError(t, err)
	assert.Empty(t, b.Exposed)
	assert.Empty(t, b.Buried)
	assert.Empty(t, b.Excluded)
	assert.Equal(t, 0, mock.CallCount())

	disclosed := []curator.Item{{ID: "d1", Disposition: curator.DispositionDisclosed, Content: "c"}}
	b, err = c.Curate(context.Background(), disclosed, curator.Context{})
	require.NoError(t, err)
	assert.Len(t, b.Exposed, 1)
	assert.Equal(t, 0, mock.CallCount())
}

func TestCurate_BatchedScoring(t *testing.T) {
	items := unresolved(25)
	items[4].Transaction = &curator.Transaction{Amount: 12, Account: "card"}

	even := func(id string) float64 {
		var n int
		_, _ = fmt.Sscanf(id, "u%d", &n)
		if n%2 == 0 {
			return 2
		}
		return 0.5
	}
	mock := llm.NewMockInvoker().On("curate_evidence", scorer(ids(items), even))

	c, err := curator.New(mock, validator(t), curator.Options{BatchSize: 8, Concurrency: 3}, nil)
	require.NoError(t, err)

	b, err := c.Curate(context.Background(), items, curator.Context{Theme: "journalist", Roster: []string{"Ada"}})
	require.NoError(t, err)

	assert.Equal(t, 4, mock.CallCount())
	for _, call := range mock.Calls {
		assert.True(t, call.DisableTools)
		assert.NotEmpty(t, call.Schema)
		assert.Contains(t, call.Prompt, "- Ada")
	}

	assert.Len(t, b.Exposed, 12)
	assert.Len(t, b.Buried, 1)
	assert.Len(t, b.Excluded, 12)

	// Input order survives concurrent batches.
	assert.Equal(t, "u00", b.Exposed[0].ID)
	assert.Equal(t, "u02", b.Exposed[1].ID)
	assert.Equal(t, "u06", b.Exposed[2].ID)
	assert.Equal(t, "u01", b.Excluded[0].Item.ID)

	assert.Equal(t, "u04", b.Buried[0].ID)
	assert.Empty(t, b.Buried[0].Content)

	assert.Equal(t, 2.0, b.Excluded[0].Score)
	assert.Equal(t, "scored u01", b.Excluded[0].Rationale)

	for _, ex := range b.Excluded {
		assert.False(t, b.Usable(ex.Item.ID), "excluded %s must not be usable", ex.Item.ID)
	}
}

func TestCurate_FailedBatchIsExcludedNotFatal(t *testing.T) {
	items := unresolved(10)
	ok := scorer(ids(items), func(string) float64 { return 3 })
	mock := llm.NewMockInvoker().On("curate_evidence", func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.Prompt, `"id": "u09"`) {
			return nil, errors.New("worker exited 1")
		}
		return ok(ctx, req)
	})

	c, err := curator.New(mock, validator(t), curator.Options{BatchSize: 8}, nil)
	require.NoError(t, err)

	b, err := c.Curate(context.Background(), items, curator.Context{})
	require.NoError(t, err)
	assert.Len(t, b.Exposed, 8)
	require.Len(t, b.Excluded, 2)
	assert.Contains(t, b.Excluded[0].Rationale, "worker exited 1")
	assert.Zero(t, b.Excluded[0].Score)
}

func TestCurate_InvalidOutputIsExcluded(t *testing.T) {
	mock := llm.NewMockInvoker().
		RespondRaw("curate_evidence", `{"scores":[{"id":"u00","relevance":9,"corroboration":0,"thematic":0,"substance":0}]}`)

	c, err := curator.New(mock, validator(t), curator.Options{}, nil)
	require.NoError(t, err)

	b, err := c.Curate(context.Background(), unresolved(1), curator.Context{})
	require.NoError(t, err)
	require.Len(t, b.Excluded, 1)
	assert.Contains(t, b.Excluded[0].Rationale, "curation-batch")
}

func TestCurate_MissingScoreIsExcluded(t *testing.T) {
	mock := llm.NewMockInvoker().On("curate_evidence", scorer([]string{"u00"}, func(string) float64 { return 3 }))

	c, err := curator.New(mock, validator(t), curator.Options{}, nil)
	require.NoError(t, err)

	b, err := c.Curate(context.Background(), unresolved(2), curator.Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u00"}, ids(b.Exposed))
	require.Len(t, b.Excluded, 1)
	assert.Contains(t, b.Excluded[0].Rationale, "missing")
}

func TestCurate_CustomRule(t *testing.T) {
	items := unresolved(2)
	items[1].Kind = curator.KindMedia
	mock := llm.NewMockInvoker().On("curate_evidence", scorer(ids(items), func(string) float64 { return 3 }))

	c, err := curator.New(mock, validator(t), curator.Options{Rule: "total >= 6 and kind != 'media'"}, nil)
	require.NoError(t, err)

	b, err := c.Curate(context.Background(), items, curator.Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u00"}, ids(b.Exposed))
	assert.Equal(t, "u01", b.Excluded[0].Item.ID)
}

func TestCurate_Cancelled(t *testing.T) {
	mock := llm.NewMockInvoker().On("curate_evidence", func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		return nil, ctx.Err()
	})
	c, err := curator.New(mock, validator(t), curator.Options{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Curate(ctx, unresolved(3), curator.Context{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := curator.New(llm.NewMockInvoker(), validator(t), curator.Options{Rule: "score >= 6"}, nil)
	assert.Error(t, err)

	_, err = curator.New(llm.NewMockInvoker(), schema.New(), curator.Options{}, nil)
	var unknown *schema.UnknownSchemaError
	assert.ErrorAs(t, err, &unknown)
}

func TestRescue(t *testing.T) {
	b := curator.NewBundle()
	b.Exposed = []curator.Item{{ID: "d1"}}
	b.Excluded = []curator.ExcludedItem{
		{Item: curator.Item{ID: "u1", Content: "kept"}, Score: 2},
		{Item: curator.Item{ID: "u2", Content: "private", Transaction: &curator.Transaction{Amount: 5}}, Score: 1},
		{Item: curator.Item{ID: "u3"}, Score: 0},
	}

	out, err := curator.Rescue(b, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "u1"}, ids(out.Exposed))
	assert.Equal(t, "kept", out.Exposed[1].Content)
	require.Len(t, out.Buried, 1)
	assert.Empty(t, out.Buried[0].Content)
	require.Len(t, out.Excluded, 1)
	assert.Equal(t, "u3", out.Excluded[0].Item.ID)

	// The input bundle is not modified.
	assert.Len(t, b.Excluded, 3)

	_, err = curator.Rescue(b, []string{"d1"})
	assert.Error(t, err)

	same, err := curator.Rescue(b, nil)
	require.NoError(t, err)
	assert.Len(t, same.Excluded, 3)
}
