package flowgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func logMessages(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func countMsg(recs []map[string]any, msg string) int {
	n := 0
	for _, r := range recs {
		if r["msg"] == msg {
			n++
		}
	}
	return n
}

func TestRun_LifecycleLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	compiled := gatedGraph(t)
	store := checkpoint.NewMemoryStore()

	_, err := compiled.Run(testCtx(), Doc{},
		WithCheckpointing(store), WithRunID("run-7"), WithObservabilityLogger(logger))
	require.NoError(t, err)

	recs := logMessages(t, &buf)
	assert.Equal(t, 1, countMsg(recs, "graph run starting"))
	assert.Equal(t, 1, countMsg(recs, "graph run suspended"))
	assert.Equal(t, 0, countMsg(recs, "graph run completed"))
	assert.Equal(t, 2, countMsg(recs, "node completed"))
	assert.Equal(t, 2, countMsg(recs, "checkpoint saved"))

	buf.Reset()
	_, err = compiled.Resume(testCtx(), store, "run-7", true, WithObservabilityLogger(logger))
	require.NoError(t, err)

	recs = logMessages(t, &buf)
	assert.Equal(t, 1, countMsg(recs, "graph run completed"))
	for _, r := range recs {
		if r["msg"] == "graph run completed" {
			assert.Equal(t, "run-7", r["run_id"])
			assert.Equal(t, float64(2), r["nodes_executed"])
		}
	}
}

func TestRun_ErrorLogNamesLastNode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	compiled, err := newDocGraph().
		AddNode("bad", failing(assert.AnError)).
		AddEdge("bad", END).
		SetEntry("bad").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), Doc{}, WithObservabilityLogger(logger))
	require.Error(t, err)

	for _, r := range logMessages(t, &buf) {
		if r["msg"] == "graph run failed" {
			assert.Equal(t, "bad", r["last_node"])
			return
		}
	}
	t.Fatal("missing graph run failed log")
}

func TestRun_TracingSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	compiled, err := newDocGraph().
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), Doc{}, WithTracing(true))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.True(t, names["casefile.run"])
	assert.True(t, names["casefile.node.a"])
	assert.True(t, names["casefile.node.b"])
}
