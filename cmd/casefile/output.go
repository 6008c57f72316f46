package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randalmurphal/casefile/pkg/pipeline"
)

var (
	phaseStyleComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	phaseStyleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	phaseStyleWaiting  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	phaseStyleRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	titleStyle         = lipgloss.NewStyle().Bold(true)
)

func phaseLabel(phase pipeline.Phase, waiting bool) string {
	text := string(phase)
	switch {
	case phase == pipeline.PhaseComplete:
		return phaseStyleComplete.Render(text)
	case phase == pipeline.PhaseError:
		return phaseStyleError.Render(text)
	case waiting:
		return phaseStyleWaiting.Render(text + " (waiting)")
	default:
		return phaseStyleRunning.Render(text)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResponse(w io.Writer, resp *pipeline.Response, jsonOut bool) error {
	if jsonOut {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("run "+resp.RunID), phaseLabel(resp.Phase, resp.Checkpoint != nil))
	printErrors(w, resp.Errors)
	if resp.Checkpoint == nil {
		return nil
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("checkpoint:"), resp.Checkpoint.Type)
	if len(resp.Checkpoint.Payload) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, resp.Checkpoint.Payload, "", "  "); err == nil {
			fmt.Fprintln(w, buf.String())
		}
	}
	fmt.Fprintf(w, "resolve with: casefile resume %s --type %s --resolution '<json>'\n", resp.RunID, resp.Checkpoint.Type)
	return nil
}

func printErrors(w io.Writer, errs []pipeline.ErrorRecord) {
	for _, e := range errs {
		fmt.Fprintf(w, "%s [%s] %s: %s\n", phaseStyleError.Render("error"), e.Type, e.Node, e.Message)
		for _, d := range e.Details {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
}

func printStatus(w io.Writer, st *pipeline.Status) {
	row := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), value)
	}
	fmt.Fprintln(w, titleStyle.Render("run "+st.RunID))
	row("theme", st.Theme)
	row("phase", phaseLabel(st.Phase, st.Checkpoint != nil))
	if st.Checkpoint != nil {
		row("checkpoint", st.Checkpoint.Type)
	}
	row("last node", st.LastNode)
	if st.NextNode != "" {
		row("next node", st.NextNode+" (resume with --continue)")
	}
	if len(st.Revisions) > 0 {
		parts := make([]string, 0, len(st.Revisions))
		for phase, n := range st.Revisions {
			parts = append(parts, fmt.Sprintf("%s=%d", phase, n))
		}
		sort.Strings(parts)
		row("revisions", strings.Join(parts, " "))
	}
	row("evaluations", fmt.Sprint(st.Evaluations))
	if !st.UpdatedAt.IsZero() {
		row("updated", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	printErrors(w, st.Errors)
}

func printRuns(w io.Writer, runs []pipeline.Status) {
	if len(runs) == 0 {
		fmt.Fprintln(w, labelStyle.Render("no runs"))
		return
	}
	for _, st := range runs {
		waiting := ""
		if st.Checkpoint != nil {
			waiting = st.Checkpoint.Type
		}
		fmt.Fprintf(w, "%-38s %-12s %s %s\n", st.RunID, st.Theme, phaseLabel(st.Phase, st.Checkpoint != nil), waiting)
	}
}
