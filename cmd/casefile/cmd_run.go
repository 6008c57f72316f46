package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/casefile/pkg/pipeline"
	"github.com/randalmurphal/casefile/pkg/render"
)

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newRunCmd(a *app) *cobra.Command {
	var (
		input      string
		theme      string
		runID      string
		focus      string
		roster     []string
		unattended bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a run from an evidence file",
		Long: `Start a run from a JSON request file holding the roster, evidence
and optional pre-supplied approvals. Flags override fields in the file.

The run executes until it completes, fails or reaches a checkpoint. With
--unattended nothing is checkpointed and every checkpoint must be approved
in the file; the finished article is written as markdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			var req pipeline.StartRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse %s: %w", input, err)
			}
			if theme != "" {
				req.Theme = theme
			}
			if runID != "" {
				req.RunID = runID
			}
			if focus != "" {
				req.Focus = focus
			}
			if len(roster) > 0 {
				req.Roster = roster
			}

			svc, store, err := a.service()
			if err != nil {
				return err
			}
			defer store.Close()

			if unattended {
				state, err := svc.RunUnattended(cmd.Context(), req)
				if err != nil {
					return err
				}
				if state.Phase != pipeline.PhaseComplete {
					printErrors(cmd.ErrOrStderr(), state.Errors)
					return fmt.Errorf("run %s ended in phase %s", state.RunID, state.Phase)
				}
				return render.Markdown(cmd.OutOrStdout(), state.Article)
			}

			resp, err := svc.Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "request file, - for stdin")
	cmd.Flags().StringVarP(&theme, "theme", "t", "", "theme name")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (generated when empty)")
	cmd.Flags().StringVar(&focus, "focus", "", "director's brief")
	cmd.Flags().StringSliceVar(&roster, "roster", nil, "character names")
	cmd.Flags().BoolVar(&unattended, "unattended", false, "run without checkpoints using pre-supplied approvals")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var (
		checkpointType string
		resolution     string
		resolutionFile string
		cont           bool
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resolve a run's pending checkpoint and continue it",
		Long: `Resolve a run's pending checkpoint and continue it.

The resolution is JSON, for example:
  evidence-review    {"approved": true, "rescuedIds": ["e7"]}
  arc-selection      {"selectedArcIds": ["arc-1", "arc-3"]}
  outline-approval   {"approved": false, "feedback": "lead with the wire"}
  article-approval   {"approved": true}

With --continue, a run that stopped without a checkpoint (a crash or a
killed process) restarts from the node after its last saved step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			svc, store, err := a.service()
			if err != nil {
				return err
			}
			defer store.Close()

			if cont {
				resp, err := svc.Continue(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp, jsonOut)
			}

			raw := []byte(resolution)
			if resolutionFile != "" {
				if raw, err = readInput(cmd, resolutionFile); err != nil {
					return fmt.Errorf("read resolution: %w", err)
				}
			}
			if len(raw) == 0 {
				return errors.New("a resolution is required (--resolution or --resolution-file)")
			}
			if checkpointType == "" {
				st, err := svc.Status(runID)
				if err != nil {
					return err
				}
				if st.Checkpoint == nil {
					return fmt.Errorf("run %s is not waiting at a checkpoint", runID)
				}
				checkpointType = st.Checkpoint.Type
			}
			resp, err := svc.Resume(cmd.Context(), runID, pipeline.ResumeRequest{
				CheckpointType: checkpointType,
				Resolution:     json.RawMessage(raw),
			})
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp, jsonOut)
		},
	}

	cmd.Flags().StringVar(&checkpointType, "type", "", "checkpoint type being resolved (defaults to the pending one)")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "", "resolution JSON")
	cmd.Flags().StringVar(&resolutionFile, "resolution-file", "", "file holding the resolution JSON, - for stdin")
	cmd.Flags().BoolVar(&cont, "continue", false, "restart a run that stopped without a checkpoint")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.MarkFlagsMutuallyExclusive("resolution", "resolution-file", "continue")
	return cmd
}
