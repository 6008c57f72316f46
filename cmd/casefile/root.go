package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/casefile/pkg/flowgraph/llm"
	"github.com/randalmurphal/casefile/pkg/pipeline"
	"github.com/randalmurphal/casefile/pkg/schema"
)

// app carries global flags and the wiring shared by every command.
type app struct {
	configPath string
	logJSON    bool
	verbose    bool

	settings pipeline.Settings
	logger   *slog.Logger

	// newInvoker builds the model worker. Tests replace it.
	newInvoker func(pipeline.Settings, *slog.Logger) (llm.Invoker, error)
}

func newApp() *app {
	return &app{
		newInvoker: func(s pipeline.Settings, l *slog.Logger) (llm.Invoker, error) {
			return s.NewInvoker(l)
		},
	}
}

// setup loads settings and installs the logger. It runs before every
// subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	s, err := pipeline.LoadSettings(a.configPath)
	if err != nil {
		return err
	}
	a.settings = s

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	if a.logJSON {
		h = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	}
	a.logger = slog.New(h)
	return nil
}

// service wires a pipeline.Service over the configured store. The
// caller closes the returned store.
func (a *app) service() (*pipeline.Service, checkpoint.Store, error) {
	inv, err := a.newInvoker(a.settings, a.logger)
	if err != nil {
		return nil, nil, err
	}
	v, err := schema.NewDefault()
	if err != nil {
		return nil, nil, err
	}
	themes, err := a.settings.Catalog()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.settings.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	svc, err := pipeline.NewService(a.settings.Deps(inv, v, themes, a.logger), store, a.settings.ServiceOptions(a.logger))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "casefile",
		Short: "Evidence-to-article pipeline with human checkpoints",
		Long: `casefile - evidence-to-article pipeline with human checkpoints

casefile curates an evidence bundle, proposes narrative arcs, outlines and
drafts an article, and pauses for review at evidence, arc, outline and
article checkpoints. Runs are checkpointed so they survive restarts.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "settings file (YAML or JSON)")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newRunCmd(a),
		newResumeCmd(a),
		newStatusCmd(a),
		newExportCmd(a),
		newServeCmd(a),
		newThemesCmd(a),
	)
	return root
}

// Execute runs the command tree with the given output writers.
func Execute(stdout, stderr io.Writer) error {
	root := newRootCmd(newApp())
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}
