package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/casefile/pkg/render"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show a run's phase and pending checkpoint, or list runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.service()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				runs, err := svc.List()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			}

			st, err := svc.Status(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Render a completed run's article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.service()
			if err != nil {
				return err
			}
			defer store.Close()

			article, err := svc.Report(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			switch format {
			case "html":
				return render.HTML(w, article)
			case "markdown", "md":
				return render.Markdown(w, article)
			case "json":
				return writeJSON(w, article)
			default:
				return fmt.Errorf("unknown format %q (html, markdown, json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "html, markdown or json")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func newThemesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "List available themes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.settings.Catalog()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range cat.Themes() {
				fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(fmt.Sprintf("%-12s", t.Name)), t.Description)
				fmt.Fprintf(w, "  %s %v\n", labelStyle.Render("sections:"), t.RequiredSections)
			}
			return nil
		},
	}
}
