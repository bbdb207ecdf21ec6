package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"studiosync/internal/runner"
)

func newSyncCmd() *cobra.Command {
	var calendarID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync once and print the reports",
	}
	cmd.PersistentFlags().StringVar(&calendarID, "calendar", "", "calendar id; empty syncs every calendar")

	run := func(pick func(*runner.Runner) func(context.Context, string) ([]runner.Report, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reports, err := pick(a.runner)(cmd.Context(), calendarID)
			if perr := printJSON(reports); perr != nil {
				return perr
			}
			return err
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "incremental",
			Short: "Apply changes since the stored checkpoint",
			RunE:  run(func(r *runner.Runner) func(context.Context, string) ([]runner.Report, error) { return r.Incremental }),
		},
		&cobra.Command{
			Use:   "full",
			Short: "Rebuild records from the whole sync range",
			RunE:  run(func(r *runner.Runner) func(context.Context, string) ([]runner.Report, error) { return r.Full }),
		},
	)
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the stored sync status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.runner.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
