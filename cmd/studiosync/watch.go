package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNoPushCalendars = errors.New("no calendar supports push channels")

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage calendar push channels",
	}

	var calendarID string
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Open a new push channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.watcher == nil {
				return errNoPushCalendars
			}

			ids := a.pushable
			if calendarID != "" {
				ids = []string{calendarID}
			}
			for _, id := range ids {
				ch, err := a.watcher.Setup(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := printJSON(ch); err != nil {
					return err
				}
			}
			return nil
		},
	}
	setup.Flags().StringVar(&calendarID, "calendar", "", "calendar id; empty opens one per push-capable calendar")

	renew := &cobra.Command{
		Use:   "renew",
		Short: "Renew missing or expiring push channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.watcher == nil {
				return errNoPushCalendars
			}
			return a.renewAll(cmd.Context())
		},
	}

	cmd.AddCommand(setup, renew)
	return cmd
}
