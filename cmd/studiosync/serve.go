package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	appLog "studiosync/internal/log"
	"studiosync/internal/scheduler"
	"studiosync/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and API and run scheduled syncs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}

func serve(ctx context.Context) error {
	appLog.Info("studiosync starting",
		"version", version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"calendars", len(cfg.Calendars),
		"database", cfg.Database,
	)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(ctx, a.loc)
	jobs := []scheduler.Job{
		{
			Name: "incremental-sync",
			Spec: cfg.Sync.IncrementalCron,
			Run: func(ctx context.Context) error {
				_, err := a.runner.Incremental(ctx, "")
				return err
			},
		},
		{
			Name: "webhook-renewal",
			Spec: cfg.Webhook.RenewCron,
			Run:  a.renewAll,
		},
		{
			Name: "health-check",
			Spec: cfg.Sync.HealthCron,
			Run: func(ctx context.Context) error {
				_, err := a.runner.CheckStaleness(ctx, cfg.StaleAfter())
				return err
			},
		},
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	if err := a.renewAll(ctx); err != nil {
		appLog.Error("initial channel renewal failed", err)
	}

	var watcher web.Watcher
	if a.watcher != nil {
		watcher = a.watcher
	}
	srv := web.NewServer(cfg, a.runner, a.store, watcher)
	err = web.StartServer(ctx, cfg, srv.Handler())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLog.Info("studiosync exiting")
	return nil
}
