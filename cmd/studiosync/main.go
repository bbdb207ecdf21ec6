package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"studiosync/internal/config"
	appLog "studiosync/internal/log"
)

const version = "0.3.0"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		appLog.Error("command failed", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studiosync",
		Short:         "Sync studio calendars into appointment records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			appLog.Configure(appLog.Options{Level: c.Log.Level, JSON: c.Log.JSON, File: c.Log.File})
			cfg = c
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "path to the YAML config file")

	root.AddCommand(newServeCmd(), newSyncCmd(), newWatchCmd(), newStatusCmd())
	return root
}
