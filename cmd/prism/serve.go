package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregation service with its metrics endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, log, cfg, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting prism",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("archive_enabled", cfg.Archive.Enabled),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("prism stopped")
	return nil
}
