package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jhacksman/FeedEater-sub001/config"
	"github.com/jhacksman/FeedEater-sub001/logline"
	"github.com/jhacksman/FeedEater-sub001/orchestrator"
)

// exitError carries the process exit code assigned to each failure class
// (0 clean shutdown, 1 configuration error, 2 bus/DB connection failure at
// boot).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker: boot the orchestrator and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}
	return cmd
}

func runServe(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("load config: %w", err)}
	}

	var dropped int64
	handler := logline.NewHandler(logline.ParseLevel(cfg.LogLevel), slog.LevelWarn, nil, &dropped)
	logger := slog.New(handler)

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch := orchestrator.New(cfg, logger, handler)
	if err := orch.Boot(ctx); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("boot: %w", err)}
	}

	logger.Info("feedeater worker started")
	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	orch.Shutdown(cfg.ShutdownTimeout)
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return 1
}
