// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/observability"
)

// observabilityServer wraps the methods used from observability.Server.
type observabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// newObservabilityServer is swapped in tests.
var newObservabilityServer = func(addr string, ready observability.ReadinessChecker, status observability.StatusReporter) observabilityServer {
	return observability.NewServer(addr, ready, observability.WithStatus(status))
}

// NewServeCmd creates the serve command.
func NewServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sweeper and the metrics/health endpoint",
		Long: `Serve runs until interrupted. It periodically resumes checkpointed
records, commits delegated state on each record's commit frequency, and
reclaims expired delegations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.withApp(cmd, func(_ context.Context, a *app) error {
				return runServe(ctx, cmd, c.cfg, a)
			})
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obs observabilityServer
	if cfg.MetricsAddr != "" {
		obs = newObservabilityServer(cfg.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
			defer pingCancel()
			return a.ready(pingCtx)
		}, a.authorityCounts)
		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
		slog.Info("observability server started", "addr", obs.Addr())
	}

	sweeper := a.sweeper(cfg)
	sweeper.Start(ctx)
	cmd.Println("Sweeper started")
	slog.Info("serving", "rollup", a.node.ID(), "sweep_interval", cfg.SweepInterval)

	<-ctx.Done()
	slog.Info("shutting down...")
	sweeper.Stop()

	if obs != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
