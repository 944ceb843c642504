package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/dashboard"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/application/ledger"
	"github.com/alejandrodnm/polycopy/internal/application/tracker"
	"github.com/spf13/cobra"
)

const stopFile = "STOP"

func newRunCmd(opts *rootOptions) *cobra.Command {
	var noDashboard bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run ingestion, live feed, ledger worker and dashboard until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runDaemon(cmd.Context(), a, !noDashboard)
		},
	}
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not start the HTTP dashboard")
	return cmd
}

func runDaemon(ctx context.Context, a *app, withDashboard bool) error {
	if err := a.requireWallets(); err != nil {
		return err
	}
	exec, err := a.executor()
	if err != nil {
		return fmt.Errorf("live executor: %w", err)
	}
	if err := exec.Preflight(ctx); err != nil {
		return err
	}

	cfg := a.cfg
	slog.Info("polycopy starting",
		"wallets", len(cfg.Wallets),
		"size_mode", cfg.Paper.SizeMode,
		"start_equity", cfg.Paper.StartEquity,
		"poll", cfg.PollInterval(),
		"loop", cfg.LoopInterval(),
		"rtds", cfg.Ingest.RTDSEnabled,
		"live", cfg.Live.Enabled,
		"dry_run", cfg.Live.DryRun,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := a.engine(exec)
	worker := ledger.NewWorker(engine)
	ingester := a.ingester(worker.Trigger)

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				slog.Error("component stopped", "component", name, "err", err)
				cancel()
			}
		}()
	}

	start("ledger", func(ctx context.Context) error { return worker.Run(ctx, cfg.LoopInterval()) })
	start("ingest", ingester.Run)
	if cfg.Ingest.RTDSEnabled {
		feed := polymarket.NewRTDSFeed(cfg.API.RTDSURL, cfg.Wallets)
		start("rtds", func(ctx context.Context) error { return feed.Run(ctx, ingester.HandleLive) })
	}
	var tracked *tracker.Service
	if len(cfg.Tracker.Leaders) > 0 {
		tracked = a.tracker()
		start("tracker", tracked.Run)
	}
	if withDashboard {
		srv := dashboard.NewServer(a.store)
		if tracked != nil {
			srv.WithTracker(tracked)
		}
		start("dashboard", func(ctx context.Context) error { return srv.ListenAndServe(ctx, cfg.Dashboard.Addr) })
	}
	start("stopfile", func(ctx context.Context) error { return watchStopFile(ctx, cancel) })

	slog.Info("polycopy running: press Ctrl+C or create STOP file to exit")
	wg.Wait()
	slog.Info("polycopy stopped cleanly")
	return nil
}

// watchStopFile cancela el daemon cuando aparece el fichero STOP.
func watchStopFile(ctx context.Context, cancel context.CancelFunc) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("STOP file detected, shutting down")
				os.Remove(stopFile)
				cancel()
				return nil
			}
		}
	}
}
