package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/spf13/cobra"
)

// rootOptions son los flags globales de todos los subcomandos.
type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string
	table      bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("polycopy failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "polycopy",
		Short: "Copy-trade Polymarket leader wallets into a paper (or live) follower portfolio",
		Long: `polycopy ingests the trades of a set of leader wallets, replays them into a
follower ledger sized by the follower's own equity, and optionally mirrors
every fill to the Polymarket CLOB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config/config.yaml", "path to config file (optional)")
	flags.BoolVar(&opts.verbose, "verbose", false, "set log level to debug")
	flags.StringVar(&opts.logFormat, "format", "", "log format: text|json (overrides config)")
	flags.BoolVar(&opts.table, "table", false, "print fills of every run as a table")

	cmd.AddCommand(
		newRunCmd(opts),
		newPaperCmd(opts),
		newReportCmd(opts),
		newResetCmd(opts),
		newServeCmd(opts),
		newEquityCmd(opts),
		newTrackerCmd(opts),
		newSimulateCmd(opts),
	)
	return cmd
}

// loadConfig carga la configuración y deja el logger listo.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
