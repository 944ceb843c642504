package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/cache"
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/application/ingest"
	"github.com/alejandrodnm/polycopy/internal/application/ledger"
	"github.com/alejandrodnm/polycopy/internal/application/live"
	"github.com/alejandrodnm/polycopy/internal/application/tracker"
	"github.com/shopspring/decimal"
)

const cachePrefix = "polycopy:"

// app agrupa las dependencias compartidas por los subcomandos.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	client  *polymarket.Client
	console *notify.Console
	backend cache.Backend
	closers []func() error
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.DSN != ":memory:" {
		if dir := filepath.Dir(cfg.Storage.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir %q: %w", dir, err)
			}
		}
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	client := polymarket.NewClient(cfg.API.DataBase, cfg.API.GammaBase, cfg.API.CLOBBase).
		WithTradePaging(polymarket.TradePaging{PerPage: cfg.Ingest.PageLimit, MaxPages: cfg.Ingest.MaxPages})

	a := &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		console: notify.NewConsole(opts.table),
		closers: []func() error{store.Close},
	}
	a.backend = a.cacheBackend()
	return a, nil
}

// cacheBackend usa Redis si está configurado y responde; si no, memoria.
func (a *app) cacheBackend() cache.Backend {
	if a.cfg.Cache.RedisURL == "" {
		return cache.NewMemory()
	}
	rb, err := cache.NewRedisBackend(a.cfg.Cache.RedisURL, cachePrefix)
	if err != nil {
		slog.Warn("invalid REDIS_URL, using in-memory cache", "err", err)
		return cache.NewMemory()
	}
	if err := rb.Ping(context.Background()); err != nil {
		slog.Warn("redis unreachable, using in-memory cache", "err", err)
		rb.Close()
		return cache.NewMemory()
	}
	a.closers = append(a.closers, rb.Close)
	slog.Info("redis cache enabled")
	return rb
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}

func (a *app) requireWallets() error {
	if len(a.cfg.Wallets) == 0 {
		return errors.New("no leader wallets configured: set WALLETS or wallets in the config file")
	}
	return nil
}

// executor construye el executor live. Sin PRIVATE_KEY solo puede funcionar
// en dry-run.
func (a *app) executor() (*live.Executor, error) {
	lc := a.cfg.Live
	cfg := live.Config{
		Enabled:         lc.Enabled,
		DryRun:          lc.DryRun,
		MinBalanceMATIC: decimal.NewFromFloat(lc.MinBalanceMATIC),
		MaxGasGwei:      decimal.NewFromFloat(lc.MaxGasGwei),
	}
	if !lc.Enabled || lc.PrivateKey == "" {
		return live.NewExecutor(cfg, nil, nil), nil
	}

	auth, err := polymarket.NewAuthClient(a.client, lc.PrivateKey)
	if err != nil {
		return nil, err
	}
	tc, err := polymarket.NewTradingClient(auth, lc.RPCURL)
	if err != nil {
		return nil, err
	}
	slog.Info("live trading wallet", "address", tc.Address(), "dry_run", lc.DryRun)
	return live.NewExecutor(cfg, tc, tc), nil
}

// engine crea el engine del ledger con todos sus colaboradores.
func (a *app) engine(exec *live.Executor) *ledger.Engine {
	equity := cache.NewEquity(a.client, a.backend, a.cfg.EquityTTL())
	opts := []ledger.Option{
		ledger.WithLeaderEquity(equity),
		ledger.WithNotifier(a.console),
	}
	if exec != nil {
		opts = append(opts, ledger.WithExecutor(exec, a.store))
	}
	return ledger.NewEngine(ledger.Config{
		Leaders:     a.cfg.Wallets,
		StartEquity: a.cfg.StartEquity(),
		Sizing:      a.cfg.SizingPolicy(),
		BatchLimit:  a.cfg.Paper.BatchLimit,
	}, a.store, a.store, opts...)
}

// ingester crea el servicio de ingesta; onNew dispara el ledger.
func (a *app) ingester(onNew func()) *ingest.Service {
	markets := cache.NewMarkets(a.client, a.backend, cache.DefaultMarketTTL)
	return ingest.NewService(ingest.Config{
		Wallets:      a.cfg.Wallets,
		PollInterval: a.cfg.PollInterval(),
		Historical:   a.cfg.Ingest.HistoricalEnabled,
		Workers:      a.cfg.Ingest.Workers,
	}, a.client, markets, a.store, onNew)
}

// tracker crea el tracker de posiciones de los leaders configurados en
// tracker.leaders (SPORTS_LEADERS).
func (a *app) tracker() *tracker.Service {
	tc := a.cfg.Tracker
	markets := cache.NewMarkets(a.client, a.backend, cache.DefaultMarketTTL)
	return tracker.NewService(tracker.Config{
		Wallets:       tc.Leaders,
		Category:      a.cfg.TrackerCategory(),
		SizeThreshold: decimal.NewFromFloat(tc.SizeThreshold),
		PollInterval:  a.cfg.TrackerInterval(),
		Workers:       tc.Workers,
	}, a.client, markets, a.store)
}
