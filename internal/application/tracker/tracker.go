// Package tracker sigue las posiciones abiertas de un grupo de leaders en una
// categoría de mercados (por defecto deportes) y marca como no leídas las que
// aparecen después de la primera pasada.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/shopspring/decimal"
)

const (
	defaultWorkers  = 3
	defaultInterval = time.Minute
	// Tras un poll con errores se espera al menos esto.
	errorBackoff = 5 * time.Second
)

// Config controla el tracker.
type Config struct {
	Wallets       []string
	Category      string // vacío = todas
	SizeThreshold decimal.Decimal
	PollInterval  time.Duration
	Workers       int
}

// Service sondea /positions por wallet y guarda el resultado filtrado.
type Service struct {
	cfg     Config
	source  ports.PositionSource
	markets ports.MarketProvider
	store   ports.TrackerStore
	now     func() time.Time
}

// NewService crea el tracker. markets puede ser nil (sin enriquecimiento).
func NewService(cfg Config, source ports.PositionSource, markets ports.MarketProvider, store ports.TrackerStore) *Service {
	wallets := make([]string, 0, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		if w = domain.NormalizeWallet(w); w != "" {
			wallets = append(wallets, w)
		}
	}
	cfg.Wallets = wallets
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Service{cfg: cfg, source: source, markets: markets, store: store, now: time.Now}
}

// WithClock sustituye el reloj (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PollOnce actualiza todas las wallets. Un fallo en una no impide las demás.
// Devuelve cuántas posiciones quedaron guardadas en esta pasada.
func (s *Service) PollOnce(ctx context.Context) (int, error) {
	if len(s.cfg.Wallets) == 0 {
		return 0, nil
	}

	var (
		mu    sync.Mutex
		errs  []error
		kept  int
		okCnt int
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, s.cfg.Workers)
	for _, wallet := range s.cfg.Wallets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			n, err := s.pollWallet(ctx, wallet)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.TrackerPolls.WithLabelValues("error").Inc()
				slog.Warn("tracker wallet failed", "wallet", wallet, "err", err)
				errs = append(errs, err)
				return
			}
			metrics.TrackerPolls.WithLabelValues("ok").Inc()
			slog.Debug("tracker wallet updated", "wallet", wallet, "positions", n)
			kept += n
			okCnt++
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return kept, err
	}
	// El cutoff se fija tras la primera pasada con éxito para que la carga
	// inicial no salga entera como nueva.
	if okCnt > 0 {
		if err := s.store.SeedFirstSeenCutoff(ctx, s.now()); err != nil {
			errs = append(errs, err)
		}
	}
	return kept, errors.Join(errs...)
}

func (s *Service) pollWallet(ctx context.Context, wallet string) (int, error) {
	positions, err := s.source.FetchLeaderPositions(ctx, wallet, s.cfg.SizeThreshold)
	if err != nil {
		return 0, fmt.Errorf("tracker.pollWallet: %s: %w", wallet, err)
	}
	s.enrich(ctx, positions)

	kept := positions[:0]
	for _, p := range positions {
		if p.InCategory(s.cfg.Category) {
			kept = append(kept, p)
		}
	}
	if err := s.store.ReplaceLeaderPositions(ctx, wallet, kept, s.now()); err != nil {
		return 0, fmt.Errorf("tracker.pollWallet: %s: %w", wallet, err)
	}
	return len(kept), nil
}

// enrich completa categoría y títulos desde Gamma para las posiciones que no
// traen categoría. Best effort: sin metadata la posición se conserva.
func (s *Service) enrich(ctx context.Context, positions []domain.LeaderPosition) {
	if s.markets == nil {
		return
	}
	var ids []string
	for _, p := range positions {
		if p.Category == "" {
			ids = append(ids, p.ConditionID)
		}
	}
	if len(ids) == 0 {
		return
	}
	found, err := s.markets.FetchMarkets(ctx, ids)
	if err != nil {
		slog.Warn("tracker market enrichment failed", "missing", len(ids), "err", err)
		return
	}
	for i := range positions {
		if m, ok := found[positions[i].ConditionID]; ok {
			positions[i].Enrich(m)
		}
	}

	markets := make([]domain.Market, 0, len(found))
	for _, m := range found {
		markets = append(markets, m)
	}
	if err := s.store.UpsertMarkets(ctx, markets); err != nil {
		slog.Warn("tracker market upsert failed", "err", err)
	}
}

// View devuelve las posiciones agregadas por outcome.
func (s *Service) View(ctx context.Context) (domain.TrackerView, error) {
	raw, err := s.store.LeaderPositions(ctx)
	if err != nil {
		return domain.TrackerView{}, fmt.Errorf("tracker.View: %w", err)
	}
	reviews, err := s.store.TrackerReviews(ctx)
	if err != nil {
		return domain.TrackerView{}, fmt.Errorf("tracker.View: %w", err)
	}
	last, cutoff, err := s.store.TrackerState(ctx)
	if err != nil {
		return domain.TrackerView{}, fmt.Errorf("tracker.View: %w", err)
	}
	metrics.TrackedPositions.Set(float64(len(raw)))
	return domain.AggregatePositions(raw, reviews, last, cutoff), nil
}

// Review marca un outcome como revisado ahora.
func (s *Service) Review(ctx context.Context, key domain.MarkKey) error {
	return s.store.MarkReviewed(ctx, key, s.now())
}

// Run sondea de inmediato y luego por intervalo. Un poll con errores espera
// al menos errorBackoff antes del siguiente.
func (s *Service) Run(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	slog.Info("tracker started", "wallets", len(s.cfg.Wallets), "category", s.cfg.Category, "interval", interval)

	for {
		wait := interval
		n, err := s.PollOnce(ctx)
		switch {
		case ctx.Err() != nil:
			slog.Info("tracker stopped")
			return ctx.Err()
		case err != nil:
			slog.Warn("tracker poll finished with errors", "err", err)
			wait = max(interval, errorBackoff)
		default:
			slog.Info("tracker updated", "positions", n)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("tracker stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}
