// Package ingest alimenta el trade log: polling paginado de la Data API por
// wallet y trades empujados por el feed en vivo. Ambos caminos insertan con
// dedup por clave natural, así que pueden solaparse sin duplicar.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const (
	sourcePoll = "poll"
	sourceRTDS = "rtds"
)

// Store es la parte del storage que usa el ingest.
type Store interface {
	ports.TradeLog
	ports.MarketStore
}

// Config controla el polling.
type Config struct {
	Wallets      []string
	PollInterval time.Duration
	// Historical: una wallet sin trades guardados se descarga desde el
	// principio. Si es false, empieza en el arranque del servicio.
	Historical bool
	Workers    int // descargas en paralelo, <= 0 usa el default
}

// Service inserta trades de leaders en el trade log y avisa al ledger.
type Service struct {
	cfg     Config
	source  ports.TradeSource
	markets ports.MarketProvider
	store   Store
	onNew   func()
	started time.Time
}

// NewService crea el servicio. markets puede ser nil (sin enriquecimiento) y
// onNew se llama cada vez que entran trades nuevos.
func NewService(cfg Config, source ports.TradeSource, markets ports.MarketProvider, store Store, onNew func()) *Service {
	wallets := make([]string, 0, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		if w = domain.NormalizeWallet(w); w != "" {
			wallets = append(wallets, w)
		}
	}
	cfg.Wallets = wallets
	if onNew == nil {
		onNew = func() {}
	}
	return &Service{
		cfg:     cfg,
		source:  source,
		markets: markets,
		store:   store,
		onNew:   onNew,
		started: time.Now(),
	}
}

// PollOnce sincroniza todas las wallets una vez. Un fallo en una wallet no
// impide las demás; los errores se devuelven juntos.
func (s *Service) PollOnce(ctx context.Context) (int, error) {
	var errs []error
	fail := func(wallet string, err error) {
		metrics.IngestErrors.WithLabelValues(sourcePoll).Inc()
		slog.Warn("ingest wallet failed", "wallet", wallet, "err", err)
		errs = append(errs, err)
	}

	jobs := make([]fetchJob, 0, len(s.cfg.Wallets))
	for _, wallet := range s.cfg.Wallets {
		since, err := s.store.LatestTradeTime(ctx, wallet)
		if err != nil {
			fail(wallet, fmt.Errorf("ingest.PollOnce: %s: latest trade: %w", wallet, err))
			continue
		}
		if since.IsZero() && !s.cfg.Historical {
			since = s.started
		}
		jobs = append(jobs, fetchJob{index: len(jobs), wallet: wallet, since: since})
	}
	if len(jobs) == 0 {
		return 0, errors.Join(errs...)
	}

	var batch []domain.LeaderTrade
	for _, r := range fetchConcurrent(ctx, s.source, jobs, s.cfg.Workers) {
		if r.err != nil {
			fail(r.wallet, fmt.Errorf("ingest.PollOnce: %s: %w", r.wallet, r.err))
			continue
		}
		from := "beginning"
		if !r.since.IsZero() {
			from = r.since.UTC().Format(time.RFC3339)
		}
		slog.Info("fetched trades", "wallet", r.wallet, "count", len(r.trades), "since", from)
		batch = append(batch, newestLast(r.trades)...)
	}
	if len(batch) == 0 {
		return 0, errors.Join(errs...)
	}

	// Los ids del trade log fijan el orden en que el ledger aplica: tienen
	// que crecer con el timestamp, también entre wallets.
	slices.SortStableFunc(batch, func(a, b domain.LeaderTrade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	n, err := s.store.InsertLeaderTrades(ctx, batch)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(sourcePoll).Inc()
		errs = append(errs, fmt.Errorf("ingest.PollOnce: insert: %w", err))
		return 0, errors.Join(errs...)
	}
	metrics.TradesIngested.WithLabelValues(sourcePoll).Add(float64(n))
	slog.Info("synced trades", "fetched", len(batch), "new", n)
	s.enrich(ctx, batch)

	if n > 0 {
		s.onNew()
	}
	return n, errors.Join(errs...)
}

// newestLast invierte una página de la Data API, que llega del más nuevo al
// más viejo, para que los trades con el mismo timestamp queden en orden de
// ejecución tras el sort estable.
func newestLast(trades []domain.LeaderTrade) []domain.LeaderTrade {
	out := slices.Clone(trades)
	slices.Reverse(out)
	return out
}

// HandleLive inserta un trade del feed en vivo. Es el handler de LiveFeed.Run.
func (s *Service) HandleLive(ctx context.Context, t domain.LeaderTrade) {
	n, err := s.store.InsertLeaderTrades(ctx, []domain.LeaderTrade{t})
	if err != nil {
		metrics.IngestErrors.WithLabelValues(sourceRTDS).Inc()
		slog.Warn("live trade insert failed", "wallet", t.Wallet, "tx", t.TxHash, "err", err)
		return
	}
	if n == 0 {
		return // ya lo trajo el poller
	}
	metrics.TradesIngested.WithLabelValues(sourceRTDS).Add(float64(n))
	slog.Debug("live trade stored", "wallet", t.Wallet, "market", t.ConditionID, "side", t.Side)
	s.enrich(ctx, []domain.LeaderTrade{t})
	s.onNew()
}

// enrich guarda metadata de mercados que aún no conocemos. Es best effort:
// los títulos solo se usan en reportes.
func (s *Service) enrich(ctx context.Context, trades []domain.LeaderTrade) {
	if s.markets == nil || len(trades) == 0 {
		return
	}
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		ids = append(ids, t.ConditionID)
	}
	missing, err := s.store.MissingMarkets(ctx, ids)
	if err != nil {
		slog.Warn("market lookup failed", "err", err)
		return
	}
	if len(missing) == 0 {
		return
	}
	found, err := s.markets.FetchMarkets(ctx, missing)
	if err != nil {
		slog.Warn("market enrichment failed", "missing", len(missing), "err", err)
		return
	}
	if len(found) == 0 {
		return
	}
	markets := make([]domain.Market, 0, len(found))
	for _, m := range found {
		markets = append(markets, m)
	}
	if err := s.store.UpsertMarkets(ctx, markets); err != nil {
		slog.Warn("market upsert failed", "err", err)
		return
	}
	slog.Debug("markets enriched", "count", len(markets))
}

// Run hace un poll inmediato y luego uno por intervalo hasta que ctx se cancela.
func (s *Service) Run(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("ingest started", "wallets", len(s.cfg.Wallets), "interval", interval, "historical", s.cfg.Historical)
	for {
		if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("poll finished with errors", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("ingest stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
