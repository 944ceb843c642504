package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/shopspring/decimal"
)

// DefaultEquityTTL: el valor del portfolio de un leader cambia despacio
// comparado con el ritmo de trades.
const DefaultEquityTTL = 5 * time.Minute

// Equity implementa ports.LeaderEquityProvider con read-through sobre Backend.
type Equity struct {
	primary ports.LeaderEquityProvider
	backend Backend
	ttl     time.Duration
}

func NewEquity(primary ports.LeaderEquityProvider, backend Backend, ttl time.Duration) *Equity {
	if ttl <= 0 {
		ttl = DefaultEquityTTL
	}
	return &Equity{primary: primary, backend: backend, ttl: ttl}
}

// LeaderEquity lee de cache y si no está consulta la API. Un error del backend
// se degrada a consulta directa; un cero (desconocido) no se cachea.
func (e *Equity) LeaderEquity(ctx context.Context, wallet string) (decimal.Decimal, error) {
	key := equityKey(wallet)
	if v, ok, err := e.backend.Get(ctx, key); err != nil {
		slog.Warn("equity cache get failed", "wallet", wallet, "err", err)
	} else if ok {
		if d, err := decimal.NewFromString(v); err == nil {
			metrics.EquityLookups.WithLabelValues("cache").Inc()
			return d, nil
		}
	}

	d, err := e.primary.LeaderEquity(ctx, wallet)
	if err != nil {
		metrics.EquityLookups.WithLabelValues("error").Inc()
		return decimal.Zero, err
	}
	metrics.EquityLookups.WithLabelValues("api").Inc()

	if d.IsPositive() {
		if err := e.backend.Set(ctx, key, d.String(), e.ttl); err != nil {
			slog.Warn("equity cache set failed", "wallet", wallet, "err", err)
		}
	}
	return d, nil
}

func equityKey(wallet string) string { return "equity:" + domain.NormalizeWallet(wallet) }
