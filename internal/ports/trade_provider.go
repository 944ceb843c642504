package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// TradeSource obtiene el histórico de trades de un leader desde la Data API.
type TradeSource interface {
	// FetchLeaderTrades devuelve los trades taker de wallet con timestamp >= since,
	// paginando hasta agotar resultados o el límite de páginas. El orden es el
	// de la API: del más nuevo al más viejo.
	FetchLeaderTrades(ctx context.Context, wallet string, since time.Time) ([]domain.LeaderTrade, error)
}

// LiveFeed pushes leader trades as they happen.
type LiveFeed interface {
	// Run blocks until ctx is cancelled, reconnecting on failure. Every trade of a
	// tracked wallet is passed to handle in arrival order.
	Run(ctx context.Context, handle func(context.Context, domain.LeaderTrade)) error
}

// LeaderEquityProvider returns a wallet's total portfolio value in USDC.
// Zero means unknown.
type LeaderEquityProvider interface {
	LeaderEquity(ctx context.Context, wallet string) (decimal.Decimal, error)
}
