package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// TradeLog is the append-only log of observed leader trades.
type TradeLog interface {
	// InsertLeaderTrades stores trades, ignoring duplicates of the natural key.
	// It returns how many rows were new.
	InsertLeaderTrades(ctx context.Context, trades []domain.LeaderTrade) (int, error)

	// LatestTradeTime returns the newest stored timestamp for wallet (zero if none).
	LatestTradeTime(ctx context.Context, wallet string) (time.Time, error)

	// PendingTrades returns trades with id > afterID and timestamp >= since,
	// ascending by id, at most limit rows (limit <= 0 means all).
	PendingTrades(ctx context.Context, afterID int64, since time.Time, limit int) ([]domain.LeaderTrade, error)

	// LatestMarks returns the latest observed trade price per market outcome.
	LatestMarks(ctx context.Context) (domain.Marks, error)

	// MaxTradeID returns the highest trade id in the log (0 if empty).
	MaxTradeID(ctx context.Context) (int64, error)
}

// MarketStore caches Gamma metadata.
type MarketStore interface {
	MissingMarkets(ctx context.Context, conditionIDs []string) ([]string, error)
	UpsertMarkets(ctx context.Context, markets []domain.Market) error
}
