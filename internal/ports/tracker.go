package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// PositionSource obtiene las posiciones abiertas de un leader.
type PositionSource interface {
	FetchLeaderPositions(ctx context.Context, wallet string, sizeThreshold decimal.Decimal) ([]domain.LeaderPosition, error)
}

// TrackerStore guarda el último estado conocido de las posiciones de leaders.
type TrackerStore interface {
	MarketStore

	// ReplaceLeaderPositions sustituye las posiciones de wallet, conservando
	// first seen de las que ya existían.
	ReplaceLeaderPositions(ctx context.Context, wallet string, positions []domain.LeaderPosition, now time.Time) error
	// SeedFirstSeenCutoff fija el cutoff de "no leído" si aún no existe.
	SeedFirstSeenCutoff(ctx context.Context, at time.Time) error
	TrackerState(ctx context.Context) (lastSuccess, cutoff time.Time, err error)
	LeaderPositions(ctx context.Context) ([]domain.LeaderPosition, error)
	TrackerReviews(ctx context.Context) (map[domain.MarkKey]time.Time, error)
	MarkReviewed(ctx context.Context, key domain.MarkKey, at time.Time) error
}

// TrackerReader es la vista agregada que sirve el dashboard.
type TrackerReader interface {
	View(ctx context.Context) (domain.TrackerView, error)
}

// IntentStore guarda los intents generados por reglas de seguimiento.
type IntentStore interface {
	InsertIntents(ctx context.Context, intents []domain.CopyIntent) (int, error)
	MarketCategories(ctx context.Context) (map[string]string, error)
}
