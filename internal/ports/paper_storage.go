package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// LedgerStore persists follower state. Every write that touches positions, cash
// or the cursor is a single transaction.
type LedgerStore interface {
	// LoadState returns the ledger state; ok is false before the first run.
	LoadState(ctx context.Context) (state domain.LedgerState, ok bool, err error)

	// InitState writes a fresh state together with its opening snapshot.
	InitState(ctx context.Context, state domain.LedgerState, snap domain.PortfolioSnapshot) error

	// Positions returns every open follower position.
	Positions(ctx context.Context) ([]domain.FollowerPosition, error)

	// ApplyTrade commits the outcome of one leader trade atomically: position
	// upsert or delete, fill, cash, realized and cursor. It returns
	// domain.ErrAlreadyApplied if the cursor is already at or past the trade.
	ApplyTrade(ctx context.Context, outcome domain.TradeOutcome) error

	// RecordRejection stores a refused trade. The cursor is not touched.
	RecordRejection(ctx context.Context, r domain.Rejection) error

	// AppendSnapshot appends a portfolio sample.
	AppendSnapshot(ctx context.Context, snap domain.PortfolioSnapshot) error

	// Reset wipes positions, fills and snapshots and starts a new epoch.
	Reset(ctx context.Context, state domain.LedgerState, snap domain.PortfolioSnapshot) error
}
