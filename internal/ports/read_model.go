package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// ReadModel is the read-only view used by dashboards and reports.
// Reads never block the ledger writer.
type ReadModel interface {
	LoadState(ctx context.Context) (domain.LedgerState, bool, error)
	Positions(ctx context.Context) ([]domain.FollowerPosition, error)
	LatestMarks(ctx context.Context) (domain.Marks, error)
	MarketTitles(ctx context.Context) (map[string]string, error)
	Fills(ctx context.Context, side domain.Side, limit int) ([]domain.FillView, error)
	EquitySeries(ctx context.Context, intervalSec int64, limit int) ([]domain.PortfolioSnapshot, error)
	LatestSnapshot(ctx context.Context) (domain.PortfolioSnapshot, bool, error)
	Rejections(ctx context.Context, limit int) ([]domain.Rejection, error)
	LiveFills(ctx context.Context, limit int) ([]domain.LiveFill, error)
	MaxTradeID(ctx context.Context) (int64, error)
	RealizedByLeader(ctx context.Context) (map[string]decimal.Decimal, error)
}
