package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// FillExecutor mirrors a committed paper fill to the real CLOB.
// It never returns an error: failures are reported as ExecFailed results so the
// caller can persist them without touching the paper ledger.
type FillExecutor interface {
	SubmitFill(ctx context.Context, fill domain.Fill) domain.ExecutionResult
}

// OrderPlacer signs and posts a single order to the CLOB.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)
	IsNegRisk(ctx context.Context, tokenID string) (bool, error)
}

// GasChecker reports the native balance available to pay gas and the current
// network gas price in gwei.
type GasChecker interface {
	NativeBalance(ctx context.Context) (decimal.Decimal, error)
	GasPriceGwei(ctx context.Context) (decimal.Decimal, error)
}
