package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the outcome of a live submission request.
type ExecutionStatus string

const (
	ExecPosted   ExecutionStatus = "POSTED"
	ExecDryRun   ExecutionStatus = "DRY_RUN"
	ExecDisabled ExecutionStatus = "DISABLED"
	ExecFailed   ExecutionStatus = "FAILED"
)

// ExecutionResult is reported back by the live executor. The ledger records it
// but never retries or rolls back on FAILED.
type ExecutionResult struct {
	Status      ExecutionStatus
	Reference   string // CLOB order id, or a local reference for non-posted results
	Error       string
	Fee         decimal.Decimal
	SubmittedAt time.Time
}

// LiveFill is the persisted record of a live submission for a paper fill.
type LiveFill struct {
	ID            int64
	SourceTradeID int64
	Leader        string
	ConditionID   string
	Asset         string
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	Notional      decimal.Decimal
	Result        ExecutionResult
	CreatedAt     time.Time
}

// NewLiveFill pairs a paper fill with the executor's result.
func NewLiveFill(f Fill, r ExecutionResult, now time.Time) LiveFill {
	return LiveFill{
		SourceTradeID: f.SourceTradeID,
		Leader:        f.Leader,
		ConditionID:   f.ConditionID,
		Asset:         f.Asset,
		Side:          f.Side,
		Price:         f.Price,
		Size:          f.Size,
		Notional:      f.Size.Mul(f.Price),
		Result:        r,
		CreatedAt:     now,
	}
}

// PlaceOrderRequest is a signed-order request for the CLOB.
type PlaceOrderRequest struct {
	TokenID string
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal // shares
	NegRisk bool
}

// PlacedOrder is the CLOB response to a posted order.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string
	TakenAmount float64
	MadeAmount  float64
}
