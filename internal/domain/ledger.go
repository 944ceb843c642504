package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerState is the process-wide follower state. It is persisted atomically
// together with every position mutation.
type LedgerState struct {
	Cash        decimal.Decimal
	Realized    decimal.Decimal
	LastTradeID int64
	EpochStart  time.Time
}

// NewLedgerState returns the state of a fresh epoch.
func NewLedgerState(startEquity decimal.Decimal, lastTradeID int64, now time.Time) LedgerState {
	return LedgerState{
		Cash:        startEquity,
		Realized:    decimal.Zero,
		LastTradeID: lastTradeID,
		EpochStart:  now,
	}
}

// Accepts reports whether a trade belongs to the pending set: after the cursor
// and inside the current epoch.
func (s LedgerState) Accepts(t LeaderTrade) bool {
	return t.ID > s.LastTradeID && !t.Timestamp.Before(s.EpochStart)
}

// CashDelta is the cash movement of a follower fill: BUY spends, SELL receives.
func CashDelta(side Side, size, price decimal.Decimal) decimal.Decimal {
	return size.Mul(price).Mul(side.Sign()).Neg()
}

// MarkKey identifies a mark price: the latest observed trade price for a market outcome.
type MarkKey struct {
	ConditionID string
	Outcome     string
}

// Marks maps market outcomes to their latest observed trade price.
type Marks map[MarkKey]decimal.Decimal

// For returns the mark for a position, falling back to its average price.
func (m Marks) For(p FollowerPosition) decimal.Decimal {
	if px, ok := m[MarkKey{ConditionID: p.Key.ConditionID, Outcome: p.Key.Outcome}]; ok {
		return px
	}
	return p.AvgPrice
}

// Valuation is a point-in-time view of the follower portfolio.
type Valuation struct {
	Cash          decimal.Decimal
	PositionValue decimal.Decimal
	Unrealized    decimal.Decimal
	Realized      decimal.Decimal
	Equity        decimal.Decimal
}

// Value computes equity = cash + Σ size×mark and unrealized = Σ size×(mark-avg).
func Value(state LedgerState, positions []FollowerPosition, marks Marks) Valuation {
	v := Valuation{
		Cash:          state.Cash,
		Realized:      state.Realized,
		PositionValue: decimal.Zero,
		Unrealized:    decimal.Zero,
	}
	for _, p := range positions {
		mark := marks.For(p)
		v.PositionValue = v.PositionValue.Add(p.Size.Mul(mark))
		v.Unrealized = v.Unrealized.Add(p.Size.Mul(mark.Sub(p.AvgPrice)))
	}
	v.Equity = v.Cash.Add(v.PositionValue)
	return v
}

// Snapshot converts the valuation into a time-series point.
func (v Valuation) Snapshot(at time.Time) PortfolioSnapshot {
	return PortfolioSnapshot{
		Timestamp:  at,
		Equity:     v.Equity,
		Cash:       v.Cash,
		Unrealized: v.Unrealized,
		Realized:   v.Realized,
	}
}

// PortfolioSnapshot is an append-only sample of the follower portfolio.
type PortfolioSnapshot struct {
	ID         int64
	Timestamp  time.Time
	Equity     decimal.Decimal
	Cash       decimal.Decimal
	Unrealized decimal.Decimal
	Realized   decimal.Decimal
}

// PerLeaderAllocation splits follower equity evenly across leaders.
func PerLeaderAllocation(equity decimal.Decimal, leaders int) decimal.Decimal {
	if leaders <= 0 {
		return decimal.Zero
	}
	return equity.Div(decimal.NewFromInt(int64(leaders)))
}
