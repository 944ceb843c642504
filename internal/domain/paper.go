package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is an immutable record of a simulated follower execution.
// There is exactly one Fill per leader trade that sized to a non-zero copy.
type Fill struct {
	ID             int64
	SourceTradeID  int64
	Leader         string
	ConditionID    string
	Outcome        string
	Asset          string
	Side           Side
	Price          decimal.Decimal
	Size           decimal.Decimal
	SignedNotional decimal.Decimal // +size×price on BUY, -size×price on SELL
	Timestamp      time.Time       // leader trade time
	RuleLabel      string
	CreatedAt      time.Time
}

// NewFill builds the fill for a sized leader trade.
func NewFill(t LeaderTrade, d SizingDecision, ruleLabel string, now time.Time) Fill {
	return Fill{
		SourceTradeID:  t.ID,
		Leader:         NormalizeWallet(t.Wallet),
		ConditionID:    t.ConditionID,
		Outcome:        NormalizeOutcome(t.Outcome),
		Asset:          t.Asset,
		Side:           t.Side,
		Price:          d.FillPrice,
		Size:           d.CopySize,
		SignedNotional: d.CopySize.Mul(d.FillPrice).Mul(t.Side.Sign()),
		Timestamp:      t.Timestamp,
		RuleLabel:      ruleLabel,
		CreatedAt:      now,
	}
}

// TradeOutcome is what the ledger commits for one leader trade, in one unit:
// the cursor always advances to TradeID; the rest is present only for fills.
type TradeOutcome struct {
	TradeID  int64
	Skip     SkipReason
	Fill     *Fill
	Change   PositionChange
	Key      PositionKey
	State    LedgerState // state after applying the trade
	Realized decimal.Decimal
}

// Filled reports whether the outcome carries a fill.
func (o TradeOutcome) Filled() bool { return o.Fill != nil }

// Rejection records a trade the ledger refused, kept for operator inspection.
type Rejection struct {
	TradeID    int64
	Reason     string
	RejectedAt time.Time
}

// PositionView is a read-model row for dashboards: a position with its mark.
type PositionView struct {
	Leader      string
	ConditionID string
	Outcome     string
	Title       string
	Size        decimal.Decimal
	AvgPrice    decimal.Decimal
	MarkPrice   decimal.Decimal
	Notional    decimal.Decimal
	Unrealized  decimal.Decimal
	UpdatedAt   time.Time
}

// LeaderSummary aggregates open positions and P&L copied from one leader.
type LeaderSummary struct {
	Leader     string
	Positions  int
	Notional   decimal.Decimal
	Value      decimal.Decimal
	Unrealized decimal.Decimal
	Realized   decimal.Decimal
}

// FillView is a fill joined with its market title.
type FillView struct {
	Fill
	Title string
}

// RunSummary describes one ledger batch.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Processed   int
	Filled      int
	Skips       map[SkipReason]int
	LastTradeID int64
	Fills       []Fill
	Rejected    *Rejection
	Valuation   Valuation
}

// Skipped returns how many trades advanced the cursor without a fill.
func (s RunSummary) Skipped() int {
	n := 0
	for _, c := range s.Skips {
		n += c
	}
	return n
}
