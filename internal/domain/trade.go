package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade as reported by the venue.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normaliza el side de la API. Cualquier cosa que no sea SELL es BUY,
// igual que hace la Data API con trades taker.
func ParseSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), string(SideSell)) {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// LeaderTrade is an observed trade of a leader wallet, as stored in the trade log.
// ID is assigned by the trade log on insert and is strictly increasing.
type LeaderTrade struct {
	ID          int64
	Wallet      string // lowercase proxy wallet
	TxHash      string
	ConditionID string
	Asset       string // CLOB token id, needed to mirror the trade live
	Outcome     string // "" when the source did not report one
	Side        Side
	Size        decimal.Decimal
	Price       decimal.Decimal
	Timestamp   time.Time
	MarketSlug  string
	MarketTitle string
}

// Notional returns size × price of the leader trade.
func (t LeaderTrade) Notional() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// Key returns the position key this trade mutates.
func (t LeaderTrade) Key() PositionKey {
	return NewPositionKey(t.ConditionID, t.Outcome, t.Wallet)
}

// Validate checks the invariants of a trade before it reaches the ledger:
// size > 0 and price in (0, 1].
func (t LeaderTrade) Validate() error {
	if t.Wallet == "" || t.ConditionID == "" {
		return fmt.Errorf("%w: trade %d missing wallet or market", ErrInvalidTrade, t.ID)
	}
	if !t.Size.IsPositive() {
		return fmt.Errorf("%w: trade %d size %s", ErrInvalidTrade, t.ID, t.Size)
	}
	if !t.Price.IsPositive() || t.Price.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: trade %d price %s", ErrInvalidTrade, t.ID, t.Price)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("%w: trade %d side %q", ErrInvalidTrade, t.ID, t.Side)
	}
	return nil
}

// NormalizeWallet lowercases and trims a wallet address.
func NormalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

// NormalizeOutcome maps a missing outcome to the empty-string sentinel.
func NormalizeOutcome(o string) string {
	return strings.TrimSpace(o)
}
