package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionKey identifies a follower position: one per market outcome per leader.
// Outcome uses "" as the canonical "unspecified" value.
type PositionKey struct {
	ConditionID string
	Outcome     string
	Leader      string
}

// NewPositionKey builds a normalized key.
func NewPositionKey(conditionID, outcome, leader string) PositionKey {
	return PositionKey{
		ConditionID: conditionID,
		Outcome:     NormalizeOutcome(outcome),
		Leader:      NormalizeWallet(leader),
	}
}

func (k PositionKey) String() string {
	if k.Outcome == "" {
		return k.ConditionID + "/" + k.Leader
	}
	return k.ConditionID + ":" + k.Outcome + "/" + k.Leader
}

// FollowerPosition is the follower's running position copied from one leader.
// Size is signed; AvgPrice is the VWAP of the entries that grew |Size|.
type FollowerPosition struct {
	Key       PositionKey
	Size      decimal.Decimal
	AvgPrice  decimal.Decimal
	UpdatedAt time.Time
}

// Notional returns Size × AvgPrice, the cost-basis exposure used for sizing.
func (p FollowerPosition) Notional() decimal.Decimal {
	return p.Size.Mul(p.AvgPrice)
}

// PositionChange is the outcome of applying one fill to a position.
// Next is nil when the position closed exactly to zero and must be deleted.
type PositionChange struct {
	Next     *FollowerPosition
	Realized decimal.Decimal
}

// Closed reports whether the position was fully closed by the fill.
func (c PositionChange) Closed() bool { return c.Next == nil }

// ApplyFill applies a follower fill to the previous position (nil if flat).
//
// Growing in the same direction blends the average price by volume. Reducing
// realizes (price - avg) × qty and keeps the average. Landing exactly on zero
// realizes the whole position and deletes it. Crossing zero in one step is an
// invariant violation: the sizing engine never requests more than the held size.
func ApplyFill(prev *FollowerPosition, key PositionKey, tradeID int64, side Side, size, price decimal.Decimal, ts time.Time) (PositionChange, error) {
	if !size.IsPositive() || !price.IsPositive() {
		return PositionChange{}, &InvariantError{
			TradeID: tradeID, Key: key,
			Detail: fmt.Sprintf("non-positive fill size=%s price=%s", size, price),
		}
	}

	signed := size.Mul(side.Sign())

	if prev == nil || prev.Size.IsZero() {
		return PositionChange{
			Next:     &FollowerPosition{Key: key, Size: signed, AvgPrice: price, UpdatedAt: ts},
			Realized: decimal.Zero,
		}, nil
	}

	prevSize, prevAvg := prev.Size, prev.AvgPrice
	combined := prevSize.Add(signed)

	switch {
	case combined.IsZero():
		if prevSize.Sign() == signed.Sign() {
			return PositionChange{}, &InvariantError{
				TradeID: tradeID, Key: key,
				Detail: fmt.Sprintf("zero-cross with same-sign sizes prev=%s fill=%s", prevSize, signed),
			}
		}
		return PositionChange{Realized: realize(prevSize, prevAvg, size, price)}, nil

	case prevSize.Sign() == combined.Sign() && prevSize.Sign() == signed.Sign():
		absPrev := prevSize.Abs()
		newAvg := prevAvg.Mul(absPrev).Add(price.Mul(size)).Div(absPrev.Add(size))
		return PositionChange{
			Next: &FollowerPosition{Key: key, Size: combined, AvgPrice: newAvg, UpdatedAt: ts},
		}, nil

	case prevSize.Sign() == combined.Sign():
		return PositionChange{
			Next:     &FollowerPosition{Key: key, Size: combined, AvgPrice: prevAvg, UpdatedAt: ts},
			Realized: realize(prevSize, prevAvg, size, price),
		}, nil

	default:
		return PositionChange{}, &InvariantError{
			TradeID: tradeID, Key: key,
			Detail: fmt.Sprintf("fill %s would flip position %s", signed, prevSize),
		}
	}
}

// realize returns (price - avg) × min(|size|, |prev|), signed by the direction
// of the position being reduced.
func realize(prevSize, prevAvg, size, price decimal.Decimal) decimal.Decimal {
	qty := decimal.Min(size.Abs(), prevSize.Abs())
	pnl := price.Sub(prevAvg).Mul(qty)
	if prevSize.IsNegative() {
		return pnl.Neg()
	}
	return pnl
}
