package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SizeMode selects how the target notional of a copy is computed.
type SizeMode string

const (
	// SizeLeaderPct copies the fraction of the leader's portfolio the trade represents.
	SizeLeaderPct SizeMode = "LEADER_PCT"
	// SizeFixed copies the leader notional, capped per trade.
	SizeFixed SizeMode = "FIXED"
)

// ParseSizeMode validates a configured size mode.
func ParseSizeMode(s string) (SizeMode, error) {
	switch SizeMode(strings.ToUpper(strings.TrimSpace(s))) {
	case SizeLeaderPct:
		return SizeLeaderPct, nil
	case SizeFixed:
		return SizeFixed, nil
	}
	return "", fmt.Errorf("unknown size mode %q (want LEADER_PCT or FIXED)", s)
}

// DefaultFallbackFraction is used under LEADER_PCT when the leader's equity is unknown.
var DefaultFallbackFraction = decimal.NewFromFloat(0.10)

// SizingPolicy is the static configuration of the sizing engine.
type SizingPolicy struct {
	Mode             SizeMode
	SlippageBps      decimal.Decimal
	FixedCapPerTrade decimal.Decimal // <= 0 means uncapped
	FallbackFraction decimal.Decimal
}

// SizingInput is everything the engine needs to size one leader trade.
type SizingInput struct {
	Trade               LeaderTrade
	PerLeaderAllocation decimal.Decimal // follower equity / number of leaders
	Exposure            decimal.Decimal // signed notional (size × avg) held for this leader+market
	HeldSize            decimal.Decimal // signed size held for this leader+market
	Cash                decimal.Decimal
	LeaderEquity        decimal.Decimal // only read under LEADER_PCT; <= 0 means unknown
}

// SkipReason explains why a trade sized to nothing. Empty means filled.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipAllocationFull  SkipReason = "allocation_full"
	SkipNoPosition      SkipReason = "no_position"
	SkipNoCash          SkipReason = "no_cash"
	SkipZeroTarget      SkipReason = "zero_target"
	SkipUntrackedLeader SkipReason = "untracked_leader"
	SkipBeforeEpoch     SkipReason = "before_epoch"
	SkipInvalidTrade    SkipReason = "invalid_trade"
)

// SizingDecision is the output of the sizing engine.
type SizingDecision struct {
	FillPrice       decimal.Decimal
	TargetNotional  decimal.Decimal
	DesiredNotional decimal.Decimal
	CopySize        decimal.Decimal
	Skip            SkipReason
}

// Skipped reports whether no fill should be produced.
func (d SizingDecision) Skipped() bool { return d.Skip != SkipNone }

var (
	bpsDenominator = decimal.NewFromInt(10000)
	one            = decimal.NewFromInt(1)
)

// FillPrice applies slippage against the follower: BUY pays more, SELL receives less.
func (p SizingPolicy) FillPrice(side Side, price decimal.Decimal) decimal.Decimal {
	slip := p.SlippageBps.Div(bpsDenominator)
	if side == SideSell {
		return price.Mul(one.Sub(slip))
	}
	return price.Mul(one.Add(slip))
}

// Size maps a leader trade into a follower fill. It never lets the exposure
// copied from one leader exceed PerLeaderAllocation, never spends more cash than
// available, and never sells more than is held.
func (p SizingPolicy) Size(in SizingInput) SizingDecision {
	t := in.Trade
	d := SizingDecision{FillPrice: p.FillPrice(t.Side, t.Price)}

	leaderNotional := t.Notional()
	switch p.Mode {
	case SizeFixed:
		d.TargetNotional = leaderNotional
		if p.FixedCapPerTrade.IsPositive() {
			d.TargetNotional = decimal.Min(leaderNotional, p.FixedCapPerTrade)
		}
	default:
		fraction := p.FallbackFraction
		if fraction.IsZero() {
			fraction = DefaultFallbackFraction
		}
		if in.LeaderEquity.IsPositive() {
			fraction = leaderNotional.Div(in.LeaderEquity)
		}
		d.TargetNotional = fraction.Mul(in.PerLeaderAllocation)
	}

	if !d.TargetNotional.IsPositive() {
		d.Skip = SkipZeroTarget
		return d
	}

	if t.Side == SideBuy {
		available := in.PerLeaderAllocation.Sub(in.Exposure)
		desired := clamp(d.TargetNotional, available)
		if !desired.IsPositive() {
			d.Skip = SkipAllocationFull
			return d
		}
		if !in.Cash.IsPositive() {
			d.Skip = SkipNoCash
			return d
		}
		d.DesiredNotional = decimal.Min(desired, in.Cash)
		d.CopySize = buySize(d.DesiredNotional, d.FillPrice)
		return d
	}

	held := in.HeldSize
	if !held.IsPositive() {
		d.Skip = SkipNoPosition
		return d
	}
	desired := clamp(d.TargetNotional, in.Exposure.Abs())
	if !desired.IsPositive() {
		d.Skip = SkipNoPosition
		return d
	}
	d.DesiredNotional = desired
	d.CopySize = desired.Div(d.FillPrice)
	// Exposure is measured at cost basis but converted at the fill price, so a
	// full exit can overshoot the held size; close exactly instead.
	if d.CopySize.GreaterThanOrEqual(held) {
		d.CopySize = held
	}
	return d
}

// buySize convierte notional en shares sin pasarse: Div redondea a
// DivisionPrecision decimales y un BUY nunca puede costar más que notional.
func buySize(notional, price decimal.Decimal) decimal.Decimal {
	size := notional.Div(price)
	if size.Mul(price).GreaterThan(notional) {
		size = size.Sub(decimal.New(1, -int32(decimal.DivisionPrecision)))
	}
	return size
}

// clamp bounds v to [0, hi].
func clamp(v, hi decimal.Decimal) decimal.Decimal {
	if hi.IsNegative() {
		hi = decimal.Zero
	}
	v = decimal.Min(v, hi)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
