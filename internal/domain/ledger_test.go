package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLedgerState_Accepts(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := LedgerState{LastTradeID: 10, EpochStart: epoch}

	assert.True(t, s.Accepts(LeaderTrade{ID: 11, Timestamp: epoch}))
	assert.False(t, s.Accepts(LeaderTrade{ID: 10, Timestamp: epoch.Add(time.Hour)}))
	assert.False(t, s.Accepts(LeaderTrade{ID: 12, Timestamp: epoch.Add(-time.Second)}))
}

func TestCashDelta(t *testing.T) {
	assertDec(t, "-5", CashDelta(SideBuy, dec("10"), dec("0.5")))
	assertDec(t, "5", CashDelta(SideSell, dec("10"), dec("0.5")))
}

func TestValue_EquityIdentity(t *testing.T) {
	state := LedgerState{Cash: dec("900"), Realized: dec("3")}
	positions := []FollowerPosition{
		{Key: NewPositionKey("0xa", "Yes", "0x1"), Size: dec("100"), AvgPrice: dec("0.50")},
		{Key: NewPositionKey("0xb", "No", "0x1"), Size: dec("50"), AvgPrice: dec("0.20")},
	}
	marks := Marks{{ConditionID: "0xa", Outcome: "Yes"}: dec("0.60")}

	v := Value(state, positions, marks)

	// 0xb sin mark → usa avg
	assertDec(t, "70", v.PositionValue)
	assertDec(t, "10", v.Unrealized)
	assertDec(t, "970", v.Equity)
	assertDec(t, "3", v.Realized)

	snap := v.Snapshot(time.Unix(100, 0))
	assertDec(t, "970", snap.Equity)
	assertDec(t, "900", snap.Cash)
}

func TestValue_EmptyPortfolio(t *testing.T) {
	v := Value(NewLedgerState(dec("100000"), 0, time.Now()), nil, nil)
	assertDec(t, "100000", v.Equity)
	assert.True(t, v.Unrealized.IsZero())
}

func TestPerLeaderAllocation(t *testing.T) {
	assertDec(t, "25000", PerLeaderAllocation(dec("100000"), 4))
	assert.True(t, PerLeaderAllocation(dec("100000"), 0).IsZero())
}

func TestLeaderTrade_Validate(t *testing.T) {
	tr := leaderTrade(SideBuy, "10", "0.5")
	assert.NoError(t, tr.Validate())

	bad := tr
	bad.Price = dec("1.2")
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTrade)

	bad = tr
	bad.Size = dec("0")
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTrade)

	assert.Equal(t, SideSell, ParseSide("sell"))
	assert.Equal(t, SideBuy, ParseSide("BUY"))
}
