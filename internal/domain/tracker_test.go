package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderPosition_EnrichAndCategory(t *testing.T) {
	p := LeaderPosition{ConditionID: "0xc", Title: "kept"}
	p.Enrich(Market{Title: "gamma", Slug: "slug", Category: "Sports"})
	assert.Equal(t, "kept", p.Title)
	assert.Equal(t, "slug", p.Slug)
	assert.Equal(t, "sports", p.Category)

	assert.True(t, p.InCategory("SPORTS"))
	assert.False(t, p.InCategory("politics"))
	assert.True(t, LeaderPosition{}.InCategory("sports"), "unknown category is kept")
}

func TestAggregatePositions(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := t0.Add(time.Hour)
	raw := []LeaderPosition{
		{Wallet: "0xA", ConditionID: "0xc1", Outcome: "Yes", Size: dec("100"), CurPrice: dec("0.40"),
			CurrentValue: dec("40"), Title: "Game 1", UpdatedAt: t0, FirstSeenAt: t0},
		{Wallet: "0xB", ConditionID: "0xc1", Outcome: "Yes", Size: dec("50"), CurPrice: dec("0.50"),
			CurrentValue: dec("25"), UpdatedAt: t0.Add(3 * time.Hour), FirstSeenAt: t0.Add(2 * time.Hour)},
		{Wallet: "0xA", ConditionID: "0xc2", Outcome: "No", Size: dec("500"), CurPrice: dec("0.30"),
			CurrentValue: dec("150"), FirstSeenAt: t0.Add(2 * time.Hour)},
		{Wallet: "0xC", ConditionID: "0xc3", Outcome: "Yes", Size: dec("10"), CurPrice: dec("0.90"),
			CurrentValue: dec("9"), FirstSeenAt: t0.Add(2 * time.Hour)},
	}
	reviews := map[MarkKey]time.Time{
		{ConditionID: "0xc3", Outcome: "Yes"}: t0.Add(4 * time.Hour),
	}

	view := AggregatePositions(raw, reviews, t0.Add(5*time.Hour), cutoff)
	require.Len(t, view.Positions, 3)

	// ordenadas por valor
	top := view.Positions[0]
	assert.Equal(t, "0xc2", top.ConditionID)
	assert.True(t, top.Unread)

	game := view.Positions[1]
	assert.Equal(t, "0xc1", game.ConditionID)
	assert.Equal(t, "Game 1", game.Title)
	assertDec(t, "150", game.TotalSize)
	assertDec(t, "65", game.TotalUSD)
	assertDec(t, "0.45", game.MarkPrice)
	assert.Equal(t, 2, game.WalletCount)
	assert.Equal(t, []string{"0xa", "0xb"}, game.Holders)
	assert.True(t, game.FirstSeen.Equal(t0))
	assert.True(t, game.LastUpdated.Equal(t0.Add(3*time.Hour)))
	assert.False(t, game.Unread, "first seen before the cutoff")

	reviewed := view.Positions[2]
	assert.True(t, reviewed.Reviewed)
	assert.False(t, reviewed.Unread)

	assert.Equal(t, 1, view.Unread)
}

func TestAggregatePositions_NoCutoffMeansNothingUnread(t *testing.T) {
	view := AggregatePositions([]LeaderPosition{
		{Wallet: "0xa", ConditionID: "0xc", CurPrice: dec("0.5"), FirstSeenAt: time.Now()},
	}, nil, time.Time{}, time.Time{})
	require.Len(t, view.Positions, 1)
	assert.False(t, view.Positions[0].Unread)
	assert.Zero(t, view.Unread)
}
