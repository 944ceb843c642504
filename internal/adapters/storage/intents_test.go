package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIntents_OnePerTradeAndRule(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	_, err := db.InsertLeaderTrades(ctx, []domain.LeaderTrade{
		makeTrade("0x1", domain.SideBuy, "10", "0.40", t0),
		makeTrade("0x2", domain.SideSell, "10", "0.50", t0.Add(time.Minute)),
	})
	require.NoError(t, err)

	intent := func(tradeID int64, rule string) domain.CopyIntent {
		return domain.CopyIntent{
			LeaderTradeID: tradeID, Wallet: "0xleader", ConditionID: "0xcond", Side: domain.SideBuy,
			DesiredSize: d("50"), DesiredNotional: d("20"), RuleLabel: rule, CreatedAt: t0,
		}
	}

	n, err := db.InsertIntents(ctx, []domain.CopyIntent{intent(1, "copy"), intent(1, "counter"), intent(2, "copy")})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = db.InsertIntents(ctx, []domain.CopyIntent{intent(1, "copy"), intent(2, "counter")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := db.Intents(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	copies, err := db.Intents(ctx, "copy", 10)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	assert.Equal(t, int64(2), copies[0].LeaderTradeID)
	assert.Equal(t, domain.IntentIntended, copies[0].Status)
	assert.True(t, d("50").Equal(copies[0].DesiredSize))
}

func TestMarketCategories(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertMarkets(ctx, []domain.Market{
		{ConditionID: "0xa", Category: "Sports"},
		{ConditionID: "0xb"},
	}))

	cats, err := db.MarketCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0xa": "Sports"}, cats)
}
