package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initLedger(t *testing.T, ctx context.Context, db interface {
	InitState(context.Context, domain.LedgerState, domain.PortfolioSnapshot) error
}) domain.LedgerState {
	t.Helper()
	st := domain.NewLedgerState(d("1000"), 0, t0)
	snap := domain.Value(st, nil, nil).Snapshot(t0)
	require.NoError(t, db.InitState(ctx, st, snap))
	return st
}

func buyOutcome(st domain.LedgerState, tradeID int64, size, price string) domain.TradeOutcome {
	key := domain.NewPositionKey("0xcond", "Yes", "0xleader")
	ch, _ := domain.ApplyFill(nil, key, tradeID, domain.SideBuy, d(size), d(price), t0)
	fill := domain.Fill{
		SourceTradeID:  tradeID,
		Leader:         "0xleader",
		ConditionID:    "0xcond",
		Outcome:        "Yes",
		Side:           domain.SideBuy,
		Price:          d(price),
		Size:           d(size),
		SignedNotional: d(size).Mul(d(price)),
		Timestamp:      t0,
		CreatedAt:      t0,
	}
	st.Cash = st.Cash.Add(domain.CashDelta(domain.SideBuy, d(size), d(price)))
	st.LastTradeID = tradeID
	return domain.TradeOutcome{TradeID: tradeID, Fill: &fill, Change: ch, Key: key, State: st}
}

func TestInitState_Idempotent(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	_, ok, err := db.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	initLedger(t, ctx, db)
	// segunda vez no pisa
	other := domain.NewLedgerState(d("5"), 0, t0)
	require.NoError(t, db.InitState(ctx, other, domain.PortfolioSnapshot{}))

	st, ok, err := db.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d("1000").Equal(st.Cash))
	assert.True(t, st.EpochStart.Equal(t0))

	snap, ok, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d("1000").Equal(snap.Equity))
}

func TestApplyTrade_CommitsAtomically(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	st := initLedger(t, ctx, db)

	o := buyOutcome(st, 1, "100", "0.40")
	require.NoError(t, db.ApplyTrade(ctx, o))

	got, _, err := db.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LastTradeID)
	assert.True(t, d("960").Equal(got.Cash))

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, d("100").Equal(positions[0].Size))
	assert.Equal(t, "Yes", positions[0].Key.Outcome)

	fills, err := db.Fills(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(1), fills[0].SourceTradeID)
}

func TestApplyTrade_AlreadyApplied(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	st := initLedger(t, ctx, db)

	o := buyOutcome(st, 3, "100", "0.40")
	require.NoError(t, db.ApplyTrade(ctx, o))

	err := db.ApplyTrade(ctx, o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyApplied))

	// nada se duplicó
	fills, err := db.Fills(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestApplyTrade_SkipOnlyAdvancesCursor(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	st := initLedger(t, ctx, db)

	st.LastTradeID = 7
	require.NoError(t, db.ApplyTrade(ctx, domain.TradeOutcome{TradeID: 7, Skip: domain.SkipNoPosition, State: st}))

	got, _, err := db.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.LastTradeID)
	assert.True(t, d("1000").Equal(got.Cash))

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestApplyTrade_CloseDeletesPosition(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	st := initLedger(t, ctx, db)

	open := buyOutcome(st, 1, "100", "0.40")
	require.NoError(t, db.ApplyTrade(ctx, open))

	key := open.Key
	ch, err := domain.ApplyFill(open.Change.Next, key, 2, domain.SideSell, d("100"), d("0.50"), t0)
	require.NoError(t, err)
	require.True(t, ch.Closed())

	next := open.State
	next.Cash = next.Cash.Add(domain.CashDelta(domain.SideSell, d("100"), d("0.50")))
	next.Realized = next.Realized.Add(ch.Realized)
	next.LastTradeID = 2
	fill := *open.Fill
	fill.SourceTradeID = 2
	fill.Side = domain.SideSell
	fill.Price = d("0.50")
	require.NoError(t, db.ApplyTrade(ctx, domain.TradeOutcome{TradeID: 2, Fill: &fill, Change: ch, Key: key, State: next}))

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	got, _, err := db.LoadState(ctx)
	require.NoError(t, err)
	assert.True(t, d("1010").Equal(got.Cash))
	assert.True(t, d("10").Equal(got.Realized))

	sells, err := db.Fills(ctx, domain.SideSell, 10)
	require.NoError(t, err)
	require.Len(t, sells, 1)

	byLeader, err := db.RealizedByLeader(ctx)
	require.NoError(t, err)
	assert.True(t, d("10").Equal(byLeader["0xleader"]))
}

func TestReset_StartsNewEpoch(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	st := initLedger(t, ctx, db)
	require.NoError(t, db.ApplyTrade(ctx, buyOutcome(st, 1, "100", "0.40")))
	require.NoError(t, db.RecordRejection(ctx, domain.Rejection{TradeID: 2, Reason: "flip", RejectedAt: t0}))

	later := t0.Add(24 * time.Hour)
	fresh := domain.NewLedgerState(d("500"), 42, later)
	require.NoError(t, db.Reset(ctx, fresh, domain.Value(fresh, nil, nil).Snapshot(later)))

	got, _, err := db.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.LastTradeID)
	assert.True(t, got.EpochStart.Equal(later))
	assert.True(t, d("500").Equal(got.Cash))
	assert.True(t, got.Realized.IsZero())

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	rej, err := db.Rejections(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rej)

	series, err := db.EquitySeries(ctx, 300, 10)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.True(t, d("500").Equal(series[0].Equity))
}

func TestEquitySeries_LatestPerBucket(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	for i, eq := range []string{"100", "101", "102", "103"} {
		// 12:00, 12:02 y 12:04 caen en el mismo bucket de 5 minutos
		ts := t0.Add(time.Duration(i) * 2 * time.Minute)
		require.NoError(t, db.AppendSnapshot(ctx, domain.PortfolioSnapshot{
			Timestamp: ts, Equity: d(eq), Cash: d(eq),
		}))
	}

	series, err := db.EquitySeries(ctx, 300, 0)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.True(t, d("102").Equal(series[0].Equity))
	assert.True(t, d("103").Equal(series[1].Equity))

	series, err = db.EquitySeries(ctx, 300, 1)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.True(t, d("103").Equal(series[0].Equity))

	_, err = db.EquitySeries(ctx, 0, 1)
	assert.Error(t, err)
}

func TestLiveFills_RoundTrip(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	fill := domain.Fill{SourceTradeID: 9, Leader: "0xleader", ConditionID: "0xcond", Side: domain.SideBuy, Price: d("0.5"), Size: d("10")}
	require.NoError(t, db.SaveLiveFill(ctx, domain.NewLiveFill(fill, domain.ExecutionResult{
		Status: domain.ExecDryRun, SubmittedAt: t0,
	}, t0)))

	got, err := db.LiveFills(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ExecDryRun, got[0].Result.Status)
	assert.True(t, d("5").Equal(got[0].Notional))
}
