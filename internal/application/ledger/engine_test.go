package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/application/ledger"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	leaderA = "0xaaaa"
	leaderB = "0xbbbb"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fixedPolicy() domain.SizingPolicy {
	return domain.SizingPolicy{Mode: domain.SizeFixed, SlippageBps: decimal.Zero}
}

func newEngine(db *storage.SQLiteStorage, policy domain.SizingPolicy, opts ...ledger.Option) *ledger.Engine {
	cfg := ledger.Config{
		Leaders:     []string{leaderA, leaderB},
		StartEquity: d("1000"),
		Sizing:      policy,
	}
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return t0 })}, opts...)
	return ledger.NewEngine(cfg, db, db, opts...)
}

var txSeq int

func trade(wallet string, side domain.Side, size, price string) domain.LeaderTrade {
	txSeq++
	return domain.LeaderTrade{
		Wallet:      wallet,
		TxHash:      fmt.Sprintf("0xtx%d", txSeq),
		ConditionID: "0xcond",
		Asset:       "tok-yes",
		Outcome:     "Yes",
		Side:        side,
		Size:        d(size),
		Price:       d(price),
		Timestamp:   t0.Add(time.Duration(txSeq) * time.Second),
		MarketTitle: "Will X happen?",
	}
}

func insert(t *testing.T, db *storage.SQLiteStorage, trades ...domain.LeaderTrade) {
	t.Helper()
	n, err := db.InsertLeaderTrades(context.Background(), trades)
	require.NoError(t, err)
	require.Equal(t, len(trades), n)
}

func loadState(t *testing.T, db *storage.SQLiteStorage) domain.LedgerState {
	t.Helper()
	st, ok, err := db.LoadState(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return st
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s %v", want, got, msg)
}

type captureNotifier struct {
	runs []domain.RunSummary
}

func (c *captureNotifier) NotifyRun(_ context.Context, s domain.RunSummary) error {
	c.runs = append(c.runs, s)
	return nil
}

func TestRunOnce_InitializesState(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	notifier := &captureNotifier{}
	e := newEngine(db, fixedPolicy(), ledger.WithNotifier(notifier))

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.NotEmpty(t, sum.RunID)
	assertDec(t, "1000", sum.Valuation.Equity)

	st := loadState(t, db)
	assertDec(t, "1000", st.Cash)
	assert.Zero(t, st.LastTradeID)
	assert.True(t, st.EpochStart.Equal(t0))

	snap, ok, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assertDec(t, "1000", snap.Equity)
	require.Len(t, notifier.runs, 1)
}

func TestRunOnce_BuyThenPartialSell(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	e := newEngine(db, fixedPolicy())

	insert(t, db,
		trade(leaderA, domain.SideBuy, "100", "0.40"),
		// target 50 se recorta a la exposición de 40: vende 80 de 100
		trade(leaderA, domain.SideSell, "100", "0.50"),
	)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Filled)
	assert.Equal(t, int64(2), sum.LastTradeID)

	st := loadState(t, db)
	assert.Equal(t, int64(2), st.LastTradeID)
	assertDec(t, "1000", st.Cash)
	assertDec(t, "8", st.Realized)

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDec(t, "20", positions[0].Size)
	assertDec(t, "0.4", positions[0].AvgPrice)

	// equity = cash + 20 × último precio observado (0.50)
	assertDec(t, "1010", sum.Valuation.Equity)
	assertDec(t, "2", sum.Valuation.Unrealized)

	fills, err := db.Fills(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, fills, 2)
}

func TestRunOnce_AtMostOnce(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	e := newEngine(db, fixedPolicy())

	insert(t, db, trade(leaderA, domain.SideBuy, "100", "0.40"))
	_, err := e.RunOnce(ctx)
	require.NoError(t, err)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)

	// un segundo engine sobre el mismo store tampoco reaplica
	sum, err = newEngine(db, fixedPolicy()).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)

	fills, err := db.Fills(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, fills, 1)
	assertDec(t, "960", loadState(t, db).Cash)
}

func TestRunOnce_SellClosesExactly(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	e := newEngine(db, fixedPolicy())

	insert(t, db,
		trade(leaderA, domain.SideBuy, "100", "0.40"),
		trade(leaderA, domain.SideSell, "200", "0.30"),
	)

	_, err := e.RunOnce(ctx)
	require.NoError(t, err)

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	st := loadState(t, db)
	assertDec(t, "990", st.Cash)
	assertDec(t, "-10", st.Realized)

	sells, err := db.Fills(ctx, domain.SideSell, 0)
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assertDec(t, "100", sells[0].Size)
}

func TestRunOnce_SkipsAdvanceCursor(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	e := newEngine(db, fixedPolicy())

	invalid := trade(leaderA, domain.SideBuy, "10", "0")
	insert(t, db,
		trade(leaderA, domain.SideSell, "10", "0.50"), // sin posición
		trade("0xcccc", domain.SideBuy, "10", "0.50"), // leader no seguido
		invalid,
	)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed)
	assert.Zero(t, sum.Filled)
	assert.Equal(t, 1, sum.Skips[domain.SkipNoPosition])
	assert.Equal(t, 1, sum.Skips[domain.SkipUntrackedLeader])
	assert.Equal(t, 1, sum.Skips[domain.SkipInvalidTrade])

	st := loadState(t, db)
	assert.Equal(t, int64(3), st.LastTradeID)
	assertDec(t, "1000", st.Cash)

	rej, err := db.Rejections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rej, 1)
	assert.Equal(t, int64(3), rej[0].TradeID)
}

func TestRunOnce_PerLeaderAllocationCap(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	e := newEngine(db, fixedPolicy())

	insert(t, db,
		trade(leaderA, domain.SideBuy, "2000", "0.50"), // 1000 de notional, tope 500
		trade(leaderA, domain.SideBuy, "10", "0.50"),
		trade(leaderB, domain.SideBuy, "10", "0.50"),
	)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Filled)
	assert.Equal(t, 1, sum.Skips[domain.SkipAllocationFull])

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	byLeader := map[string]domain.FollowerPosition{}
	for _, p := range positions {
		byLeader[p.Key.Leader] = p
	}
	assertDec(t, "1000", byLeader[leaderA].Size)
	assertDec(t, "10", byLeader[leaderB].Size)
	assertDec(t, "495", loadState(t, db).Cash)
}

func TestRunOnce_BuySpendsAllCashWithSlippage(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	policy := fixedPolicy()
	policy.SlippageBps = d("50")
	e := newEngine(db, policy)

	// cada leader agota su mitad; el segundo BUY se queda con el cash restante
	insert(t, db,
		trade(leaderA, domain.SideBuy, "10000", "0.40"),
		trade(leaderB, domain.SideBuy, "10000", "0.37"),
	)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Filled)

	st := loadState(t, db)
	assert.Equal(t, int64(2), st.LastTradeID)
	assert.False(t, st.Cash.IsNegative(), "cash %s", st.Cash)
	assert.True(t, st.Cash.LessThan(d("0.000000000001")), "cash %s", st.Cash)

	rej, err := db.Rejections(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rej)
}

func TestRunOnce_EpochExcludesOlderTrades(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	e := newEngine(db, fixedPolicy())

	old := trade(leaderA, domain.SideBuy, "100", "0.40")
	old.Timestamp = t0.Add(-time.Hour)
	insert(t, db, old)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Zero(t, loadState(t, db).LastTradeID)
}

type fakeEquity struct {
	values map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeEquity) LeaderEquity(_ context.Context, wallet string) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.values[wallet], nil
}

func TestRunOnce_LeaderPct(t *testing.T) {
	policy := domain.SizingPolicy{Mode: domain.SizeLeaderPct, FallbackFraction: d("0.10")}

	t.Run("uses leader equity", func(t *testing.T) {
		db := newStore(t)
		eq := &fakeEquity{values: map[string]decimal.Decimal{leaderA: d("4000")}}
		e := newEngine(db, policy, ledger.WithLeaderEquity(eq))

		insert(t, db,
			trade(leaderA, domain.SideBuy, "100", "0.40"),
			trade(leaderA, domain.SideBuy, "100", "0.40"),
		)
		_, err := e.RunOnce(context.Background())
		require.NoError(t, err)

		// 40/4000 = 1% de 500 = 5 USDC por trade
		positions, err := db.Positions(context.Background())
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assertDec(t, "25", positions[0].Size)
		assert.Equal(t, 1, eq.calls, "equity is looked up once per leader per batch")
	})

	t.Run("falls back on lookup error", func(t *testing.T) {
		db := newStore(t)
		eq := &fakeEquity{err: errors.New("data api down")}
		e := newEngine(db, policy, ledger.WithLeaderEquity(eq))

		insert(t, db, trade(leaderA, domain.SideBuy, "100", "0.40"))
		_, err := e.RunOnce(context.Background())
		require.NoError(t, err)

		// 10% de 500 = 50 USDC
		positions, err := db.Positions(context.Background())
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assertDec(t, "125", positions[0].Size)
	})
}

type fakeExecutor struct {
	result domain.ExecutionResult
	fills  []domain.Fill
}

func (f *fakeExecutor) SubmitFill(_ context.Context, fill domain.Fill) domain.ExecutionResult {
	f.fills = append(f.fills, fill)
	return f.result
}

func TestRunOnce_LiveFailureDoesNotBlockLedger(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	x := &fakeExecutor{result: domain.ExecutionResult{Status: domain.ExecFailed, Error: "insufficient balance", SubmittedAt: t0}}
	e := newEngine(db, fixedPolicy(), ledger.WithExecutor(x, db))

	insert(t, db,
		trade(leaderA, domain.SideBuy, "100", "0.40"),
		trade(leaderA, domain.SideBuy, "100", "0.40"),
	)

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Filled)
	assert.Len(t, x.fills, 2)

	live, err := db.LiveFills(ctx, 10)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, domain.ExecFailed, live[0].Result.Status)
	assert.Equal(t, "insufficient balance", live[0].Result.Error)

	assert.Equal(t, int64(2), loadState(t, db).LastTradeID)
}

// shortStore presenta una posición corta que el sizing nunca habría creado.
type shortStore struct {
	*storage.SQLiteStorage
	short domain.FollowerPosition
}

func (s shortStore) Positions(context.Context) ([]domain.FollowerPosition, error) {
	return []domain.FollowerPosition{s.short}, nil
}

func TestRunOnce_InvariantViolationWithholdsCursor(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	store := shortStore{
		SQLiteStorage: db,
		short: domain.FollowerPosition{
			Key:      domain.NewPositionKey("0xcond", "Yes", leaderA),
			Size:     d("-10"),
			AvgPrice: d("0.50"),
		},
	}
	notifier := &captureNotifier{}
	e := ledger.NewEngine(ledger.Config{
		Leaders:     []string{leaderA, leaderB},
		StartEquity: d("1000"),
		Sizing:      fixedPolicy(),
	}, db, store, ledger.WithClock(func() time.Time { return t0 }), ledger.WithNotifier(notifier))

	insert(t, db,
		trade("0xcccc", domain.SideBuy, "10", "0.50"),
		trade(leaderA, domain.SideBuy, "100", "0.40"), // cruzaría de -10 a +90
		trade(leaderB, domain.SideBuy, "10", "0.50"),
	)

	sum, err := e.RunOnce(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvariantViolation))
	require.NotNil(t, sum.Rejected)
	assert.Equal(t, int64(2), sum.Rejected.TradeID)
	assert.Equal(t, 1, sum.Processed)

	st := loadState(t, db)
	assert.Equal(t, int64(1), st.LastTradeID)
	assertDec(t, "1000", st.Cash)

	// el siguiente run vuelve a parar en el mismo trade sin duplicar el rechazo
	_, err = e.RunOnce(ctx)
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	rej, err := db.Rejections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rej, 1)
	assert.Equal(t, int64(2), rej[0].TradeID)
	assert.Len(t, notifier.runs, 2)
}

func TestReset_SkipsHistory(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	now := t0
	e := newEngine(db, fixedPolicy(), ledger.WithClock(func() time.Time { return now }))

	insert(t, db, trade(leaderA, domain.SideBuy, "100", "0.40"))
	_, err := e.RunOnce(ctx)
	require.NoError(t, err)
	insert(t, db, trade(leaderA, domain.SideBuy, "100", "0.40"))

	now = t0.Add(time.Hour)
	st, err := e.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.LastTradeID)
	assert.True(t, st.EpochStart.Equal(now))

	sum, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)

	positions, err := db.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assertDec(t, "1000", loadState(t, db).Cash)

	after := trade(leaderB, domain.SideBuy, "10", "0.50")
	after.Timestamp = now.Add(time.Minute)
	insert(t, db, after)

	sum, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Filled)
	assertDec(t, "995", loadState(t, db).Cash)
}
