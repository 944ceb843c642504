package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/application/tracker"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePositions struct {
	mu        sync.Mutex
	positions map[string][]domain.LeaderPosition
	errs      map[string]error
	threshold decimal.Decimal
}

func (f *fakePositions) FetchLeaderPositions(_ context.Context, wallet string, threshold decimal.Decimal) ([]domain.LeaderPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = threshold
	if err := f.errs[wallet]; err != nil {
		return nil, err
	}
	// copia: el servicio filtra in place
	return append([]domain.LeaderPosition(nil), f.positions[wallet]...), nil
}

func (f *fakePositions) set(wallet string, positions ...domain.LeaderPosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[wallet] = positions
}

type fakeMarkets struct {
	mu       sync.Mutex
	markets  map[string]domain.Market
	requests int
}

func (f *fakeMarkets) FetchMarkets(_ context.Context, ids []string) (map[string]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	out := map[string]domain.Market{}
	for _, id := range ids {
		if m, ok := f.markets[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func pos(cond, category, value string) domain.LeaderPosition {
	return domain.LeaderPosition{
		ConditionID:  cond,
		Outcome:      "Yes",
		Size:         decimal.NewFromInt(100),
		CurPrice:     decimal.RequireFromString("0.5"),
		CurrentValue: decimal.RequireFromString(value),
		Category:     category,
	}
}

func TestPollOnce_FiltersEnrichesAndFlagsNew(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	src := &fakePositions{positions: map[string][]domain.LeaderPosition{}}
	src.set("0xaaa",
		pos("0xgame", "sports", "50"),
		pos("0xelection", "politics", "500"),
		pos("0xunknown", "", "20"), // Gamma dice sports
	)
	mk := &fakeMarkets{markets: map[string]domain.Market{
		"0xunknown": {ConditionID: "0xunknown", Title: "Derby", Category: "Sports"},
	}}

	clock := t0
	svc := tracker.NewService(tracker.Config{
		Wallets:       []string{"0xAAA"},
		Category:      "sports",
		SizeThreshold: decimal.NewFromInt(10),
	}, src, mk, db).WithClock(func() time.Time { return clock })

	n, err := svc.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "10", src.threshold.String())
	assert.Equal(t, 1, mk.requests)

	view, err := svc.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.Positions, 2)
	assert.Equal(t, "0xgame", view.Positions[0].ConditionID)
	assert.Equal(t, "Derby", view.Positions[1].Title)
	assert.Equal(t, "sports", view.Positions[1].Category)
	assert.Zero(t, view.Unread, "first pass seeds the cutoff")
	assert.True(t, view.FirstSeenCutoff.Equal(t0))

	titles, err := db.MarketTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Derby", titles["0xunknown"])

	// segunda pasada: entra una posición nueva y sale 0xgame
	clock = t0.Add(time.Minute)
	src.set("0xaaa", pos("0xunknown", "sports", "20"), pos("0xnew", "sports", "80"))
	_, err = svc.PollOnce(ctx)
	require.NoError(t, err)

	view, err = svc.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.Positions, 2)
	assert.Equal(t, "0xnew", view.Positions[0].ConditionID)
	assert.True(t, view.Positions[0].Unread)
	assert.Equal(t, 1, view.Unread)

	clock = t0.Add(2 * time.Minute)
	require.NoError(t, svc.Review(ctx, domain.MarkKey{ConditionID: "0xnew", Outcome: "Yes"}))
	view, err = svc.View(ctx)
	require.NoError(t, err)
	assert.Zero(t, view.Unread)
	assert.True(t, view.Positions[0].Reviewed)
}

func TestPollOnce_WalletFailureDoesNotStopOthers(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	src := &fakePositions{
		positions: map[string][]domain.LeaderPosition{"0xbbb": {pos("0xc1", "sports", "10")}},
		errs:      map[string]error{"0xaaa": domain.ErrTransientSource},
	}
	svc := tracker.NewService(tracker.Config{Wallets: []string{"0xaaa", "0xbbb"}, Category: "sports"}, src, nil, db)

	n, err := svc.PollOnce(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransientSource))
	assert.Equal(t, 1, n)

	raw, err := db.LeaderPositions(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "0xbbb", raw[0].Wallet)
}

func TestPollOnce_NoCutoffWhenEveryWalletFails(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	src := &fakePositions{errs: map[string]error{"0xaaa": errors.New("boom")}}
	svc := tracker.NewService(tracker.Config{Wallets: []string{"0xaaa"}}, src, nil, db)

	_, err := svc.PollOnce(ctx)
	require.Error(t, err)

	_, cutoff, err := db.TrackerState(ctx)
	require.NoError(t, err)
	assert.True(t, cutoff.IsZero())
}

func TestRun_StopsOnCancel(t *testing.T) {
	db := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakePositions{positions: map[string][]domain.LeaderPosition{}}
	svc := tracker.NewService(tracker.Config{Wallets: []string{"0xaaa"}, PollInterval: time.Hour}, src, nil, db)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
