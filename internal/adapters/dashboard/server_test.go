package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/dashboard"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seededStore deja un ledger con una posición abierta de 100 @0.40 y un mark
// posterior a 0.50.
func seededStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	ctx := context.Background()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	trades := []domain.LeaderTrade{
		{Wallet: "0xleader", TxHash: "0x1", ConditionID: "0xcond", Asset: "1", Outcome: "Yes",
			Side: domain.SideBuy, Size: d("1000"), Price: d("0.40"), Timestamp: t0, MarketTitle: "Will it rain?"},
		{Wallet: "0xleader", TxHash: "0x2", ConditionID: "0xcond", Asset: "1", Outcome: "Yes",
			Side: domain.SideBuy, Size: d("1"), Price: d("0.50"), Timestamp: t0.Add(time.Minute)},
	}
	_, err = db.InsertLeaderTrades(ctx, trades)
	require.NoError(t, err)
	require.NoError(t, db.UpsertMarkets(ctx, []domain.Market{{ConditionID: "0xcond", Title: "Will it rain?"}}))

	st := domain.NewLedgerState(d("1000"), 0, t0)
	require.NoError(t, db.InitState(ctx, st, domain.Value(st, nil, nil).Snapshot(t0)))

	key := domain.NewPositionKey("0xcond", "Yes", "0xleader")
	ch, err := domain.ApplyFill(nil, key, 1, domain.SideBuy, d("100"), d("0.40"), t0)
	require.NoError(t, err)
	fill := domain.Fill{
		SourceTradeID: 1, Leader: "0xleader", ConditionID: "0xcond", Outcome: "Yes",
		Side: domain.SideBuy, Price: d("0.40"), Size: d("100"), SignedNotional: d("40"),
		Timestamp: t0, CreatedAt: t0,
	}
	st.Cash = d("960")
	st.LastTradeID = 1
	require.NoError(t, db.ApplyTrade(ctx, domain.TradeOutcome{TradeID: 1, Fill: &fill, Change: ch, Key: key, State: st}))
	return db
}

func get(t *testing.T, h http.Handler, url string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestPortfolio_RecomputesWithMarks(t *testing.T) {
	h := dashboard.NewServer(seededStore(t)).Router()

	var resp struct {
		Equity     decimal.Decimal `json:"equity"`
		Cash       decimal.Decimal `json:"cash"`
		Unrealized decimal.Decimal `json:"unrealized"`
		Open       int             `json:"open_positions"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/portfolio", &resp))
	// 960 + 100×0.50
	assert.True(t, d("1010").Equal(resp.Equity), resp.Equity.String())
	assert.True(t, d("960").Equal(resp.Cash))
	assert.True(t, d("10").Equal(resp.Unrealized))
	assert.Equal(t, 1, resp.Open)
}

func TestPositions_IncludesMarkAndTitle(t *testing.T) {
	h := dashboard.NewServer(seededStore(t)).Router()

	var rows []struct {
		Leader string          `json:"leader_wallet"`
		Title  string          `json:"title"`
		Mark   decimal.Decimal `json:"mark_price"`
		Unreal decimal.Decimal `json:"unrealized"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/positions", &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "0xleader", rows[0].Leader)
	assert.Equal(t, "Will it rain?", rows[0].Title)
	assert.True(t, d("0.5").Equal(rows[0].Mark))
	assert.True(t, d("10").Equal(rows[0].Unreal))
}

func TestFillsAndClosed(t *testing.T) {
	h := dashboard.NewServer(seededStore(t)).Router()

	var fills []map[string]any
	require.Equal(t, http.StatusOK, get(t, h, "/api/fills?limit=10", &fills))
	assert.Len(t, fills, 1)

	var closed []map[string]any
	require.Equal(t, http.StatusOK, get(t, h, "/api/closed", &closed))
	assert.Empty(t, closed)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/fills?limit=abc", nil))
}

func TestEquityAndState(t *testing.T) {
	h := dashboard.NewServer(seededStore(t)).Router()

	var series []map[string]any
	require.Equal(t, http.StatusOK, get(t, h, "/api/equity", &series))
	assert.Len(t, series, 1)

	var st struct {
		Initialized bool  `json:"initialized"`
		LastTradeID int64 `json:"last_trade_id"`
		MaxTradeID  int64 `json:"max_trade_id"`
		Backlog     int64 `json:"backlog"`
		EpochStart  int64 `json:"epoch_start"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/state", &st))
	assert.True(t, st.Initialized)
	assert.Equal(t, int64(1), st.LastTradeID)
	assert.Equal(t, int64(2), st.MaxTradeID)
	assert.Equal(t, int64(1), st.Backlog)
	assert.Equal(t, t0.UnixMilli(), st.EpochStart)
}

func TestHealthAndMetrics(t *testing.T) {
	h := dashboard.NewServer(seededStore(t)).Router()
	assert.Equal(t, http.StatusOK, get(t, h, "/health", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "polycopy_http_requests_total")
}

type stubTracker struct{ view domain.TrackerView }

func (s stubTracker) View(context.Context) (domain.TrackerView, error) { return s.view, nil }

func TestTracked(t *testing.T) {
	db := seededStore(t)

	assert.Equal(t, http.StatusNotFound, get(t, dashboard.NewServer(db).Router(), "/api/tracked", nil))

	h := dashboard.NewServer(db).WithTracker(stubTracker{view: domain.TrackerView{
		LastSuccess: t0,
		Unread:      1,
		Positions: []domain.TrackedPosition{{
			ConditionID: "0xgame", Outcome: "Yes", Title: "Derby", Category: "sports",
			TotalUSD: d("150"), WalletCount: 2, Holders: []string{"0xa", "0xb"},
			FirstSeen: t0, Unread: true,
		}},
	}}).Router()

	var resp struct {
		LastSuccess int64 `json:"last_success"`
		Unread      int   `json:"unread"`
		Positions   []struct {
			ConditionID string          `json:"condition_id"`
			TotalUSD    decimal.Decimal `json:"total_usd"`
			WalletCount int             `json:"wallet_count"`
			Holders     []string        `json:"holders"`
			ReviewedAt  int64           `json:"reviewed_at"`
			Unread      bool            `json:"unread"`
		} `json:"positions"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/tracked", &resp))
	assert.Equal(t, t0.UnixMilli(), resp.LastSuccess)
	assert.Equal(t, 1, resp.Unread)
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "0xgame", resp.Positions[0].ConditionID)
	assert.True(t, d("150").Equal(resp.Positions[0].TotalUSD))
	assert.Equal(t, []string{"0xa", "0xb"}, resp.Positions[0].Holders)
	assert.Zero(t, resp.Positions[0].ReviewedAt)
	assert.True(t, resp.Positions[0].Unread)
}
