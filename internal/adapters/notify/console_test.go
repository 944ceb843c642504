package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleFill() domain.Fill {
	return domain.Fill{
		SourceTradeID:  41,
		Leader:         "0xabcdef0123456789abcdef0123456789abcdef01",
		ConditionID:    "0xcond",
		Side:           domain.SideBuy,
		Price:          d("0.405"),
		Size:           d("24.6914"),
		SignedNotional: d("10"),
		Timestamp:      at,
	}
}

func TestConsole_NotifyRun_Summary(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.NotifyRun(context.Background(), domain.RunSummary{
		StartedAt:   at,
		Processed:   4,
		Filled:      1,
		Skips:       map[domain.SkipReason]int{domain.SkipNoPosition: 2, domain.SkipAllocationFull: 1},
		LastTradeID: 44,
		Fills:       []domain.Fill{sampleFill()},
		Valuation:   domain.Valuation{Equity: d("1003.5"), Cash: d("990"), Unrealized: d("-1.25"), Realized: d("4")},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "4 trades")
	assert.Contains(t, out, "+1 fills")
	assert.Contains(t, out, "allocation_full:1 no_position:2")
	assert.Contains(t, out, "cursor 44")
	assert.Contains(t, out, "eq $1003.50")
	assert.Contains(t, out, "unr -$1.25")
	// tabla de fills
	assert.Contains(t, out, "0.4050")
	assert.Contains(t, out, "0xabcd..ef01")
}

func TestConsole_NotifyRun_Idle(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyRun(context.Background(), domain.RunSummary{StartedAt: at, LastTradeID: 7}))
	assert.Contains(t, buf.String(), "no new trades")
}

func TestConsole_NotifyRun_Rejection(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyRun(context.Background(), domain.RunSummary{
		StartedAt: at,
		Processed: 0,
		Rejected:  &domain.Rejection{TradeID: 9, Reason: "position would flip"},
	}))
	assert.Contains(t, buf.String(), "trade 9 rejected: position would flip")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintReport(notify.ReportInput{
		Initialized: true,
		State:       domain.LedgerState{LastTradeID: 12, EpochStart: at},
		Valuation:   domain.Valuation{Equity: d("1100"), Cash: d("900"), PositionValue: d("200")},
		StartEquity: d("1000"),
		Positions: []domain.PositionView{{
			Leader: "0xleader", ConditionID: "0xcond", Title: strings.Repeat("Very long market title ", 4),
			Size: d("400"), AvgPrice: d("0.4"), MarkPrice: d("0.5"), Notional: d("160"), Unrealized: d("40"),
		}},
		Rejections: []domain.Rejection{{TradeID: 13, Reason: "flip", RejectedAt: at}},
	})

	out := buf.String()
	assert.Contains(t, out, "Return:       10.00%")
	assert.Contains(t, out, "OPEN POSITIONS (1)")
	assert.Contains(t, out, "…")
	assert.Contains(t, out, "trade 13")
}

func TestConsole_PrintReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintReport(notify.ReportInput{})
	assert.Contains(t, buf.String(), "No paper ledger yet")
}

func TestConsole_PrintEquity(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, false).PrintEquity(notify.EquityInput{
		Wallet: "0xme", Value: d("300"), Leaders: []string{"0xa", "0xb"}, PerLeader: d("150"),
	})
	out := buf.String()
	assert.Contains(t, out, "300.00 USDC")
	assert.Contains(t, out, "Target allocation per leader: 150.00 USDC")
	assert.Contains(t, out, "- 0xb")
}

func TestConsole_PrintTracked(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintTracked(domain.TrackerView{})
	assert.Contains(t, buf.String(), "has not completed a poll")
	assert.Contains(t, buf.String(), "(none)")

	buf.Reset()
	c.PrintTracked(domain.TrackerView{
		LastSuccess: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Unread:      1,
		Positions: []domain.TrackedPosition{
			{ConditionID: "0xgame", Outcome: "Yes", Title: "Derby", WalletCount: 2,
				TotalSize: d("300"), MarkPrice: d("0.55"), TotalUSD: d("165"), Unread: true},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "unread 1")
	assert.Contains(t, out, "Derby")
	assert.Contains(t, out, "$165.00")
	assert.Contains(t, out, "*")
}

func TestConsole_PrintIntents(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, false).PrintIntents([]domain.CopyIntent{
		{LeaderTradeID: 7, RuleLabel: "fade-sports", Wallet: "0x1234567890abcdef", ConditionID: "0xcond",
			Side: domain.SideSell, DesiredSize: d("20"), DesiredNotional: d("8")},
	})
	out := buf.String()
	assert.Contains(t, out, "fade-sports")
	assert.Contains(t, out, "SELL")
	assert.Contains(t, out, "$8.00")
}
