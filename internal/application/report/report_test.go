package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func position(cond, leader, size, avg string) domain.FollowerPosition {
	return domain.FollowerPosition{
		Key:      domain.NewPositionKey(cond, "Yes", leader),
		Size:     d(size),
		AvgPrice: d(avg),
	}
}

// fakeReadModel devuelve datos fijos; err hace fallar MaxTradeID.
type fakeReadModel struct {
	state     domain.LedgerState
	ok        bool
	positions []domain.FollowerPosition
	marks     domain.Marks
	titles    map[string]string
	realized  map[string]decimal.Decimal
	maxID     int64
	err       error
}

func (f fakeReadModel) LoadState(context.Context) (domain.LedgerState, bool, error) {
	return f.state, f.ok, nil
}
func (f fakeReadModel) Positions(context.Context) ([]domain.FollowerPosition, error) {
	return f.positions, nil
}
func (f fakeReadModel) LatestMarks(context.Context) (domain.Marks, error) { return f.marks, nil }
func (f fakeReadModel) MarketTitles(context.Context) (map[string]string, error) {
	return f.titles, nil
}
func (f fakeReadModel) Fills(context.Context, domain.Side, int) ([]domain.FillView, error) {
	return nil, nil
}
func (f fakeReadModel) EquitySeries(context.Context, int64, int) ([]domain.PortfolioSnapshot, error) {
	return nil, nil
}
func (f fakeReadModel) LatestSnapshot(context.Context) (domain.PortfolioSnapshot, bool, error) {
	return domain.PortfolioSnapshot{}, false, nil
}
func (f fakeReadModel) Rejections(context.Context, int) ([]domain.Rejection, error) { return nil, nil }
func (f fakeReadModel) LiveFills(context.Context, int) ([]domain.LiveFill, error) { return nil, nil }
func (f fakeReadModel) MaxTradeID(context.Context) (int64, error) { return f.maxID, f.err }
func (f fakeReadModel) RealizedByLeader(context.Context) (map[string]decimal.Decimal, error) {
	return f.realized, nil
}

func TestPositionViews_SortedByNotional(t *testing.T) {
	positions := []domain.FollowerPosition{
		position("0xa", "0xl1", "10", "0.50"),  // 5
		position("0xb", "0xl1", "100", "0.40"), // 40
		position("0xc", "0xl2", "30", "0.50"),  // 15
	}
	marks := domain.Marks{{ConditionID: "0xb", Outcome: "Yes"}: d("0.60")}

	views := PositionViews(positions, marks, map[string]string{"0xb": "Market B"})
	require.Len(t, views, 3)
	assert.Equal(t, []string{"0xb", "0xc", "0xa"}, []string{views[0].ConditionID, views[1].ConditionID, views[2].ConditionID})
	assert.Equal(t, "Market B", views[0].Title)
	assert.True(t, d("20").Equal(views[0].Unrealized))
	// sin mark se valora al precio medio
	assert.True(t, d("0.5").Equal(views[1].MarkPrice))
	assert.True(t, views[1].Unrealized.IsZero())
}

func TestBuild_LeaderBreakdown(t *testing.T) {
	st := domain.NewLedgerState(d("1000"), 7, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	st.Cash = d("945")
	rm := fakeReadModel{
		state: st,
		ok:    true,
		positions: []domain.FollowerPosition{
			position("0xa", "0xl1", "100", "0.40"),
			position("0xb", "0xl1", "10", "0.50"),
		},
		marks:    domain.Marks{{ConditionID: "0xa", Outcome: "Yes"}: d("0.50")},
		realized: map[string]decimal.Decimal{"0xl2": d("-3")},
		maxID:    10,
	}

	p, err := Build(context.Background(), rm)
	require.NoError(t, err)
	assert.True(t, p.Initialized)
	assert.Equal(t, int64(3), p.Backlog())
	// 945 + 100×0.50 + 10×0.50
	assert.True(t, d("1000").Equal(p.Valuation.Equity), p.Valuation.Equity.String())

	require.Len(t, p.Leaders, 2)
	l1, l2 := p.Leaders[0], p.Leaders[1]
	assert.Equal(t, "0xl1", l1.Leader)
	assert.Equal(t, 2, l1.Positions)
	assert.True(t, d("45").Equal(l1.Notional))
	assert.True(t, d("55").Equal(l1.Value))
	assert.True(t, d("10").Equal(l1.Unrealized))
	assert.True(t, l1.Realized.IsZero())
	// un leader solo con realizado también aparece
	assert.Equal(t, "0xl2", l2.Leader)
	assert.Zero(t, l2.Positions)
	assert.True(t, d("-3").Equal(l2.Realized))
}

func TestBuild_PropagatesErrors(t *testing.T) {
	_, err := Build(context.Background(), fakeReadModel{err: errors.New("db closed")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.Build")
}

func TestBacklog_NeverNegative(t *testing.T) {
	p := Portfolio{State: domain.LedgerState{LastTradeID: 9}, MaxTradeID: 5}
	assert.Zero(t, p.Backlog())
}
