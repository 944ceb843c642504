// Package report arma las vistas de lectura del ledger: portfolio recalculado
// con marks actuales, posiciones con título y desglose por leader.
// Lo usan el comando report y el dashboard.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/shopspring/decimal"
)

// Portfolio es el estado completo del follower en un instante.
type Portfolio struct {
	Initialized bool
	State       domain.LedgerState
	Valuation   domain.Valuation
	Positions   []domain.PositionView
	Leaders     []domain.LeaderSummary
	MaxTradeID  int64
}

// Backlog es el número de trades del log por encima del cursor.
func (p Portfolio) Backlog() int64 {
	if p.MaxTradeID <= p.State.LastTradeID {
		return 0
	}
	return p.MaxTradeID - p.State.LastTradeID
}

// Build recalcula el portfolio desde el read model. No escribe nada.
func Build(ctx context.Context, rm ports.ReadModel) (Portfolio, error) {
	st, ok, err := rm.LoadState(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("report.Build: state: %w", err)
	}
	positions, err := rm.Positions(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("report.Build: positions: %w", err)
	}
	marks, err := rm.LatestMarks(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("report.Build: marks: %w", err)
	}
	titles, err := rm.MarketTitles(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("report.Build: titles: %w", err)
	}
	realized, err := rm.RealizedByLeader(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("report.Build: realized: %w", err)
	}
	maxID, err := rm.MaxTradeID(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("report.Build: max trade id: %w", err)
	}

	views := PositionViews(positions, marks, titles)
	return Portfolio{
		Initialized: ok,
		State:       st,
		Valuation:   domain.Value(st, positions, marks),
		Positions:   views,
		Leaders:     leaderRows(views, realized),
		MaxTradeID:  maxID,
	}, nil
}

// PositionViews une posiciones con su mark y título, ordenadas por notional
// absoluto descendente.
func PositionViews(positions []domain.FollowerPosition, marks domain.Marks, titles map[string]string) []domain.PositionView {
	views := make([]domain.PositionView, 0, len(positions))
	for _, p := range positions {
		mark := marks.For(p)
		views = append(views, domain.PositionView{
			Leader:      p.Key.Leader,
			ConditionID: p.Key.ConditionID,
			Outcome:     p.Key.Outcome,
			Title:       titles[p.Key.ConditionID],
			Size:        p.Size,
			AvgPrice:    p.AvgPrice,
			MarkPrice:   mark,
			Notional:    p.Notional(),
			Unrealized:  p.Size.Mul(mark.Sub(p.AvgPrice)),
			UpdatedAt:   p.UpdatedAt,
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Notional.Abs().GreaterThan(views[j].Notional.Abs())
	})
	return views
}

func leaderRows(views []domain.PositionView, realized map[string]decimal.Decimal) []domain.LeaderSummary {
	byLeader := make(map[string]*domain.LeaderSummary)
	get := func(leader string) *domain.LeaderSummary {
		r, ok := byLeader[leader]
		if !ok {
			r = &domain.LeaderSummary{Leader: leader, Notional: decimal.Zero, Value: decimal.Zero, Unrealized: decimal.Zero, Realized: decimal.Zero}
			byLeader[leader] = r
		}
		return r
	}
	for _, v := range views {
		r := get(v.Leader)
		r.Positions++
		r.Notional = r.Notional.Add(v.Notional)
		r.Value = r.Value.Add(v.Size.Mul(v.MarkPrice))
		r.Unrealized = r.Unrealized.Add(v.Unrealized)
	}
	for leader, pnl := range realized {
		get(leader).Realized = pnl
	}

	rows := make([]domain.LeaderSummary, 0, len(byLeader))
	for _, r := range byLeader {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Leader < rows[j].Leader })
	return rows
}
