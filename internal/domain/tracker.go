package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxHolders es cuántas wallets se listan por posición agregada.
const maxHolders = 5

// LeaderPosition es una posición abierta de un leader según la Data API.
type LeaderPosition struct {
	Wallet       string
	ConditionID  string
	Outcome      string
	Size         decimal.Decimal
	AvgPrice     decimal.Decimal
	CurPrice     decimal.Decimal
	CurrentValue decimal.Decimal
	Title        string
	Slug         string
	EventSlug    string
	Category     string
	UpdatedAt    time.Time
	FirstSeenAt  time.Time
}

// Key agrupa posiciones de distintos leaders sobre el mismo outcome.
func (p LeaderPosition) Key() MarkKey {
	return MarkKey{ConditionID: p.ConditionID, Outcome: NormalizeOutcome(p.Outcome)}
}

// Enrich completa metadata vacía con la de Gamma.
func (p *LeaderPosition) Enrich(m Market) {
	if p.Title == "" {
		p.Title = m.Title
	}
	if p.Slug == "" {
		p.Slug = m.Slug
	}
	if p.Category == "" {
		p.Category = strings.ToLower(m.Category)
	}
}

// InCategory indica si la posición pertenece a category. Sin categoría
// conocida se conserva.
func (p LeaderPosition) InCategory(category string) bool {
	return p.Category == "" || category == "" || strings.EqualFold(p.Category, category)
}

// TrackedPosition agrega las posiciones de varios leaders en un outcome.
type TrackedPosition struct {
	ConditionID string
	Outcome     string
	Title       string
	Slug        string
	EventSlug   string
	Category    string
	TotalSize   decimal.Decimal
	MarkPrice   decimal.Decimal // media de cur_price entre leaders
	TotalUSD    decimal.Decimal
	WalletCount int
	Holders     []string
	LastUpdated time.Time
	FirstSeen   time.Time
	ReviewedAt  time.Time
	Reviewed    bool
	Unread      bool
}

// TrackerView es la vista del tracker de posiciones de leaders.
type TrackerView struct {
	LastSuccess     time.Time
	FirstSeenCutoff time.Time
	Positions       []TrackedPosition
	Unread          int
}

// AggregatePositions agrupa por (condition_id, outcome), ordena por valor y
// marca como no leídas las posiciones vistas después del cutoff y no revisadas.
// El cutoff se fija tras la primera pasada para que la carga inicial no salga
// entera como nueva.
func AggregatePositions(raw []LeaderPosition, reviews map[MarkKey]time.Time, lastSuccess, cutoff time.Time) TrackerView {
	type acc struct {
		pos     TrackedPosition
		wallets map[string]struct{}
		marks   decimal.Decimal
		n       int64
	}
	groups := make(map[MarkKey]*acc)
	var order []MarkKey

	for _, p := range raw {
		k := p.Key()
		g, ok := groups[k]
		if !ok {
			g = &acc{
				pos:     TrackedPosition{ConditionID: k.ConditionID, Outcome: k.Outcome},
				wallets: make(map[string]struct{}),
			}
			groups[k] = g
			order = append(order, k)
		}
		t := &g.pos
		t.Title = firstNonEmpty(t.Title, p.Title)
		t.Slug = firstNonEmpty(t.Slug, p.Slug)
		t.EventSlug = firstNonEmpty(t.EventSlug, p.EventSlug)
		t.Category = firstNonEmpty(t.Category, p.Category)
		t.TotalSize = t.TotalSize.Add(p.Size)
		t.TotalUSD = t.TotalUSD.Add(p.CurrentValue)
		g.marks = g.marks.Add(p.CurPrice)
		g.n++
		g.wallets[NormalizeWallet(p.Wallet)] = struct{}{}
		if p.UpdatedAt.After(t.LastUpdated) {
			t.LastUpdated = p.UpdatedAt
		}
		if !p.FirstSeenAt.IsZero() && (t.FirstSeen.IsZero() || p.FirstSeenAt.Before(t.FirstSeen)) {
			t.FirstSeen = p.FirstSeenAt
		}
	}

	view := TrackerView{LastSuccess: lastSuccess, FirstSeenCutoff: cutoff}
	for _, k := range order {
		g := groups[k]
		t := g.pos
		t.MarkPrice = g.marks.Div(decimal.NewFromInt(g.n))
		t.WalletCount = len(g.wallets)
		for w := range g.wallets {
			t.Holders = append(t.Holders, w)
		}
		sort.Strings(t.Holders)
		if len(t.Holders) > maxHolders {
			t.Holders = t.Holders[:maxHolders]
		}
		t.ReviewedAt = reviews[k]
		t.Reviewed = !t.ReviewedAt.IsZero() && (t.FirstSeen.IsZero() || !t.ReviewedAt.Before(t.FirstSeen))
		t.Unread = !cutoff.IsZero() && !t.FirstSeen.IsZero() && t.FirstSeen.After(cutoff) && !t.Reviewed
		if t.Unread {
			view.Unread++
		}
		view.Positions = append(view.Positions, t)
	}

	sort.SliceStable(view.Positions, func(i, j int) bool {
		return view.Positions[i].TotalUSD.GreaterThan(view.Positions[j].TotalUSD)
	})
	return view
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
