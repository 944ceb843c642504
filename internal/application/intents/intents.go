// Package intents genera órdenes simuladas a partir de reglas de seguimiento.
// Es independiente del ledger: recorre todo el trade log y guarda un intent
// por (trade, regla), así que añadir una regla la aplica también al histórico.
package intents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const defaultPageSize = 5000

// Generator aplica las reglas al trade log.
type Generator struct {
	rules    []domain.FollowRule
	trades   ports.TradeLog
	store    ports.IntentStore
	pageSize int
	now      func() time.Time
}

// NewGenerator valida las reglas y crea el generador.
func NewGenerator(rules []domain.FollowRule, trades ports.TradeLog, store ports.IntentStore) (*Generator, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("intents.NewGenerator: %w", err)
		}
		if seen[r.Label] {
			return nil, fmt.Errorf("intents.NewGenerator: duplicate rule label %q", r.Label)
		}
		seen[r.Label] = true
	}
	return &Generator{
		rules:    rules,
		trades:   trades,
		store:    store,
		pageSize: defaultPageSize,
		now:      time.Now,
	}, nil
}

// WithPageSize ajusta cuántos trades se leen por página.
func (g *Generator) WithPageSize(n int) *Generator {
	if n > 0 {
		g.pageSize = n
	}
	return g
}

// Generate recorre el trade log y devuelve cuántos intents nuevos guardó.
func (g *Generator) Generate(ctx context.Context) (int, error) {
	if len(g.rules) == 0 {
		return 0, nil
	}
	categories, err := g.store.MarketCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("intents.Generate: %w", err)
	}

	var (
		after     int64
		total     int
		scanned   int
		createdAt = g.now()
	)
	for {
		page, err := g.trades.PendingTrades(ctx, after, time.Time{}, g.pageSize)
		if err != nil {
			return total, fmt.Errorf("intents.Generate: read trades after %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		var batch []domain.CopyIntent
		for _, t := range page {
			for _, r := range g.rules {
				if in, ok := r.Intent(t, categories[t.ConditionID], createdAt); ok {
					batch = append(batch, in)
				}
			}
		}
		n, err := g.store.InsertIntents(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("intents.Generate: %w", err)
		}
		total += n
		scanned += len(page)
		after = page[len(page)-1].ID

		if len(page) < g.pageSize {
			break
		}
	}

	metrics.IntentsGenerated.Add(float64(total))
	slog.Info("copy intents generated", "rules", len(g.rules), "trades", scanned, "new", total)
	return total, nil
}
