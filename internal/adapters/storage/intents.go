package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const intentSchema = `
CREATE TABLE IF NOT EXISTS copy_orders_intent (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    leader_trade_id  INTEGER NOT NULL REFERENCES leader_trades(id),
    proxy_wallet     TEXT    NOT NULL,
    condition_id     TEXT    NOT NULL,
    side             TEXT    NOT NULL,
    desired_size     TEXT    NOT NULL,
    desired_notional TEXT    NOT NULL,
    rule_label       TEXT    NOT NULL,
    status           TEXT    NOT NULL DEFAULT 'INTENDED',
    created_at       INTEGER NOT NULL,
    UNIQUE(leader_trade_id, rule_label)
);

CREATE INDEX IF NOT EXISTS idx_copy_orders_intent_rule ON copy_orders_intent(rule_label, id);
`

// ApplyIntentSchema crea la tabla de intents simulados.
func (s *SQLiteStorage) ApplyIntentSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, intentSchema); err != nil {
		return fmt.Errorf("storage.ApplyIntentSchema: %w", err)
	}
	return nil
}

// InsertIntents guarda los intents nuevos; un (trade, regla) repetido se
// ignora. Devuelve cuántos se insertaron.
func (s *SQLiteStorage) InsertIntents(ctx context.Context, intents []domain.CopyIntent) (int, error) {
	if len(intents) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertIntents: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO copy_orders_intent
			(leader_trade_id, proxy_wallet, condition_id, side, desired_size,
			 desired_notional, rule_label, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertIntents: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, in := range intents {
		status := in.Status
		if status == "" {
			status = domain.IntentIntended
		}
		res, err := stmt.ExecContext(ctx,
			in.LeaderTradeID, in.Wallet, in.ConditionID, string(in.Side),
			in.DesiredSize.String(), in.DesiredNotional.String(), in.RuleLabel,
			status, toMillis(in.CreatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("storage.InsertIntents: trade %d rule %q: %w", in.LeaderTradeID, in.RuleLabel, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.InsertIntents: commit: %w", err)
	}
	return inserted, nil
}

// Intents devuelve los intents más recientes primero. rule vacío = todas.
func (s *SQLiteStorage) Intents(ctx context.Context, rule string, limit int) ([]domain.CopyIntent, error) {
	var (
		where []string
		args  []any
	)
	if rule != "" {
		where = append(where, "rule_label = ?")
		args = append(args, rule)
	}
	q := `
		SELECT id, leader_trade_id, proxy_wallet, condition_id, side, desired_size,
		       desired_notional, rule_label, status, created_at
		FROM copy_orders_intent`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limitOrAll(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Intents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CopyIntent
	for rows.Next() {
		var (
			in      domain.CopyIntent
			side    string
			created int64
		)
		if err := rows.Scan(
			&in.ID, &in.LeaderTradeID, &in.Wallet, &in.ConditionID, &side, &in.DesiredSize,
			&in.DesiredNotional, &in.RuleLabel, &in.Status, &created,
		); err != nil {
			return nil, fmt.Errorf("storage.Intents: scan row: %w", err)
		}
		in.Side = domain.Side(side)
		in.CreatedAt = fromMillis(created)
		out = append(out, in)
	}
	return out, rows.Err()
}

// MarketCategories devuelve condition id → categoría de Gamma.
func (s *SQLiteStorage) MarketCategories(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, category FROM markets WHERE COALESCE(category, '') <> ''`)
	if err != nil {
		return nil, fmt.Errorf("storage.MarketCategories: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, cat string
		if err := rows.Scan(&id, &cat); err != nil {
			return nil, fmt.Errorf("storage.MarketCategories: scan row: %w", err)
		}
		out[id] = cat
	}
	return out, rows.Err()
}
