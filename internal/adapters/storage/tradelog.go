package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// InsertLeaderTrades inserta trades ignorando duplicados (misma wallet, tx, asset,
// side, size, price y timestamp). Poller y RTDS pueden ver el mismo trade.
func (s *SQLiteStorage) InsertLeaderTrades(ctx context.Context, trades []domain.LeaderTrade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertLeaderTrades: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO leader_trades
			(proxy_wallet, transaction_hash, condition_id, asset_id, outcome,
			 side, size, price, timestamp, market_slug, market_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertLeaderTrades: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range trades {
		res, err := stmt.ExecContext(ctx,
			domain.NormalizeWallet(t.Wallet),
			t.TxHash,
			t.ConditionID,
			t.Asset,
			domain.NormalizeOutcome(t.Outcome),
			string(t.Side),
			t.Size.String(),
			t.Price.String(),
			toMillis(t.Timestamp),
			t.MarketSlug,
			t.MarketTitle,
		)
		if err != nil {
			return 0, fmt.Errorf("storage.InsertLeaderTrades: insert %s: %w", t.TxHash, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.InsertLeaderTrades: commit: %w", err)
	}
	return inserted, nil
}

// LatestTradeTime devuelve el timestamp más reciente guardado para la wallet.
func (s *SQLiteStorage) LatestTradeTime(ctx context.Context, wallet string) (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM leader_trades WHERE proxy_wallet = ?`,
		domain.NormalizeWallet(wallet),
	).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage.LatestTradeTime: %w", err)
	}
	return nullMillis(ms), nil
}

// PendingTrades devuelve los trades que el ledger aún no consumió, por id ascendente.
func (s *SQLiteStorage) PendingTrades(ctx context.Context, afterID int64, since time.Time, limit int) ([]domain.LeaderTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proxy_wallet, transaction_hash, condition_id, asset_id, outcome,
		       side, size, price, timestamp,
		       COALESCE(market_slug, ''), COALESCE(market_title, '')
		FROM leader_trades
		WHERE id > ? AND timestamp >= ?
		ORDER BY id ASC
		LIMIT ?`,
		afterID, toMillis(since), limitOrAll(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.LeaderTrade
	for rows.Next() {
		var (
			t    domain.LeaderTrade
			side string
			ts   int64
		)
		if err := rows.Scan(
			&t.ID, &t.Wallet, &t.TxHash, &t.ConditionID, &t.Asset, &t.Outcome,
			&side, &t.Size, &t.Price, &ts, &t.MarketSlug, &t.MarketTitle,
		); err != nil {
			return nil, fmt.Errorf("storage.PendingTrades: scan row: %w", err)
		}
		t.Side = domain.Side(side)
		t.Timestamp = fromMillis(ts)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// LatestMarks devuelve el precio del trade más reciente por (mercado, outcome).
// Empates de timestamp se resuelven por id.
func (s *SQLiteStorage) LatestMarks(ctx context.Context) (domain.Marks, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, outcome, price FROM (
			SELECT condition_id, outcome, price,
			       ROW_NUMBER() OVER (
			           PARTITION BY condition_id, outcome
			           ORDER BY timestamp DESC, id DESC
			       ) AS rn
			FROM leader_trades
		) WHERE rn = 1`)
	if err != nil {
		return nil, fmt.Errorf("storage.LatestMarks: query: %w", err)
	}
	defer rows.Close()

	marks := make(domain.Marks)
	for rows.Next() {
		var (
			k  domain.MarkKey
			px decimal.Decimal
		)
		if err := rows.Scan(&k.ConditionID, &k.Outcome, &px); err != nil {
			return nil, fmt.Errorf("storage.LatestMarks: scan row: %w", err)
		}
		marks[k] = px
	}
	return marks, rows.Err()
}

// MaxTradeID devuelve el id más alto del log (0 si está vacío).
func (s *SQLiteStorage) MaxTradeID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM leader_trades`).Scan(&id); err != nil {
		return 0, fmt.Errorf("storage.MaxTradeID: %w", err)
	}
	return id.Int64, nil
}

// --- markets ---

// MissingMarkets devuelve los condition ids sin fila en markets.
func (s *SQLiteStorage) MissingMarkets(ctx context.Context, conditionIDs []string) ([]string, error) {
	ids := uniqueNonEmpty(conditionIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT condition_id FROM markets WHERE condition_id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.MissingMarkets: query: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.MissingMarkets: scan row: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.MissingMarkets: %w", err)
	}

	var missing []string
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// UpsertMarkets guarda o actualiza metadata de Gamma.
func (s *SQLiteStorage) UpsertMarkets(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.UpsertMarkets: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO markets (condition_id, slug, title, category, end_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			slug       = excluded.slug,
			title      = excluded.title,
			category   = excluded.category,
			end_date   = excluded.end_date,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("storage.UpsertMarkets: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range markets {
		updated := m.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		var endDate *int64
		if !m.EndDate.IsZero() {
			ms := m.EndDate.UnixMilli()
			endDate = &ms
		}
		if _, err := stmt.ExecContext(ctx,
			m.ConditionID, m.Slug, m.Title, m.Category, endDate, toMillis(updated),
		); err != nil {
			return fmt.Errorf("storage.UpsertMarkets: upsert %s: %w", m.ConditionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.UpsertMarkets: commit: %w", err)
	}
	return nil
}

// MarketTitles devuelve condition id → título, con fallback al título que
// trajo el propio trade cuando Gamma no lo tiene.
func (s *SQLiteStorage) MarketTitles(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, title FROM markets WHERE COALESCE(title, '') <> ''
		UNION ALL
		SELECT condition_id, MAX(market_title) FROM leader_trades
		WHERE COALESCE(market_title, '') <> ''
		  AND condition_id NOT IN (SELECT condition_id FROM markets WHERE COALESCE(title, '') <> '')
		GROUP BY condition_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.MarketTitles: query: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("storage.MarketTitles: scan row: %w", err)
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
