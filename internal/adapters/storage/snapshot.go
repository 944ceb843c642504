package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSnapshot(ctx context.Context, db execer, snap domain.PortfolioSnapshot) error {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO paper_portfolio (timestamp, equity, cash, unrealized, realized)
		VALUES (?, ?, ?, ?, ?)`,
		toMillis(ts), snap.Equity.String(), snap.Cash.String(),
		snap.Unrealized.String(), snap.Realized.String(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// AppendSnapshot añade una muestra a la serie de equity. Nunca actualiza.
func (s *SQLiteStorage) AppendSnapshot(ctx context.Context, snap domain.PortfolioSnapshot) error {
	if err := insertSnapshot(ctx, s.db, snap); err != nil {
		return fmt.Errorf("storage.AppendSnapshot: %w", err)
	}
	return nil
}

// LatestSnapshot devuelve la última muestra; ok=false si no hay ninguna.
func (s *SQLiteStorage) LatestSnapshot(ctx context.Context) (domain.PortfolioSnapshot, bool, error) {
	var (
		snap domain.PortfolioSnapshot
		ts   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, equity, cash, unrealized, realized
		FROM paper_portfolio
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`,
	).Scan(&snap.ID, &ts, &snap.Equity, &snap.Cash, &snap.Unrealized, &snap.Realized)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PortfolioSnapshot{}, false, nil
	}
	if err != nil {
		return domain.PortfolioSnapshot{}, false, fmt.Errorf("storage.LatestSnapshot: %w", err)
	}
	snap.Timestamp = fromMillis(ts)
	return snap, true, nil
}

// EquitySeries agrupa los snapshots en buckets de intervalSec segundos y
// devuelve la última muestra de cada bucket, los limit buckets más recientes,
// en orden cronológico.
func (s *SQLiteStorage) EquitySeries(ctx context.Context, intervalSec int64, limit int) ([]domain.PortfolioSnapshot, error) {
	if intervalSec <= 0 {
		return nil, fmt.Errorf("storage.EquitySeries: interval must be positive, got %d", intervalSec)
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT id, timestamp, equity, cash, unrealized, realized,
			       ROW_NUMBER() OVER (
			           PARTITION BY timestamp / 1000 / ?
			           ORDER BY timestamp DESC, id DESC
			       ) AS rn
			FROM paper_portfolio
		),
		latest AS (
			SELECT * FROM ranked WHERE rn = 1
			ORDER BY timestamp DESC
			LIMIT ?
		)
		SELECT id, timestamp, equity, cash, unrealized, realized
		FROM latest
		ORDER BY timestamp ASC`,
		intervalSec, limitOrAll(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.EquitySeries: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioSnapshot
	for rows.Next() {
		var (
			snap domain.PortfolioSnapshot
			ts   int64
		)
		if err := rows.Scan(&snap.ID, &ts, &snap.Equity, &snap.Cash, &snap.Unrealized, &snap.Realized); err != nil {
			return nil, fmt.Errorf("storage.EquitySeries: scan row: %w", err)
		}
		snap.Timestamp = fromMillis(ts)
		out = append(out, snap)
	}
	return out, rows.Err()
}
