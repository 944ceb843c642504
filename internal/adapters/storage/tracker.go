package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const trackerSchema = `
CREATE TABLE IF NOT EXISTS tracked_positions (
    leader_wallet TEXT    NOT NULL,
    condition_id  TEXT    NOT NULL,
    outcome       TEXT    NOT NULL DEFAULT '',
    size          TEXT    NOT NULL,
    avg_price     TEXT    NOT NULL,
    cur_price     TEXT    NOT NULL,
    current_value TEXT    NOT NULL,
    title         TEXT,
    slug          TEXT,
    event_slug    TEXT,
    category      TEXT,
    updated_at    INTEGER NOT NULL,
    first_seen_at INTEGER NOT NULL,
    PRIMARY KEY (leader_wallet, condition_id, outcome)
);

CREATE TABLE IF NOT EXISTS tracker_reviews (
    condition_id TEXT    NOT NULL,
    outcome      TEXT    NOT NULL DEFAULT '',
    reviewed_at  INTEGER NOT NULL,
    PRIMARY KEY (condition_id, outcome)
);

CREATE TABLE IF NOT EXISTS tracker_state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const (
	trackerLastSuccess = "last_success"
	trackerCutoff      = "first_seen_cutoff"
)

// ApplyTrackerSchema crea las tablas del tracker de posiciones de leaders.
func (s *SQLiteStorage) ApplyTrackerSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, trackerSchema); err != nil {
		return fmt.Errorf("storage.ApplyTrackerSchema: %w", err)
	}
	return nil
}

// ReplaceLeaderPositions sustituye las posiciones abiertas de wallet por las
// dadas, en una transacción. first_seen_at se conserva para las que ya
// existían; las que no vienen se borran.
func (s *SQLiteStorage) ReplaceLeaderPositions(ctx context.Context, wallet string, positions []domain.LeaderPosition, now time.Time) error {
	wallet = domain.NormalizeWallet(wallet)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracked_positions
			(leader_wallet, condition_id, outcome, size, avg_price, cur_price, current_value,
			 title, slug, event_slug, category, updated_at, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(leader_wallet, condition_id, outcome) DO UPDATE SET
			size          = excluded.size,
			avg_price     = excluded.avg_price,
			cur_price     = excluded.cur_price,
			current_value = excluded.current_value,
			title         = excluded.title,
			slug          = excluded.slug,
			event_slug    = excluded.event_slug,
			category      = excluded.category,
			updated_at    = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: prepare: %w", err)
	}
	defer stmt.Close()

	// Tabla temporal de claves vistas para borrar el resto con una query.
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS seen_positions (condition_id TEXT, outcome TEXT)`); err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: temp table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_positions`); err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: reset temp table: %w", err)
	}

	for _, p := range positions {
		updated := p.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		outcome := domain.NormalizeOutcome(p.Outcome)
		if _, err := stmt.ExecContext(ctx,
			wallet, p.ConditionID, outcome,
			p.Size.String(), p.AvgPrice.String(), p.CurPrice.String(), p.CurrentValue.String(),
			nullString(p.Title), nullString(p.Slug), nullString(p.EventSlug), nullString(p.Category),
			toMillis(updated), toMillis(updated),
		); err != nil {
			return fmt.Errorf("storage.ReplaceLeaderPositions: upsert %s: %w", p.ConditionID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO seen_positions VALUES (?, ?)`, p.ConditionID, outcome); err != nil {
			return fmt.Errorf("storage.ReplaceLeaderPositions: mark seen: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tracked_positions
		WHERE leader_wallet = ?
		  AND NOT EXISTS (
			SELECT 1 FROM seen_positions s
			WHERE s.condition_id = tracked_positions.condition_id
			  AND s.outcome = tracked_positions.outcome
		  )`, wallet); err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: prune: %w", err)
	}

	if err := setTrackerState(ctx, tx, trackerLastSuccess, now, true); err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.ReplaceLeaderPositions: commit: %w", err)
	}
	return nil
}

// SeedFirstSeenCutoff fija el cutoff de "no leído" la primera vez. Las
// llamadas posteriores no lo mueven.
func (s *SQLiteStorage) SeedFirstSeenCutoff(ctx context.Context, at time.Time) error {
	if err := setTrackerState(ctx, s.db, trackerCutoff, at, false); err != nil {
		return fmt.Errorf("storage.SeedFirstSeenCutoff: %w", err)
	}
	return nil
}

func setTrackerState(ctx context.Context, db execer, key string, at time.Time, overwrite bool) error {
	q := `INSERT OR IGNORE INTO tracker_state (key, value) VALUES (?, ?)`
	if overwrite {
		q = `INSERT INTO tracker_state (key, value) VALUES (?, ?)
		     ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	}
	if _, err := db.ExecContext(ctx, q, key, strconv.FormatInt(toMillis(at), 10)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// TrackerState devuelve el último poll correcto y el cutoff; cero si no hay.
func (s *SQLiteStorage) TrackerState(ctx context.Context) (lastSuccess, cutoff time.Time, err error) {
	read := func(key string) (time.Time, error) {
		var v string
		err := s.db.QueryRowContext(ctx, `SELECT value FROM tracker_state WHERE key = ?`, key).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		if err != nil {
			return time.Time{}, err
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", key, err)
		}
		return fromMillis(ms), nil
	}
	if lastSuccess, err = read(trackerLastSuccess); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("storage.TrackerState: %w", err)
	}
	if cutoff, err = read(trackerCutoff); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("storage.TrackerState: %w", err)
	}
	return lastSuccess, cutoff, nil
}

// LeaderPositions devuelve todas las posiciones guardadas, las más recientes primero.
func (s *SQLiteStorage) LeaderPositions(ctx context.Context) ([]domain.LeaderPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT leader_wallet, condition_id, outcome, size, avg_price, cur_price, current_value,
		       COALESCE(title, ''), COALESCE(slug, ''), COALESCE(event_slug, ''), COALESCE(category, ''),
		       updated_at, first_seen_at
		FROM tracked_positions
		ORDER BY updated_at DESC, leader_wallet, condition_id, outcome`)
	if err != nil {
		return nil, fmt.Errorf("storage.LeaderPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderPosition
	for rows.Next() {
		var (
			p                 domain.LeaderPosition
			updated, firstSee int64
		)
		if err := rows.Scan(
			&p.Wallet, &p.ConditionID, &p.Outcome, &p.Size, &p.AvgPrice, &p.CurPrice, &p.CurrentValue,
			&p.Title, &p.Slug, &p.EventSlug, &p.Category, &updated, &firstSee,
		); err != nil {
			return nil, fmt.Errorf("storage.LeaderPositions: scan row: %w", err)
		}
		p.UpdatedAt = fromMillis(updated)
		p.FirstSeenAt = fromMillis(firstSee)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkReviewed registra que un outcome agregado ya se revisó.
func (s *SQLiteStorage) MarkReviewed(ctx context.Context, key domain.MarkKey, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracker_reviews (condition_id, outcome, reviewed_at) VALUES (?, ?, ?)
		ON CONFLICT(condition_id, outcome) DO UPDATE SET reviewed_at = excluded.reviewed_at`,
		key.ConditionID, domain.NormalizeOutcome(key.Outcome), toMillis(at))
	if err != nil {
		return fmt.Errorf("storage.MarkReviewed: %s: %w", key.ConditionID, err)
	}
	return nil
}

// TrackerReviews devuelve (condition_id, outcome) → momento de la revisión.
func (s *SQLiteStorage) TrackerReviews(ctx context.Context) (map[domain.MarkKey]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT condition_id, outcome, reviewed_at FROM tracker_reviews`)
	if err != nil {
		return nil, fmt.Errorf("storage.TrackerReviews: query: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.MarkKey]time.Time)
	for rows.Next() {
		var (
			k  domain.MarkKey
			at int64
		)
		if err := rows.Scan(&k.ConditionID, &k.Outcome, &at); err != nil {
			return nil, fmt.Errorf("storage.TrackerReviews: scan row: %w", err)
		}
		out[k] = fromMillis(at)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
