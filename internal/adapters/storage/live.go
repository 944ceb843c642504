package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const liveSchema = `
CREATE TABLE IF NOT EXISTS live_fills (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    leader_trade_id INTEGER NOT NULL,
    leader_wallet   TEXT    NOT NULL,
    condition_id    TEXT    NOT NULL,
    asset_id        TEXT    NOT NULL DEFAULT '',
    side            TEXT    NOT NULL,
    price           TEXT    NOT NULL,
    size            TEXT    NOT NULL,
    notional        TEXT    NOT NULL,
    status          TEXT    NOT NULL,
    reference       TEXT,
    fee             TEXT    NOT NULL DEFAULT '0',
    error           TEXT,
    submitted_at    INTEGER NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_live_fills_trade  ON live_fills(leader_trade_id);
CREATE INDEX IF NOT EXISTS idx_live_fills_status ON live_fills(status);
`

// ApplyLiveSchema crea las tablas de ejecución real si no existen.
func (s *SQLiteStorage) ApplyLiveSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, liveSchema); err != nil {
		return fmt.Errorf("storage.ApplyLiveSchema: %w", err)
	}
	return nil
}

// SaveLiveFill registra el resultado de un envío al CLOB (también DISABLED y
// DRY_RUN, para poder auditar qué se habría enviado).
func (s *SQLiteStorage) SaveLiveFill(ctx context.Context, f domain.LiveFill) error {
	var ref, errMsg *string
	if f.Result.Reference != "" {
		ref = &f.Result.Reference
	}
	if f.Result.Error != "" {
		errMsg = &f.Result.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_fills
			(leader_trade_id, leader_wallet, condition_id, asset_id, side, price, size,
			 notional, status, reference, fee, error, submitted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SourceTradeID, f.Leader, f.ConditionID, f.Asset, string(f.Side),
		f.Price.String(), f.Size.String(), f.Notional.String(),
		string(f.Result.Status), ref, f.Result.Fee.String(), errMsg,
		toMillis(f.Result.SubmittedAt), toMillis(f.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveLiveFill: trade %d: %w", f.SourceTradeID, err)
	}
	return nil
}

// LiveFills devuelve los envíos más recientes primero.
func (s *SQLiteStorage) LiveFills(ctx context.Context, limit int) ([]domain.LiveFill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, leader_trade_id, leader_wallet, condition_id, asset_id, side, price, size,
		       notional, status, COALESCE(reference, ''), fee, COALESCE(error, ''),
		       submitted_at, created_at
		FROM live_fills
		ORDER BY id DESC
		LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("storage.LiveFills: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LiveFill
	for rows.Next() {
		var (
			f                  domain.LiveFill
			side, status       string
			submitted, created int64
		)
		if err := rows.Scan(
			&f.ID, &f.SourceTradeID, &f.Leader, &f.ConditionID, &f.Asset, &side,
			&f.Price, &f.Size, &f.Notional, &status, &f.Result.Reference,
			&f.Result.Fee, &f.Result.Error, &submitted, &created,
		); err != nil {
			return nil, fmt.Errorf("storage.LiveFills: scan row: %w", err)
		}
		f.Side = domain.Side(side)
		f.Result.Status = domain.ExecutionStatus(status)
		f.Result.SubmittedAt = fromMillis(submitted)
		f.CreatedAt = fromMillis(created)
		out = append(out, f)
	}
	return out, rows.Err()
}
