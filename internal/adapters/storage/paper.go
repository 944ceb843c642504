package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS paper_positions (
    condition_id  TEXT    NOT NULL,
    outcome       TEXT    NOT NULL DEFAULT '',
    leader_wallet TEXT    NOT NULL,
    size          TEXT    NOT NULL,
    avg_price     TEXT    NOT NULL,
    updated_at    INTEGER NOT NULL,
    PRIMARY KEY (condition_id, outcome, leader_wallet)
);

CREATE TABLE IF NOT EXISTS paper_fills (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    leader_trade_id INTEGER NOT NULL UNIQUE,
    leader_wallet   TEXT    NOT NULL,
    condition_id    TEXT    NOT NULL,
    outcome         TEXT    NOT NULL DEFAULT '',
    asset_id        TEXT    NOT NULL DEFAULT '',
    side            TEXT    NOT NULL,
    price           TEXT    NOT NULL,
    size            TEXT    NOT NULL,
    notional        TEXT    NOT NULL,
    realized        TEXT    NOT NULL DEFAULT '0',
    timestamp       INTEGER NOT NULL,
    rule_label      TEXT,
    created_at      INTEGER NOT NULL
);

-- Una sola fila: cash, realized y cursor se escriben juntos
CREATE TABLE IF NOT EXISTS paper_state (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    cash          TEXT    NOT NULL,
    realized      TEXT    NOT NULL,
    last_trade_id INTEGER NOT NULL,
    epoch_start   INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_portfolio (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    equity     TEXT    NOT NULL,
    cash       TEXT    NOT NULL,
    unrealized TEXT    NOT NULL,
    realized   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_rejections (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    leader_trade_id INTEGER NOT NULL,
    reason          TEXT    NOT NULL,
    rejected_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paper_fills_side  ON paper_fills(side, id);
CREATE INDEX IF NOT EXISTS idx_paper_portfolio_ts ON paper_portfolio(timestamp);
`

// ApplyLedgerSchema crea las tablas del ledger si no existen.
func (s *SQLiteStorage) ApplyLedgerSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("storage.ApplyLedgerSchema: %w", err)
	}
	return nil
}

// LoadState lee el estado del ledger. ok=false si nunca se inicializó.
func (s *SQLiteStorage) LoadState(ctx context.Context) (domain.LedgerState, bool, error) {
	return loadState(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadState(ctx context.Context, q queryRower) (domain.LedgerState, bool, error) {
	var (
		st    domain.LedgerState
		epoch int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT cash, realized, last_trade_id, epoch_start FROM paper_state WHERE id = 1`,
	).Scan(&st.Cash, &st.Realized, &st.LastTradeID, &epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadState: %w", err)
	}
	st.EpochStart = fromMillis(epoch)
	return st, true, nil
}

// InitState crea el estado inicial y el primer snapshot. Si ya existe un
// estado, no hace nada.
func (s *SQLiteStorage) InitState(ctx context.Context, state domain.LedgerState, snap domain.PortfolioSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InitState: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO paper_state (id, cash, realized, last_trade_id, epoch_start, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)`,
		state.Cash.String(), state.Realized.String(), state.LastTradeID,
		toMillis(state.EpochStart), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("storage.InitState: insert state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if err := insertSnapshot(ctx, tx, snap); err != nil {
		return fmt.Errorf("storage.InitState: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.InitState: commit: %w", err)
	}
	return nil
}

// Positions devuelve todas las posiciones abiertas.
func (s *SQLiteStorage) Positions(ctx context.Context) ([]domain.FollowerPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, outcome, leader_wallet, size, avg_price, updated_at
		FROM paper_positions
		ORDER BY leader_wallet, condition_id, outcome`)
	if err != nil {
		return nil, fmt.Errorf("storage.Positions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.FollowerPosition
	for rows.Next() {
		var (
			p       domain.FollowerPosition
			updated int64
		)
		if err := rows.Scan(
			&p.Key.ConditionID, &p.Key.Outcome, &p.Key.Leader,
			&p.Size, &p.AvgPrice, &updated,
		); err != nil {
			return nil, fmt.Errorf("storage.Positions: scan row: %w", err)
		}
		p.UpdatedAt = fromMillis(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyTrade confirma el resultado de un trade del leader en una sola
// transacción. Si el trade ya está por debajo del cursor devuelve
// domain.ErrAlreadyApplied sin tocar nada.
func (s *SQLiteStorage) ApplyTrade(ctx context.Context, o domain.TradeOutcome) error {
	if o.State.LastTradeID != o.TradeID {
		return fmt.Errorf("storage.ApplyTrade: state cursor %d does not match trade %d", o.State.LastTradeID, o.TradeID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.ApplyTrade: begin tx: %w", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx, `SELECT last_trade_id FROM paper_state WHERE id = 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storage.ApplyTrade: ledger state not initialised")
	}
	if err != nil {
		return fmt.Errorf("storage.ApplyTrade: read cursor: %w", err)
	}
	if o.TradeID <= last {
		return fmt.Errorf("storage.ApplyTrade: trade %d (cursor %d): %w", o.TradeID, last, domain.ErrAlreadyApplied)
	}

	now := time.Now().UnixMilli()

	if !o.Filled() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE paper_state SET last_trade_id = ?, updated_at = ? WHERE id = 1`,
			o.TradeID, now,
		); err != nil {
			return fmt.Errorf("storage.ApplyTrade: advance cursor: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage.ApplyTrade: commit: %w", err)
		}
		return nil
	}

	k := o.Key
	if o.Change.Closed() {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM paper_positions WHERE condition_id = ? AND outcome = ? AND leader_wallet = ?`,
			k.ConditionID, k.Outcome, k.Leader,
		); err != nil {
			return fmt.Errorf("storage.ApplyTrade: delete position %s: %w", k, err)
		}
	} else {
		p := o.Change.Next
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO paper_positions (condition_id, outcome, leader_wallet, size, avg_price, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(condition_id, outcome, leader_wallet) DO UPDATE SET
				size       = excluded.size,
				avg_price  = excluded.avg_price,
				updated_at = excluded.updated_at`,
			k.ConditionID, k.Outcome, k.Leader,
			p.Size.String(), p.AvgPrice.String(), toMillis(p.UpdatedAt),
		); err != nil {
			return fmt.Errorf("storage.ApplyTrade: upsert position %s: %w", k, err)
		}
	}

	f := o.Fill
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO paper_fills
			(leader_trade_id, leader_wallet, condition_id, outcome, asset_id, side,
			 price, size, notional, realized, timestamp, rule_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SourceTradeID, f.Leader, f.ConditionID, f.Outcome, f.Asset, string(f.Side),
		f.Price.String(), f.Size.String(), f.SignedNotional.String(), o.Change.Realized.String(),
		toMillis(f.Timestamp), f.RuleLabel, toMillis(f.CreatedAt),
	); err != nil {
		return fmt.Errorf("storage.ApplyTrade: insert fill for trade %d: %w", f.SourceTradeID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE paper_state
		SET cash = ?, realized = ?, last_trade_id = ?, updated_at = ?
		WHERE id = 1`,
		o.State.Cash.String(), o.State.Realized.String(), o.TradeID, now,
	); err != nil {
		return fmt.Errorf("storage.ApplyTrade: update state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.ApplyTrade: commit: %w", err)
	}
	return nil
}

// RecordRejection guarda un trade rechazado por el ledger. El cursor no se mueve.
func (s *SQLiteStorage) RecordRejection(ctx context.Context, r domain.Rejection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_rejections (leader_trade_id, reason, rejected_at) VALUES (?, ?, ?)`,
		r.TradeID, r.Reason, toMillis(r.RejectedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordRejection: %w", err)
	}
	return nil
}

// Rejections devuelve los rechazos más recientes primero.
func (s *SQLiteStorage) Rejections(ctx context.Context, limit int) ([]domain.Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT leader_trade_id, reason, rejected_at
		FROM ledger_rejections
		ORDER BY id DESC
		LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("storage.Rejections: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Rejection
	for rows.Next() {
		var (
			r  domain.Rejection
			at int64
		)
		if err := rows.Scan(&r.TradeID, &r.Reason, &at); err != nil {
			return nil, fmt.Errorf("storage.Rejections: scan row: %w", err)
		}
		r.RejectedAt = fromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset borra posiciones, fills, snapshots y rechazos, y arranca una epoch
// nueva con el estado dado y su snapshot inicial. live_fills se conserva.
func (s *SQLiteStorage) Reset(ctx context.Context, state domain.LedgerState, snap domain.PortfolioSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Reset: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM paper_positions`,
		`DELETE FROM paper_fills`,
		`DELETE FROM paper_portfolio`,
		`DELETE FROM ledger_rejections`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage.Reset: %s: %w", stmt, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO paper_state (id, cash, realized, last_trade_id, epoch_start, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cash          = excluded.cash,
			realized      = excluded.realized,
			last_trade_id = excluded.last_trade_id,
			epoch_start   = excluded.epoch_start,
			updated_at    = excluded.updated_at`,
		state.Cash.String(), state.Realized.String(), state.LastTradeID,
		toMillis(state.EpochStart), time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("storage.Reset: write state: %w", err)
	}

	if err := insertSnapshot(ctx, tx, snap); err != nil {
		return fmt.Errorf("storage.Reset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Reset: commit: %w", err)
	}
	return nil
}

// Fills devuelve fills recientes con título de mercado. side vacío = todos.
func (s *SQLiteStorage) Fills(ctx context.Context, side domain.Side, limit int) ([]domain.FillView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.leader_trade_id, f.leader_wallet, f.condition_id, f.outcome, f.asset_id,
		       f.side, f.price, f.size, f.notional, f.timestamp, COALESCE(f.rule_label, ''), f.created_at,
		       COALESCE(m.title, lt.market_title, '')
		FROM paper_fills f
		LEFT JOIN leader_trades lt ON lt.id = f.leader_trade_id
		LEFT JOIN markets m ON m.condition_id = f.condition_id
		WHERE (? = '' OR f.side = ?)
		ORDER BY f.id DESC
		LIMIT ?`,
		string(side), string(side), limitOrAll(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Fills: query: %w", err)
	}
	defer rows.Close()

	var out []domain.FillView
	for rows.Next() {
		var (
			v           domain.FillView
			sideStr     string
			ts, created int64
		)
		if err := rows.Scan(
			&v.ID, &v.SourceTradeID, &v.Leader, &v.ConditionID, &v.Outcome, &v.Asset,
			&sideStr, &v.Price, &v.Size, &v.SignedNotional, &ts, &v.RuleLabel, &created,
			&v.Title,
		); err != nil {
			return nil, fmt.Errorf("storage.Fills: scan row: %w", err)
		}
		v.Side = domain.Side(sideStr)
		v.Timestamp = fromMillis(ts)
		v.CreatedAt = fromMillis(created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// RealizedByLeader suma el P&L realizado de los fills por leader.
func (s *SQLiteStorage) RealizedByLeader(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT leader_wallet, realized FROM paper_fills WHERE realized <> '0'`)
	if err != nil {
		return nil, fmt.Errorf("storage.RealizedByLeader: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			leader string
			pnl    decimal.Decimal
		)
		if err := rows.Scan(&leader, &pnl); err != nil {
			return nil, fmt.Errorf("storage.RealizedByLeader: scan row: %w", err)
		}
		out[leader] = out[leader].Add(pnl)
	}
	return out, rows.Err()
}
