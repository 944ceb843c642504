package storage

// sqlite.go: estado durable del copy-trader.
//
// Estrategia:
//   - `leader_trades`: log append-only de trades de los leaders. El id AUTOINCREMENT
//     es el orden de consumo del ledger; la UNIQUE deduplica poller y RTDS.
//   - `markets`: metadata de Gamma, una fila por condition id.
//   - Ledger (paper.go): posiciones, fills, estado y snapshots. Cada trade
//     aplicado es UNA transacción, junto con el avance del cursor.
//   - Live (live.go): resultados de envío al CLOB, nunca afectan al ledger.
//   - Tracker (tracker.go): posiciones abiertas de leaders y revisiones.
//   - Intents (intents.go): órdenes simuladas por reglas de seguimiento.
//
// Cantidades monetarias en TEXT (decimal canónico), timestamps en unix ms.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS leader_trades (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    proxy_wallet     TEXT    NOT NULL,
    transaction_hash TEXT    NOT NULL,
    condition_id     TEXT    NOT NULL,
    asset_id         TEXT    NOT NULL DEFAULT '',
    outcome          TEXT    NOT NULL DEFAULT '',
    side             TEXT    NOT NULL,
    size             TEXT    NOT NULL,
    price            TEXT    NOT NULL,
    timestamp        INTEGER NOT NULL,
    market_slug      TEXT,
    market_title     TEXT,
    UNIQUE(proxy_wallet, transaction_hash, asset_id, side, size, price, timestamp)
);

CREATE TABLE IF NOT EXISTS markets (
    condition_id TEXT PRIMARY KEY,
    slug         TEXT,
    title        TEXT,
    category     TEXT,
    end_date     INTEGER,
    updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leader_trades_wallet_ts  ON leader_trades(proxy_wallet, timestamp);
CREATE INDEX IF NOT EXISTS idx_leader_trades_market_ts  ON leader_trades(condition_id, outcome, timestamp);
CREATE INDEX IF NOT EXISTS idx_leader_trades_ts         ON leader_trades(timestamp);
`

// SQLiteStorage implementa TradeLog, LedgerStore, LiveStorage y ReadModel
// usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// todos los schemas. ":memory:" sirve para tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	// Resistente a locks transitorios si otro proceso (dashboard) lee el fichero.
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA wal_autocheckpoint = 1000",
		"PRAGMA journal_size_limit = 134217728",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	ctx := context.Background()
	s.migrate(ctx)
	if err := s.ApplyLedgerSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ApplyLiveSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ApplyTrackerSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ApplyIntentSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate añade columnas que no existían en bases antiguas.
func (s *SQLiteStorage) migrate(ctx context.Context) {
	for _, stmt := range []string{
		"ALTER TABLE leader_trades ADD COLUMN outcome TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE leader_trades ADD COLUMN asset_id TEXT NOT NULL DEFAULT ''",
	} {
		s.db.ExecContext(ctx, stmt) // ignore errors (column already exists)
	}
}

// Ping checks the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return fromMillis(ms.Int64)
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1 // LIMIT -1 en SQLite = sin límite
	}
	return limit
}
