// Package sqlite implements the ledger stores on an embedded SQLite file
// via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// tsLayout is fixed-width so that text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    cost_price  REAL NOT NULL DEFAULT 0,
    quantity    INTEGER NOT NULL DEFAULT 0,
    commission  REAL NOT NULL DEFAULT 0,
    buy_date    TEXT NOT NULL,
    status      TEXT NOT NULL,
    plan_ids    TEXT NOT NULL DEFAULT '[]',
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_code_status ON positions (code, status);

CREATE TABLE IF NOT EXISTS plans (
    id                 TEXT PRIMARY KEY,
    position_id        TEXT NOT NULL,
    kind               TEXT NOT NULL,
    take_profit_price  REAL,
    stop_loss_price    REAL,
    take_profit_ratio  REAL,
    stop_loss_ratio    REAL,
    status             TEXT NOT NULL,
    auto_execute       INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL,
    closed_at          TEXT
);
CREATE INDEX IF NOT EXISTS idx_plans_position ON plans (position_id);

CREATE TABLE IF NOT EXISTS trades (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    code        TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    side        TEXT NOT NULL,
    price       REAL NOT NULL,
    quantity    INTEGER NOT NULL,
    commission  REAL NOT NULL DEFAULT 0,
    traded_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_code_time ON trades (code, traded_at, seq);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    event       TEXT NOT NULL,
    code        TEXT NOT NULL DEFAULT '',
    detail      TEXT,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log (created_at);
`

// Database wraps the SQL handle shared by the sqlite stores.
type Database struct {
	DB *sql.DB
}

// Open opens (and creates if needed) the SQLite database at path and
// applies the schema.
func Open(ctx context.Context, path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Database{DB: db}, nil
}

// Ping checks that the database handle is usable.
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

type scanner interface {
	Scan(dest ...any) error
}
