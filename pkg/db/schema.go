// Package db provides the SQLite import history: runs, imported lines and the per-target
// block cursor used for incremental fetches.
package db

import "context"

// Schema defines the SQL statements to create database tables.
const Schema = `
-- One row per sync invocation of a (wallet, token) target
CREATE TABLE IF NOT EXISTS import_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,        -- uuid
    wallet TEXT NOT NULL,
    token TEXT NOT NULL,
    journal_code TEXT NOT NULL,
    dry_run INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP,
    created INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    last_block INTEGER NOT NULL DEFAULT 0,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_import_runs_target
    ON import_runs(wallet, token);

-- Statement lines created in the ledger, keyed by dedup key
CREATE TABLE IF NOT EXISTS imported_lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES import_runs(run_id),
    dedup_key TEXT NOT NULL UNIQUE,     -- hash:index:token
    journal_id INTEGER NOT NULL,
    statement_id INTEGER NOT NULL,
    line_id INTEGER NOT NULL,
    line_date TEXT NOT NULL,            -- YYYY-MM-DD
    amount TEXT NOT NULL,               -- exact decimal
    tx_hash TEXT NOT NULL,
    counterparty TEXT NOT NULL,
    imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_imported_lines_date
    ON imported_lines(line_date);

-- Key-value metadata (block cursors)
CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(ctx context.Context, conn *Connection) error {
	if _, err := conn.Exec(ctx, Schema); err != nil {
		return err
	}
	return nil
}
