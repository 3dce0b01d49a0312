package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// busyTimeoutMS lets a second process wait for the write lock instead of failing.
const busyTimeoutMS = 5000

// Connection is the history database handle.
type Connection struct {
	db   *sql.DB
	path string
}

// Open opens the history database at path, creating its directory and schema when missing.
func Open(path string) (*Connection, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMS)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; runs are sequential anyway.
	sqlDB.SetMaxOpenConns(1)

	conn := &Connection{db: sqlDB, path: path}
	if err := conn.init(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Connection) init(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := InitializeSchema(ctx, c); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Connection) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Connection) Path() string {
	return c.path
}

// Query runs a statement returning rows.
func (c *Connection) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement returning at most one row.
func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Exec runs a statement returning no rows.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// Transaction runs fn in a transaction. It commits when fn returns nil and rolls back
// otherwise, including when fn panics.
func (c *Connection) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
