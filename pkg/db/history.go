package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencollective/odoo-web3/pkg/reconcile"
)

// Run is one recorded sync invocation.
type Run struct {
	ID          string
	Wallet      string
	Token       string
	JournalCode string
	DryRun      bool
	StartedAt   time.Time
}

// RunSummary is what a finished run reports back.
type RunSummary struct {
	Created   int
	Skipped   int
	Failed    int
	LastBlock int64
	Err       error
}

// ImportedLine is a statement line recorded in the history.
type ImportedLine struct {
	RunID        string
	DedupKey     string
	JournalID    int64
	StatementID  int64
	LineID       int64
	Date         string
	Amount       string
	TxHash       string
	Counterparty string
}

// History manages the import history.
type History struct {
	conn *Connection
	now  func() time.Time
}

// NewHistory creates a new History instance.
func NewHistory(conn *Connection) *History {
	return &History{conn: conn, now: time.Now}
}

// StartRun records the start of a run and returns it with a fresh id.
func (h *History) StartRun(ctx context.Context, wallet, token, journalCode string, dryRun bool) (*Run, error) {
	run := &Run{
		ID:          uuid.NewString(),
		Wallet:      strings.ToLower(wallet),
		Token:       strings.ToLower(token),
		JournalCode: journalCode,
		DryRun:      dryRun,
		StartedAt:   h.now().UTC(),
	}

	_, err := h.conn.Exec(ctx, `
		INSERT INTO import_runs (run_id, wallet, token, journal_code, dry_run, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Wallet, run.Token, run.JournalCode, run.DryRun, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	return run, nil
}

// FinishRun stores the run's counters. The block cursor of the target only moves forward,
// and only for a real run that imported every event.
func (h *History) FinishRun(ctx context.Context, run *Run, summary RunSummary) error {
	var errText sql.NullString
	if summary.Err != nil {
		errText = sql.NullString{String: summary.Err.Error(), Valid: true}
	}

	advance := !run.DryRun && summary.Err == nil && summary.Failed == 0 && summary.LastBlock > 0

	return h.conn.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE import_runs
			SET finished_at = ?, created = ?, skipped = ?, failed = ?, last_block = ?, error = ?
			WHERE run_id = ?
		`, h.now().UTC(), summary.Created, summary.Skipped, summary.Failed, summary.LastBlock, errText, run.ID); err != nil {
			return fmt.Errorf("failed to record run end: %w", err)
		}

		if !advance {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_metadata (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = CURRENT_TIMESTAMP
			WHERE CAST(sync_metadata.value AS INTEGER) < CAST(excluded.value AS INTEGER)
		`, cursorKey(run.Wallet, run.Token), strconv.FormatInt(summary.LastBlock, 10)); err != nil {
			return fmt.Errorf("failed to advance block cursor: %w", err)
		}
		return nil
	})
}

// LastBlock returns the last fully imported block of (wallet, token); 0 when none.
func (h *History) LastBlock(ctx context.Context, wallet, token string) (int64, error) {
	value, err := h.GetMetadata(ctx, cursorKey(wallet, token))
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	block, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block cursor %q: %w", value, err)
	}
	return block, nil
}

// RecordLine records a created statement line. Recording the same dedup key twice is a no-op.
func (h *History) RecordLine(ctx context.Context, line ImportedLine) error {
	_, err := h.conn.Exec(ctx, `
		INSERT INTO imported_lines
			(run_id, dedup_key, journal_id, statement_id, line_id, line_date, amount, tx_hash, counterparty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING
	`,
		line.RunID,
		line.DedupKey,
		line.JournalID,
		line.StatementID,
		line.LineID,
		line.Date,
		line.Amount,
		line.TxHash,
		line.Counterparty,
	)
	if err != nil {
		return fmt.Errorf("failed to record line: %w", err)
	}
	return nil
}

// LinesByMonth returns the recorded lines dated in monthKey (YYYY-MM), oldest first.
func (h *History) LinesByMonth(ctx context.Context, monthKey string) ([]ImportedLine, error) {
	rows, err := h.conn.Query(ctx, `
		SELECT run_id, dedup_key, journal_id, statement_id, line_id, line_date, amount, tx_hash, counterparty
		FROM imported_lines
		WHERE substr(line_date, 1, 7) = ?
		ORDER BY line_date, id
	`, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get lines by month: %w", err)
	}
	defer rows.Close()

	var lines []ImportedLine
	for rows.Next() {
		var line ImportedLine
		if err := rows.Scan(
			&line.RunID,
			&line.DedupKey,
			&line.JournalID,
			&line.StatementID,
			&line.LineID,
			&line.Date,
			&line.Amount,
			&line.TxHash,
			&line.Counterparty,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Sink returns a line sink recording created lines under run.
func (h *History) Sink(run *Run) *RunSink {
	return &RunSink{history: h, run: run}
}

// RunSink records the lines created during one run.
type RunSink struct {
	history *History
	run     *Run
}

// LineCreated implements reconcile.LineSink.
func (s *RunSink) LineCreated(ctx context.Context, line reconcile.LedgerLine) error {
	return s.history.RecordLine(ctx, ImportedLine{
		RunID:        s.run.ID,
		DedupKey:     line.DedupKey,
		JournalID:    line.JournalID,
		StatementID:  line.PeriodID,
		LineID:       line.ID,
		Date:         line.Date,
		Amount:       line.Amount.String(),
		TxHash:       line.TxHash,
		Counterparty: line.Counterparty,
	})
}

// Stats represents import statistics.
type Stats struct {
	TotalRuns    int
	DryRuns      int
	TotalLines   int
	FailedEvents int
	LastRun      sql.NullString
}

// GetStats retrieves import statistics.
func (h *History) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	err := h.conn.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(dry_run), 0), COALESCE(SUM(failed), 0)
		FROM import_runs
	`).Scan(&stats.TotalRuns, &stats.DryRuns, &stats.FailedEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get run counts: %w", err)
	}

	err = h.conn.QueryRow(ctx, `SELECT COUNT(*) FROM imported_lines`).Scan(&stats.TotalLines)
	if err != nil {
		return nil, fmt.Errorf("failed to get line count: %w", err)
	}

	err = h.conn.QueryRow(ctx, `SELECT MAX(started_at) FROM import_runs`).Scan(&stats.LastRun)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last run time: %w", err)
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value.
func (h *History) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := h.conn.QueryRow(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata sets a metadata value.
func (h *History) SetMetadata(ctx context.Context, key, value string) error {
	_, err := h.conn.Exec(ctx, `
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}

// PendingRestate returns the month from which the closed periods of a journal still
// have to be restated, or "" when none.
func (h *History) PendingRestate(ctx context.Context, journalCode string) (string, error) {
	return h.GetMetadata(ctx, restateKey(journalCode))
}

// MarkRestate records that the closed periods of a journal need restating from monthKey.
// An earlier pending month is kept.
func (h *History) MarkRestate(ctx context.Context, journalCode, monthKey string) error {
	pending, err := h.PendingRestate(ctx, journalCode)
	if err != nil {
		return err
	}
	if pending != "" && pending <= monthKey {
		return nil
	}
	return h.SetMetadata(ctx, restateKey(journalCode), monthKey)
}

// ClearRestate forgets the pending restatement of a journal.
func (h *History) ClearRestate(ctx context.Context, journalCode string) error {
	return h.SetMetadata(ctx, restateKey(journalCode), "")
}

func restateKey(journalCode string) string {
	return "restate:" + journalCode
}

func cursorKey(wallet, token string) string {
	return fmt.Sprintf("cursor:%s:%s", strings.ToLower(wallet), strings.ToLower(token))
}
