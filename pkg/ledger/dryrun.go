package ledger

import (
	"context"
	"log/slog"
)

// DryRun is a Gateway that forwards reads and swallows writes.
// Created records get synthetic negative ids so callers keep their normal control flow.
type DryRun struct {
	next   Gateway
	logger *slog.Logger
	seq    int64

	creates int
	writes  int
	posts   int
}

// NewDryRun wraps next. A nil next answers every read with no records.
func NewDryRun(next Gateway, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{next: next, logger: logger}
}

// SearchRead implements Gateway.
func (d *DryRun) SearchRead(ctx context.Context, req SearchRead) ([]Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if d.next == nil {
		return nil, nil
	}
	return d.next.SearchRead(ctx, req)
}

// Create implements Gateway.
func (d *DryRun) Create(_ context.Context, req Create) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	d.seq++
	d.creates++
	id := -d.seq
	d.logger.Info("[DRY RUN] Would create record", "model", req.Model, "synthetic_id", id, "values", req.Values)
	return id, nil
}

// Write implements Gateway.
func (d *DryRun) Write(_ context.Context, req Write) error {
	if err := req.Validate(); err != nil {
		return err
	}

	d.writes++
	d.logger.Info("[DRY RUN] Would write records", "model", req.Model, "ids", req.IDs, "values", req.Values)
	return nil
}

// Post implements Gateway.
func (d *DryRun) Post(_ context.Context, req Post) error {
	if err := req.Validate(); err != nil {
		return err
	}

	d.posts++
	d.logger.Info("[DRY RUN] Would post records", "model", req.Model, "ids", req.IDs, "method", req.method())
	return nil
}

// Counts returns the number of suppressed creates, writes and posts.
func (d *DryRun) Counts() (creates, writes, posts int) {
	return d.creates, d.writes, d.posts
}
