package period

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencollective/odoo-web3/pkg/chain"
	"github.com/opencollective/odoo-web3/pkg/ledger"
)

// Manager owns statement period existence, balance computation and the Open -> Closed transition.
type Manager struct {
	gateway ledger.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock used to derive the current month.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager backed by gateway.
func NewManager(gateway ledger.Gateway, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{gateway: gateway, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentMonthKey returns the month key of the wall clock.
func (m *Manager) CurrentMonthKey() string {
	return chain.CurrentMonthKey(m.now())
}

// Ensure returns the period of journal for monthKey, creating it Open when missing.
// This is search-then-create; two concurrent runs can both create the same month.
func (m *Manager) Ensure(ctx context.Context, journal Journal, monthKey string) (StatementPeriod, bool, error) {
	if err := ValidateMonthKey(monthKey); err != nil {
		return StatementPeriod{}, false, err
	}

	name := Name(journal.Code, monthKey)
	records, err := m.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelStatement,
		Domain: ledger.Domain{ledger.Eq("journal_id", journal.ID), ledger.Eq("name", name)},
		Fields: statementFields,
		Limit:  1,
	})
	if err != nil {
		return StatementPeriod{}, false, fmt.Errorf("failed to search period %s: %w", name, err)
	}
	if len(records) > 0 {
		return fromRecord(records[0]), false, nil
	}

	opening, err := m.previousClosing(ctx, journal, monthKey)
	if err != nil {
		return StatementPeriod{}, false, err
	}

	id, err := m.gateway.Create(ctx, ledger.Create{
		Model: ledger.ModelStatement,
		Values: ledger.Values{
			"name":          name,
			"journal_id":    journal.ID,
			"date":          firstDay(monthKey),
			"balance_start": opening.InexactFloat64(),
		},
	})
	if err != nil {
		return StatementPeriod{}, false, fmt.Errorf("failed to create period %s: %w", name, err)
	}

	m.logger.Info("Created statement period", "name", name, "id", id, "opening_balance", opening.StringFixed(BalancePlaces))

	return StatementPeriod{
		ID:             id,
		JournalID:      journal.ID,
		MonthKey:       monthKey,
		Name:           name,
		State:          StateOpen,
		OpeningBalance: opening,
	}, true, nil
}

// EnsureCurrent makes sure the period of the current month exists.
func (m *Manager) EnsureCurrent(ctx context.Context, journal Journal) (StatementPeriod, bool, error) {
	return m.Ensure(ctx, journal, m.CurrentMonthKey())
}

// List returns every period of journal ordered by month.
func (m *Manager) List(ctx context.Context, journal Journal) ([]StatementPeriod, error) {
	records, err := m.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelStatement,
		Domain: ledger.Domain{ledger.Eq("journal_id", journal.ID)},
		Fields: statementFields,
		Order:  "date asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list periods of journal %d: %w", journal.ID, err)
	}

	periods := make([]StatementPeriod, 0, len(records))
	for _, rec := range records {
		periods = append(periods, fromRecord(rec))
	}
	return periods, nil
}

// ComputeClosing returns opening balance + sum of the period's line amounts, rounded.
func (m *Manager) ComputeClosing(ctx context.Context, p StatementPeriod) (decimal.Decimal, error) {
	lines, err := m.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelStatementLine,
		Domain: ledger.Domain{ledger.Eq("statement_id", p.ID)},
		Fields: []string{"amount"},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read lines of period %s: %w", p.Name, err)
	}

	total := p.OpeningBalance
	for _, line := range lines {
		amount, ok := line.Decimal("amount")
		if !ok {
			return decimal.Zero, fmt.Errorf("line %d of period %s has no amount", line.ID(), p.Name)
		}
		total = total.Add(amount)
	}
	return total.Round(BalancePlaces), nil
}

// Close computes and stores the closing balance of p, then posts it.
// The balance is always recomputed from the lines so a stale stored value never survives.
// A period that is already posted counts as closed.
func (m *Manager) Close(ctx context.Context, p StatementPeriod) (decimal.Decimal, error) {
	closing, err := m.ComputeClosing(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}

	if err := m.gateway.Write(ctx, ledger.Write{
		Model:  ledger.ModelStatement,
		IDs:    []int64{p.ID},
		Values: ledger.Values{"balance_end_real": closing.InexactFloat64()},
	}); err != nil {
		return decimal.Zero, fmt.Errorf("failed to store closing balance of %s: %w", p.Name, err)
	}

	if err := m.gateway.Post(ctx, ledger.Post{Model: ledger.ModelStatement, IDs: []int64{p.ID}}); err != nil {
		if !ledger.IsAlreadyPosted(err) {
			return decimal.Zero, fmt.Errorf("failed to post period %s: %w", p.Name, err)
		}
		m.logger.Debug("Period already posted", "name", p.Name)
	}

	m.logger.Info("Closed statement period",
		"name", p.Name,
		"opening_balance", p.OpeningBalance.StringFixed(BalancePlaces),
		"closing_balance", closing.StringFixed(BalancePlaces),
	)
	return closing, nil
}

// ClosedPeriod reports one period closed by a sweep.
type ClosedPeriod struct {
	MonthKey       string
	Name           string
	ClosingBalance decimal.Decimal
}

// SweepResult summarizes a sweep.
type SweepResult struct {
	Closed []ClosedPeriod
	Failed map[string]error // by month key
}

// Sweep closes every Open period of journal whose month is before the current month,
// whether or not the current run touched it. Periods are visited oldest first and each
// Open period's opening balance is rebased on its predecessor's closing balance.
// A failure is logged and recorded; the sweep moves on to the next period.
func (m *Manager) Sweep(ctx context.Context, journal Journal) (SweepResult, error) {
	result := SweepResult{Failed: make(map[string]error)}

	periods, err := m.List(ctx, journal)
	if err != nil {
		return result, err
	}

	current := m.CurrentMonthKey()
	var previous *decimal.Decimal

	for _, p := range periods {
		if p.State == StateClosed {
			closing := p.ClosingBalance
			previous = &closing
			continue
		}

		if previous != nil && !p.OpeningBalance.Equal(*previous) {
			if err := m.rebase(ctx, &p, *previous); err != nil {
				m.logger.Warn("Failed to rebase opening balance", "name", p.Name, "error", err)
				result.Failed[p.MonthKey] = err
				previous = nil
				continue
			}
		}

		if p.MonthKey >= current {
			previous = nil
			continue
		}

		closing, err := m.Close(ctx, p)
		if err != nil {
			m.logger.Warn("Failed to close period, leaving it open for the next run", "name", p.Name, "error", err)
			result.Failed[p.MonthKey] = err
			previous = nil
			continue
		}

		result.Closed = append(result.Closed, ClosedPeriod{MonthKey: p.MonthKey, Name: p.Name, ClosingBalance: closing})
		previous = &closing
	}

	return result, nil
}

// Restate brings the Closed periods of journal from monthKey on back in line after lines
// were added to an already closed month. Each period's opening balance is chained from its
// predecessor's closing balance, its closing balance is recomputed and it is posted again.
// The walk ends at the first Open period, which only gets its opening balance rebased, or
// at the first failure, since every later balance depends on it.
func (m *Manager) Restate(ctx context.Context, journal Journal, monthKey string) (SweepResult, error) {
	result := SweepResult{Failed: make(map[string]error)}
	if err := ValidateMonthKey(monthKey); err != nil {
		return result, err
	}

	periods, err := m.List(ctx, journal)
	if err != nil {
		return result, err
	}

	var previous *decimal.Decimal
	for _, p := range periods {
		if p.MonthKey < monthKey {
			previous = nil
			if p.State == StateClosed {
				closing := p.ClosingBalance
				previous = &closing
			}
			continue
		}
		if previous != nil && !p.OpeningBalance.Equal(*previous) {
			if err := m.rebase(ctx, &p, *previous); err != nil {
				m.logger.Warn("Failed to rebase opening balance", "name", p.Name, "error", err)
				result.Failed[p.MonthKey] = err
				break
			}
		}
		if p.State != StateClosed {
			break
		}

		closing, err := m.Close(ctx, p)
		if err != nil {
			m.logger.Warn("Failed to restate period", "name", p.Name, "error", err)
			result.Failed[p.MonthKey] = err
			break
		}
		result.Closed = append(result.Closed, ClosedPeriod{MonthKey: p.MonthKey, Name: p.Name, ClosingBalance: closing})
		previous = &closing
	}

	return result, nil
}

func (m *Manager) rebase(ctx context.Context, p *StatementPeriod, opening decimal.Decimal) error {
	if err := m.gateway.Write(ctx, ledger.Write{
		Model:  ledger.ModelStatement,
		IDs:    []int64{p.ID},
		Values: ledger.Values{"balance_start": opening.InexactFloat64()},
	}); err != nil {
		return err
	}

	m.logger.Info("Rebased opening balance",
		"name", p.Name,
		"from", p.OpeningBalance.StringFixed(BalancePlaces),
		"to", opening.StringFixed(BalancePlaces),
	)
	p.OpeningBalance = opening
	return nil
}

// previousClosing returns the closing balance of the latest period before monthKey,
// computing it when that period is still open. Zero when there is none.
func (m *Manager) previousClosing(ctx context.Context, journal Journal, monthKey string) (decimal.Decimal, error) {
	records, err := m.gateway.SearchRead(ctx, ledger.SearchRead{
		Model: ledger.ModelStatement,
		Domain: ledger.Domain{
			ledger.Eq("journal_id", journal.ID),
			{Field: "date", Operator: "<", Value: firstDay(monthKey)},
		},
		Fields: statementFields,
		Order:  "date desc",
		Limit:  1,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read previous period: %w", err)
	}
	if len(records) == 0 {
		return decimal.Zero, nil
	}

	prev := fromRecord(records[0])
	if prev.State == StateClosed {
		return prev.ClosingBalance, nil
	}
	return m.ComputeClosing(ctx, prev)
}
