package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opencollective/odoo-web3/pkg/period"
)

// LedgerLine is a statement line created by the engine. It is never written after creation.
type LedgerLine struct {
	ID            int64
	JournalID     int64
	PeriodID      int64
	DedupKey      string
	Date          string // YYYY-MM-DD
	MonthKey      string
	Amount        decimal.Decimal
	Description   string
	Symbol        string
	TxHash        string
	BlockNumber   int64
	Counterparty  string
	PartnerID     int64
	BankAccountID int64
}

// MonthReport counts the outcome of one month's events.
type MonthReport struct {
	MonthKey      string
	PeriodID      int64
	PeriodCreated bool
	Created       int
	Late          int // of Created, lines added to an already closed period
	Skipped       int // already imported, or a self-transfer
	Failed        int
	Err           error // set when the month's period could not be obtained
}

// Report summarizes one import.
type Report struct {
	Journal   Journal
	Events    int
	LastBlock int64
	Months    map[string]*MonthReport
	Sweep     period.SweepResult
	SweepErr  error

	// Restated lists the closed periods recomputed after late lines.
	Restated   period.SweepResult
	RestateErr error
}

func newReport(journal Journal) *Report {
	return &Report{Journal: journal, Months: make(map[string]*MonthReport)}
}

func (r *Report) month(key string) *MonthReport {
	mr, ok := r.Months[key]
	if !ok {
		mr = &MonthReport{MonthKey: key}
		r.Months[key] = mr
	}
	return mr
}

// MonthKeys returns the months of the report in ascending order.
func (r *Report) MonthKeys() []string {
	keys := make([]string, 0, len(r.Months))
	for k := range r.Months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Totals sums the per-month counters.
func (r *Report) Totals() (created, skipped, failed int) {
	for _, mr := range r.Months {
		created += mr.Created
		skipped += mr.Skipped
		failed += mr.Failed
	}
	return created, skipped, failed
}

// RestateFrom returns the earliest month that received lines after it was closed, or "".
func (r *Report) RestateFrom() string {
	for _, key := range r.MonthKeys() {
		if r.Months[key].Late > 0 {
			return key
		}
	}
	return ""
}
