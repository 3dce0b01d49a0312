// Package period manages monthly bank statement periods: one per (journal, month),
// created Open and closed once their month has passed.
package period

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencollective/odoo-web3/pkg/ledger"
)

// State is the lifecycle state of a period. Closed is terminal.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// BalancePlaces is the rounding applied to computed closing balances.
const BalancePlaces = 2

// ErrInvalidMonthKey is returned for month keys that are not YYYY-MM.
var ErrInvalidMonthKey = errors.New("invalid month key")

var statementFields = []string{"name", "journal_id", "date", "state", "balance_start", "balance_end_real"}

// Journal identifies the bank journal that owns the periods.
type Journal struct {
	ID   int64
	Code string
}

// StatementPeriod is one month of a journal.
type StatementPeriod struct {
	ID             int64
	JournalID      int64
	MonthKey       string // YYYY-MM
	Name           string
	State          State
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
}

// Name returns the deterministic statement name for a journal and month.
func Name(journalCode, monthKey string) string {
	return fmt.Sprintf("%s %s", journalCode, monthKey)
}

// ValidateMonthKey checks the YYYY-MM format.
func ValidateMonthKey(monthKey string) error {
	if _, err := time.Parse("2006-01", monthKey); err != nil || len(monthKey) != 7 {
		return fmt.Errorf("%w: %q", ErrInvalidMonthKey, monthKey)
	}
	return nil
}

// firstDay returns the statement date of a month: its first day.
func firstDay(monthKey string) string {
	return monthKey + "-01"
}

func fromRecord(rec ledger.Record) StatementPeriod {
	p := StatementPeriod{
		ID:    rec.ID(),
		Name:  rec.Text("name"),
		State: StateOpen,
	}
	p.JournalID, _ = rec.Many2One("journal_id")
	if date := rec.Text("date"); len(date) >= 7 {
		p.MonthKey = date[:7]
	}
	switch rec.Text("state") {
	case ledger.StatementStatePosted, "confirm":
		p.State = StateClosed
	}
	if v, ok := rec.Decimal("balance_start"); ok {
		p.OpeningBalance = v
	}
	if v, ok := rec.Decimal("balance_end_real"); ok {
		p.ClosingBalance = v
	}
	return p
}
