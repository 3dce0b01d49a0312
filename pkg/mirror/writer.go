package mirror

import (
	"context"
	"strings"

	"github.com/opencollective/odoo-web3/pkg/reconcile"
)

// Writer appends every created statement line to the month file of its date.
type Writer struct {
	repo        Repository
	mapper      *Mapper
	journalCode string
}

// NewWriter creates a Writer for the lines of one journal.
func NewWriter(repo Repository, mapper *Mapper, journalCode string) *Writer {
	if mapper == nil {
		mapper = DefaultMapper()
	}
	return &Writer{repo: repo, mapper: mapper, journalCode: journalCode}
}

// Transaction builds the balanced Beancount transaction of line.
func (w *Writer) Transaction(line reconcile.LedgerLine) Transaction {
	currency := strings.ToUpper(line.Symbol)

	return Transaction{
		Date:      line.Date,
		Payee:     w.mapper.Payee(line.Counterparty),
		Narration: line.Description,
		Tags:      []string{"onchain"},
		Metadata: map[string]string{
			"dedup_key": line.DedupKey,
			"tx_hash":   line.TxHash,
		},
		Postings: []Posting{
			{Account: w.mapper.AssetAccount(w.journalCode), Amount: line.Amount, Currency: currency},
			{Account: w.mapper.CounterAccount(line.Counterparty, line.Amount.IsPositive()), Amount: line.Amount.Neg(), Currency: currency},
		},
	}
}

// LineCreated implements reconcile.LineSink.
func (w *Writer) LineCreated(_ context.Context, line reconcile.LedgerLine) error {
	return w.repo.AppendTransaction(line.MonthKey, FormatTransaction(w.Transaction(line)))
}
