// Package reconcile imports on-chain transfers into the ledger as bank statement lines,
// one statement per journal and month, and closes the months that have passed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencollective/odoo-web3/pkg/chain"
	"github.com/opencollective/odoo-web3/pkg/ledger"
	"github.com/opencollective/odoo-web3/pkg/partner"
	"github.com/opencollective/odoo-web3/pkg/period"
)

// ErrInvalidBatch is returned when a batch lacks its wallet, token or journal.
var ErrInvalidBatch = errors.New("invalid batch")

// CounterpartyResolver maps an address to its partner and bank account.
type CounterpartyResolver interface {
	Resolve(ctx context.Context, address, name string) (partner.Resolution, error)
}

// PeriodManager owns the statement periods of a journal.
type PeriodManager interface {
	Ensure(ctx context.Context, journal period.Journal, monthKey string) (period.StatementPeriod, bool, error)
	EnsureCurrent(ctx context.Context, journal period.Journal) (period.StatementPeriod, bool, error)
	Sweep(ctx context.Context, journal period.Journal) (period.SweepResult, error)
	Restate(ctx context.Context, journal period.Journal, monthKey string) (period.SweepResult, error)
}

// LineSink receives every line created by the engine. Sink errors are logged and never
// fail the import.
type LineSink interface {
	LineCreated(ctx context.Context, line LedgerLine) error
}

// Batch is a set of transfers of one token for one wallet.
type Batch struct {
	Wallet  string
	Token   string
	Symbol  string
	Journal Journal
	Events  []chain.TransferEvent
}

// Engine turns transfer batches into statement lines.
type Engine struct {
	gateway  ledger.Gateway
	partners CounterpartyResolver
	periods  PeriodManager
	sinks    []LineSink
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSinks registers sinks notified of created lines.
func WithSinks(sinks ...LineSink) EngineOption {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// NewEngine wires an Engine. All ledger traffic goes through gateway.
func NewEngine(gateway ledger.Gateway, partners CounterpartyResolver, periods PeriodManager, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{gateway: gateway, partners: partners, periods: periods, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New wires an Engine with the default partner resolver and period manager.
func New(gateway ledger.Gateway, logger *slog.Logger, now func() time.Time, opts ...EngineOption) *Engine {
	var periodOpts []period.Option
	if now != nil {
		periodOpts = append(periodOpts, period.WithClock(now))
	}
	return NewEngine(
		gateway,
		partner.NewResolver(gateway, logger),
		period.NewManager(gateway, logger, periodOpts...),
		logger,
		opts...,
	)
}

type pendingEvent struct {
	event  chain.TransferEvent
	key    string
	amount decimal.Decimal
	other  string
}

// Import writes the batch to the ledger. Months are processed oldest first; within a month
// events are processed in timestamp order. Individual event failures are counted and
// logged; the batch continues. A transfer of a month that is already Closed still gets its
// line, and the periods from that month on are restated. After the events, every passed
// Open period of the journal is closed and the current month's period is made to exist.
//
// The returned error is set only for an invalid batch or a cancelled context.
func (e *Engine) Import(ctx context.Context, batch Batch) (*Report, error) {
	if err := batch.validate(); err != nil {
		return nil, err
	}

	report := newReport(batch.Journal)
	report.Events = len(batch.Events)
	logger := e.logger.With("journal", batch.Journal.Code)

	months := make(map[string][]pendingEvent)
	for _, ev := range batch.Events {
		if ev.BlockNumber > report.LastBlock {
			report.LastBlock = ev.BlockNumber
		}

		pending, err := prepare(ev, batch.Wallet)
		if errors.Is(err, chain.ErrSelfTransfer) {
			logger.Debug("Skipping self-transfer", "key", ev.Key())
			report.month(ev.MonthKey()).Skipped++
			continue
		}
		if err != nil {
			logger.Warn("Skipping transfer", "key", ev.Key(), "error", err)
			report.month(ev.MonthKey()).Failed++
			continue
		}
		months[ev.MonthKey()] = append(months[ev.MonthKey()], pending)
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	restateFrom := ""
	for _, monthKey := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		events := months[monthKey]
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].event.Timestamp != events[j].event.Timestamp {
				return events[i].event.Timestamp < events[j].event.Timestamp
			}
			return events[i].key < events[j].key
		})

		mr := report.month(monthKey)
		p, created, err := e.periods.Ensure(ctx, batch.Journal.Journal, monthKey)
		if err != nil {
			logger.Error("Failed to obtain statement period", "month", monthKey, "error", err)
			mr.Err = err
			mr.Failed += len(events)
			continue
		}
		mr.PeriodID = p.ID
		mr.PeriodCreated = created

		for _, pe := range events {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			outcome, err := e.importEvent(ctx, batch, p, pe, seen)
			switch {
			case err != nil:
				logger.Warn("Failed to import transfer", "key", pe.key, "month", monthKey, "error", err)
				mr.Failed++
			case outcome == outcomeSkipped:
				mr.Skipped++
			default:
				mr.Created++
				if p.State == period.StateClosed {
					mr.Late++
				}
			}
		}

		if mr.Late > 0 && restateFrom == "" {
			restateFrom = monthKey
		}

		logger.Info("Imported month",
			"month", monthKey,
			"period", p.Name,
			"created", mr.Created,
			"skipped", mr.Skipped,
			"failed", mr.Failed,
		)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if restateFrom != "" {
		report.Restated, report.RestateErr = e.RestateJournal(ctx, batch.Journal, restateFrom)
	}

	report.Sweep, report.SweepErr = e.CloseJournal(ctx, batch.Journal)
	return report, nil
}

// CloseJournal closes every Open period of journal whose month has passed, then makes sure
// the current month's period exists. It is also the recovery path after a failed close.
func (e *Engine) CloseJournal(ctx context.Context, journal Journal) (period.SweepResult, error) {
	logger := e.logger.With("journal", journal.Code)

	sweep, sweepErr := e.periods.Sweep(ctx, journal.Journal)
	if sweepErr != nil {
		logger.Error("Failed to sweep statement periods", "error", sweepErr)
	}

	if _, _, err := e.periods.EnsureCurrent(ctx, journal.Journal); err != nil {
		logger.Error("Failed to ensure current statement period", "error", err)
		if sweepErr == nil {
			sweepErr = err
		}
	}

	return sweep, sweepErr
}

// RestateJournal recomputes and re-posts the Closed periods of journal from monthKey on.
// It is run after lines land in a closed month, and by hand when that failed.
func (e *Engine) RestateJournal(ctx context.Context, journal Journal, monthKey string) (period.SweepResult, error) {
	logger := e.logger.With("journal", journal.Code)

	result, err := e.periods.Restate(ctx, journal.Journal, monthKey)
	if err == nil && len(result.Failed) > 0 {
		err = fmt.Errorf("failed to restate %d period(s) from %s", len(result.Failed), monthKey)
	}
	if err != nil {
		logger.Error("Failed to restate closed periods", "from", monthKey, "error", err)
		return result, err
	}

	logger.Info("Restated closed periods", "from", monthKey, "count", len(result.Closed))
	return result, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeSkipped
)

func (e *Engine) importEvent(ctx context.Context, batch Batch, p period.StatementPeriod, pe pendingEvent, seen map[string]bool) (outcome, error) {
	if seen[pe.key] {
		return outcomeSkipped, nil
	}

	exists, err := e.lineExists(ctx, pe.key)
	if err != nil {
		return 0, err
	}
	if exists {
		seen[pe.key] = true
		return outcomeSkipped, nil
	}

	res, err := e.partners.Resolve(ctx, pe.other, "")
	if err != nil {
		return 0, err
	}

	line := LedgerLine{
		JournalID:     batch.Journal.ID,
		PeriodID:      p.ID,
		DedupKey:      pe.key,
		Date:          pe.event.Date(),
		MonthKey:      p.MonthKey,
		Amount:        pe.amount,
		Description:   Describe(pe.event, pe.amount, symbolOf(batch, pe.event), pe.other),
		Symbol:        symbolOf(batch, pe.event),
		TxHash:        pe.event.Hash,
		BlockNumber:   pe.event.BlockNumber,
		Counterparty:  pe.other,
		PartnerID:     res.PartnerID,
		BankAccountID: res.BankAccountID,
	}

	id, err := e.gateway.Create(ctx, ledger.Create{
		Model: ledger.ModelStatementLine,
		Values: ledger.Values{
			"statement_id":     line.PeriodID,
			"journal_id":       line.JournalID,
			"date":             line.Date,
			"amount":           line.Amount.InexactFloat64(),
			"payment_ref":      line.Description,
			"unique_import_id": line.DedupKey,
			"partner_id":       line.PartnerID,
			"partner_bank_id":  line.BankAccountID,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create statement line: %w", err)
	}
	line.ID = id
	seen[pe.key] = true

	for _, sink := range e.sinks {
		if err := sink.LineCreated(ctx, line); err != nil {
			e.logger.Warn("Line sink failed", "key", line.DedupKey, "error", err)
		}
	}

	return outcomeCreated, nil
}

func (e *Engine) lineExists(ctx context.Context, key string) (bool, error) {
	records, err := e.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelStatementLine,
		Domain: ledger.Domain{ledger.Eq("unique_import_id", key)},
		Fields: []string{"id"},
		Limit:  1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up line %s: %w", key, err)
	}
	return len(records) > 0, nil
}

func prepare(ev chain.TransferEvent, wallet string) (pendingEvent, error) {
	amount, err := chain.SignedAmount(ev, wallet)
	if err != nil {
		return pendingEvent{}, err
	}
	other, err := chain.Counterparty(ev, wallet)
	if err != nil {
		return pendingEvent{}, err
	}
	return pendingEvent{event: ev, key: ev.Key(), amount: amount, other: chain.NormalizeAddress(other)}, nil
}

// Describe returns the line label of a transfer. It always contains the transaction hash.
func Describe(ev chain.TransferEvent, amount decimal.Decimal, symbol, counterparty string) string {
	if amount.IsNegative() {
		return fmt.Sprintf("Sent %s %s to %s (tx %s)", amount.Abs().String(), symbol, counterparty, ev.Hash)
	}
	return fmt.Sprintf("Received %s %s from %s (tx %s)", amount.String(), symbol, counterparty, ev.Hash)
}

func symbolOf(batch Batch, ev chain.TransferEvent) string {
	if batch.Symbol != "" {
		return strings.ToUpper(batch.Symbol)
	}
	return strings.ToUpper(ev.TokenSymbol)
}

func (b Batch) validate() error {
	switch {
	case chain.ValidateAddress(b.Wallet) != nil:
		return fmt.Errorf("%w: wallet %q", ErrInvalidBatch, b.Wallet)
	case chain.ValidateAddress(b.Token) != nil:
		return fmt.Errorf("%w: token %q", ErrInvalidBatch, b.Token)
	case b.Journal.ID == 0:
		return fmt.Errorf("%w: no journal", ErrInvalidBatch)
	}
	return nil
}
