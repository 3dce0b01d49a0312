package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opencollective/odoo-web3/pkg/ledger"
	"github.com/opencollective/odoo-web3/pkg/period"
)

const walletPrefixLen = 6

var (
	// ErrJournalNotFound is returned when the target journal does not exist.
	ErrJournalNotFound = errors.New("journal not found")

	// ErrNoLiquidityAccount is returned when the journal has no default (liquidity) account.
	ErrNoLiquidityAccount = errors.New("journal has no default liquidity account")
)

// Journal is the bank journal of one (token, wallet) pair.
type Journal struct {
	period.Journal
	Name              string
	DefaultAccountID  int64
	SuspenseAccountID int64
}

// JournalCode returns the code of the journal for symbol and wallet: SYMBOL_ABCDEF,
// where ABCDEF are the first hex digits of the wallet.
func JournalCode(symbol, wallet string) string {
	hex := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(wallet)), "0x")
	if len(hex) > walletPrefixLen {
		hex = hex[:walletPrefixLen]
	}
	return strings.ToUpper(symbol) + "_" + strings.ToUpper(hex)
}

// Preflight loads the journal and checks it can receive imported lines. A missing
// default account is fatal; a missing suspense account only warns.
func Preflight(ctx context.Context, gateway ledger.Gateway, journalID int64, logger *slog.Logger) (Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	records, err := gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelJournal,
		Domain: ledger.Domain{ledger.Eq("id", journalID)},
		Fields: []string{"name", "code", "type", "default_account_id", "suspense_account_id"},
		Limit:  1,
	})
	if err != nil {
		return Journal{}, fmt.Errorf("failed to read journal %d: %w", journalID, err)
	}
	if len(records) == 0 {
		return Journal{}, fmt.Errorf("%w: %d", ErrJournalNotFound, journalID)
	}

	journal := journalFromRecord(records[0])
	if journal.DefaultAccountID == 0 {
		return Journal{}, fmt.Errorf("%w: %s (%d)", ErrNoLiquidityAccount, journal.Code, journal.ID)
	}
	if journal.SuspenseAccountID == 0 {
		logger.Warn("Journal has no suspense account; lines will need manual reconciliation", "journal", journal.Code, "journal_id", journal.ID)
	}

	return journal, nil
}

// FindOrCreateJournal returns the id of the bank journal with JournalCode(symbol, wallet),
// creating it when missing. The bool reports a creation.
func FindOrCreateJournal(ctx context.Context, gateway ledger.Gateway, symbol, wallet string, logger *slog.Logger) (int64, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	code := JournalCode(symbol, wallet)
	records, err := gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelJournal,
		Domain: ledger.Domain{ledger.Eq("code", code)},
		Fields: []string{"code"},
		Limit:  1,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to search journal %s: %w", code, err)
	}
	if len(records) > 0 {
		return records[0].ID(), false, nil
	}

	id, err := gateway.Create(ctx, ledger.Create{
		Model: ledger.ModelJournal,
		Values: ledger.Values{
			"name": fmt.Sprintf("%s %s", strings.ToUpper(symbol), strings.ToLower(wallet)),
			"code": code,
			"type": "bank",
		},
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create journal %s: %w", code, err)
	}

	logger.Info("Created bank journal", "code", code, "journal_id", id)
	return id, true, nil
}

// ResolveJournal returns the checked journal of target. Without a configured journal id
// the journal is looked up by code and created when missing. A journal created by this
// call that cannot be read back (a dry run) is used as is.
func ResolveJournal(ctx context.Context, gateway ledger.Gateway, target Target, logger *slog.Logger) (Journal, error) {
	if target.JournalID != 0 {
		return Preflight(ctx, gateway, target.JournalID, logger)
	}

	id, created, err := FindOrCreateJournal(ctx, gateway, target.Symbol, target.Wallet, logger)
	if err != nil {
		return Journal{}, err
	}

	journal, err := Preflight(ctx, gateway, id, logger)
	if created && errors.Is(err, ErrJournalNotFound) {
		return Journal{Journal: period.Journal{ID: id, Code: JournalCode(target.Symbol, target.Wallet)}}, nil
	}
	return journal, err
}

func journalFromRecord(rec ledger.Record) Journal {
	j := Journal{
		Journal: period.Journal{ID: rec.ID(), Code: rec.Text("code")},
		Name:    rec.Text("name"),
	}
	j.DefaultAccountID, _ = rec.Many2One("default_account_id")
	j.SuspenseAccountID, _ = rec.Many2One("suspense_account_id")
	return j
}
