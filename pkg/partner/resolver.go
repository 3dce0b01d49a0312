// Package partner resolves blockchain counterparties to ledger partners and bank accounts.
package partner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/opencollective/odoo-web3/pkg/ledger"
)

// Account types the ledger requires on a partner before its lines can be posted.
const (
	AccountTypeReceivable = "asset_receivable"
	AccountTypePayable    = "liability_payable"

	fieldReceivable = "property_account_receivable_id"
	fieldPayable    = "property_account_payable_id"
)

var (
	// ErrEmptyAddress is returned when the counterparty address normalizes to nothing.
	ErrEmptyAddress = errors.New("empty counterparty address")

	// ErrNoDefaultAccount is returned when no receivable/payable account exists to assign.
	ErrNoDefaultAccount = errors.New("no default receivable/payable account")
)

// Resolution identifies the ledger records for one counterparty.
type Resolution struct {
	PartnerID     int64
	BankAccountID int64
	Created       bool // true when the bank account was created by this call
}

// Resolver maps counterparty addresses to (partner, bank account) pairs, creating both
// on first encounter. Results are cached for the lifetime of the Resolver.
type Resolver struct {
	gateway  ledger.Gateway
	logger   *slog.Logger
	cache    map[string]Resolution
	accounts map[string]int64
}

// NewResolver creates a Resolver backed by gateway.
func NewResolver(gateway ledger.Gateway, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		gateway:  gateway,
		logger:   logger,
		cache:    make(map[string]Resolution),
		accounts: make(map[string]int64),
	}
}

// NormalizeAccountNumber turns an address into the account-number form used as the
// bank account key: whitespace removed, uppercase.
func NormalizeAccountNumber(address string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, address))
}

// PlaceholderName is the partner name used when none is supplied.
func PlaceholderName(address string) string {
	return "Wallet " + strings.ToLower(strings.TrimSpace(address))
}

// Resolve returns the partner and bank account for address. name is used for a new
// partner; an empty name falls back to PlaceholderName.
func (r *Resolver) Resolve(ctx context.Context, address, name string) (Resolution, error) {
	accNumber := NormalizeAccountNumber(address)
	if accNumber == "" {
		return Resolution{}, ErrEmptyAddress
	}

	if res, ok := r.cache[accNumber]; ok {
		res.Created = false
		return res, nil
	}

	res, err := r.resolve(ctx, address, accNumber, name)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve counterparty %s: %w", address, err)
	}

	r.cache[accNumber] = res
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, address, accNumber, name string) (Resolution, error) {
	banks, err := r.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelPartnerBank,
		Domain: ledger.Domain{ledger.Eq("acc_number", accNumber)},
		Fields: []string{"partner_id"},
		Limit:  1,
	})
	if err != nil {
		return Resolution{}, err
	}

	if len(banks) > 0 {
		partnerID, ok := banks[0].Many2One("partner_id")
		if !ok {
			return Resolution{}, fmt.Errorf("bank account %d has no partner", banks[0].ID())
		}
		return Resolution{PartnerID: partnerID, BankAccountID: banks[0].ID()}, nil
	}

	if name == "" {
		name = PlaceholderName(address)
	}

	partnerID, err := r.findOrCreatePartner(ctx, name)
	if err != nil {
		return Resolution{}, err
	}

	if err := r.ensureAccountingProperties(ctx, partnerID); err != nil {
		return Resolution{}, err
	}

	bankID, err := r.gateway.Create(ctx, ledger.Create{
		Model: ledger.ModelPartnerBank,
		Values: ledger.Values{
			"acc_number": accNumber,
			"partner_id": partnerID,
		},
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to create bank account: %w", err)
	}

	r.logger.Info("Created bank account", "acc_number", accNumber, "partner_id", partnerID, "bank_account_id", bankID)
	return Resolution{PartnerID: partnerID, BankAccountID: bankID, Created: true}, nil
}

func (r *Resolver) findOrCreatePartner(ctx context.Context, name string) (int64, error) {
	partners, err := r.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelPartner,
		Domain: ledger.Domain{ledger.Eq("name", name)},
		Fields: []string{"name"},
		Limit:  1,
	})
	if err != nil {
		return 0, err
	}
	if len(partners) > 0 {
		return partners[0].ID(), nil
	}

	id, err := r.gateway.Create(ctx, ledger.Create{
		Model:  ledger.ModelPartner,
		Values: ledger.Values{"name": name},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create partner: %w", err)
	}

	r.logger.Info("Created partner", "name", name, "partner_id", id)
	return id, nil
}

// ensureAccountingProperties fills the receivable/payable accounts the ledger needs to post
// lines for the partner. A partner that cannot be read (e.g. a dry-run id) gets both.
func (r *Resolver) ensureAccountingProperties(ctx context.Context, partnerID int64) error {
	partners, err := r.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelPartner,
		Domain: ledger.Domain{ledger.Eq("id", partnerID)},
		Fields: []string{fieldReceivable, fieldPayable},
		Limit:  1,
	})
	if err != nil {
		return err
	}

	values := ledger.Values{}
	missing := map[string]string{fieldReceivable: AccountTypeReceivable, fieldPayable: AccountTypePayable}
	for field, accountType := range missing {
		if len(partners) > 0 {
			if _, ok := partners[0].Many2One(field); ok {
				continue
			}
		}
		accountID, err := r.defaultAccount(ctx, accountType)
		if err != nil {
			return err
		}
		values[field] = accountID
	}

	if len(values) == 0 {
		return nil
	}

	if err := r.gateway.Write(ctx, ledger.Write{
		Model:  ledger.ModelPartner,
		IDs:    []int64{partnerID},
		Values: values,
	}); err != nil {
		return fmt.Errorf("failed to set partner accounts: %w", err)
	}
	return nil
}

func (r *Resolver) defaultAccount(ctx context.Context, accountType string) (int64, error) {
	if id, ok := r.accounts[accountType]; ok {
		return id, nil
	}

	accounts, err := r.gateway.SearchRead(ctx, ledger.SearchRead{
		Model:  ledger.ModelAccount,
		Domain: ledger.Domain{ledger.Eq("account_type", accountType)},
		Fields: []string{"code"},
		Order:  "code asc",
		Limit:  1,
	})
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoDefaultAccount, accountType)
	}

	r.accounts[accountType] = accounts[0].ID()
	return accounts[0].ID(), nil
}
