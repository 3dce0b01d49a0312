package reconcile

import (
	"context"
	"fmt"

	"github.com/opencollective/odoo-web3/pkg/chain"
)

// TransferSource lists the token transfers of a wallet.
type TransferSource interface {
	Fetch(ctx context.Context, wallet, token string, blocks *chain.BlockRange) ([]chain.TransferEvent, error)
}

// Target is one (wallet, token) pair to keep in sync.
type Target struct {
	Wallet    string
	Token     string
	Symbol    string
	JournalID int64 // 0 looks the journal up by code, creating it when missing
	Blocks    *chain.BlockRange
}

// Sync resolves the target's journal, fetches its transfers and imports them.
// Journal and fetch failures are fatal: nothing is written.
func (e *Engine) Sync(ctx context.Context, source TransferSource, target Target) (*Report, error) {
	journal, err := ResolveJournal(ctx, e.gateway, target, e.logger)
	if err != nil {
		return nil, err
	}

	events, err := source.Fetch(ctx, target.Wallet, target.Token, target.Blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfers: %w", err)
	}

	e.logger.Info("Fetched transfers", "wallet", target.Wallet, "token", target.Token, "count", len(events))

	return e.Import(ctx, Batch{
		Wallet:  target.Wallet,
		Token:   target.Token,
		Symbol:  target.Symbol,
		Journal: journal,
		Events:  events,
	})
}
