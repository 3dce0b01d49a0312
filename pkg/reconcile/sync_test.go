package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencollective/odoo-web3/pkg/chain"
	"github.com/opencollective/odoo-web3/pkg/ledger"
)

type fakeSource struct {
	events []chain.TransferEvent
	err    error

	wallet, token string
	blocks        *chain.BlockRange
}

func (f *fakeSource) Fetch(_ context.Context, wallet, token string, blocks *chain.BlockRange) ([]chain.TransferEvent, error) {
	f.wallet, f.token, f.blocks = wallet, token, blocks
	return f.events, f.err
}

func TestPreflight(t *testing.T) {
	m := ledger.NewMemory()
	ok := m.Seed(ledger.ModelJournal, ledger.Values{
		"code": "USDC_111111", "default_account_id": int64(1), "suspense_account_id": int64(2),
	})
	noSuspense := m.Seed(ledger.ModelJournal, ledger.Values{
		"code": "EURE_111111", "default_account_id": int64(1),
	})
	noDefault := m.Seed(ledger.ModelJournal, ledger.Values{
		"code": "DAI_111111", "suspense_account_id": int64(2),
	})

	journal, err := Preflight(context.Background(), m, ok, nil)
	require.NoError(t, err)
	assert.Equal(t, "USDC_111111", journal.Code)
	assert.Equal(t, int64(1), journal.DefaultAccountID)
	assert.Equal(t, int64(2), journal.SuspenseAccountID)

	journal, err = Preflight(context.Background(), m, noSuspense, nil)
	require.NoError(t, err)
	assert.Zero(t, journal.SuspenseAccountID)

	_, err = Preflight(context.Background(), m, noDefault, nil)
	assert.ErrorIs(t, err, ErrNoLiquidityAccount)

	_, err = Preflight(context.Background(), m, 999, nil)
	assert.ErrorIs(t, err, ErrJournalNotFound)
}

func TestFindOrCreateJournal(t *testing.T) {
	m := ledger.NewMemory()

	id, created, err := FindOrCreateJournal(context.Background(), m, "usdc", wallet, nil)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := FindOrCreateJournal(context.Background(), m, "USDC", wallet, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	rec, _ := m.Get(ledger.ModelJournal, id)
	assert.Equal(t, "USDC_111111", rec.Text("code"))
	assert.Equal(t, "bank", rec.Text("type"))
}

func TestSyncImportsFetchedTransfers(t *testing.T) {
	m := newLedger()
	journal := seedJournal(m)
	source := &fakeSource{events: []chain.TransferEvent{
		transfer(1, alice, wallet, 10, at(11, 1)),
	}}
	blocks := &chain.BlockRange{From: 900}

	// Journal found by code.
	report, err := New(m, nil, now).Sync(context.Background(), source, Target{
		Wallet: wallet, Token: usdc, Symbol: "USDC", Blocks: blocks,
	})
	require.NoError(t, err)

	assert.Equal(t, wallet, source.wallet)
	assert.Equal(t, usdc, source.token)
	assert.Same(t, blocks, source.blocks)
	assert.Equal(t, journal.ID, report.Journal.ID)
	assert.Equal(t, 1, report.Months["2024-11"].Created)
}

func TestSyncFetchFailureWritesNothing(t *testing.T) {
	m := newLedger()
	journal := seedJournal(m)
	source := &fakeSource{err: errors.New("explorer down")}

	_, err := New(m, nil, now).Sync(context.Background(), source, Target{
		Wallet: wallet, Token: usdc, Symbol: "USDC", JournalID: journal.ID,
	})
	require.Error(t, err)
	assert.Zero(t, m.Calls("create:"+ledger.ModelStatement))
	assert.Zero(t, m.Calls("create:"+ledger.ModelStatementLine))
}

func TestSyncPreflightFailureIsFatal(t *testing.T) {
	m := newLedger()
	id := m.Seed(ledger.ModelJournal, ledger.Values{"code": "USDC_111111"})
	source := &fakeSource{events: []chain.TransferEvent{transfer(1, alice, wallet, 10, at(11, 1))}}

	_, err := New(m, nil, now).Sync(context.Background(), source, Target{
		Wallet: wallet, Token: usdc, Symbol: "USDC", JournalID: id,
	})
	assert.ErrorIs(t, err, ErrNoLiquidityAccount)
	assert.Nil(t, source.blocks)
	assert.Empty(t, source.wallet)
}

func TestSyncDryRunWithNewJournal(t *testing.T) {
	m := newLedger()
	dry := ledger.NewDryRun(m, nil)
	source := &fakeSource{events: []chain.TransferEvent{transfer(1, alice, wallet, 10, at(11, 1))}}

	report, err := New(dry, nil, now).Sync(context.Background(), source, Target{
		Wallet: wallet, Token: usdc, Symbol: "USDC",
	})
	require.NoError(t, err)

	assert.Negative(t, report.Journal.ID)
	assert.Equal(t, "USDC_111111", report.Journal.Code)
	assert.Equal(t, 1, report.Months["2024-11"].Created)
	assert.Empty(t, m.All(ledger.ModelJournal))
}
