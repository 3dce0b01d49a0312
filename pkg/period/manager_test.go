package period

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencollective/odoo-web3/pkg/ledger"
)

var journal = Journal{ID: 5, Code: "USDC_111111"}

func clockAt(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 12, 0, 0, 0, time.UTC) }
}

func addLine(m *ledger.Memory, periodID int64, amount float64) {
	m.Seed(ledger.ModelStatementLine, ledger.Values{"statement_id": periodID, "amount": amount})
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEnsureCreatesOnce(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	first, created, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StateOpen, first.State)
	assert.Equal(t, "USDC_111111 2024-09", first.Name)
	assert.Equal(t, "2024-09", first.MonthKey)

	second, created, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "2024-09", second.MonthKey)
	assert.Len(t, m.All(ledger.ModelStatement), 1)

	rec, _ := m.Get(ledger.ModelStatement, first.ID)
	assert.Equal(t, "2024-09-01", rec.Text("date"))
}

func TestEnsureRejectsBadMonthKey(t *testing.T) {
	mgr := NewManager(ledger.NewMemory(), nil)

	for _, key := range []string{"2024-9", "2024-13", "202409", "", "2024-09-01"} {
		_, _, err := mgr.Ensure(context.Background(), journal, key)
		assert.ErrorIs(t, err, ErrInvalidMonthKey, key)
	}
}

func TestEnsureChainsOpeningBalance(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	aug, _, err := mgr.Ensure(ctx, journal, "2024-08")
	require.NoError(t, err)
	addLine(m, aug.ID, 100)
	addLine(m, aug.ID, -25.5)

	sep, _, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	assert.True(t, sep.OpeningBalance.Equal(mustDecimal("74.5")), sep.OpeningBalance.String())
}

func TestCloseComputesBalanceAndPosts(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	id := m.Seed(ledger.ModelStatement, ledger.Values{
		"name": "USDC_111111 2024-09", "journal_id": journal.ID, "date": "2024-09-01",
		"state": ledger.StatementStateOpen, "balance_start": 10.0,
		// Stale cached balance, must be ignored.
		"balance_end_real": 999.0,
	})
	addLine(m, id, 1.005)
	addLine(m, id, 2.333)
	addLine(m, id, -0.5)

	periods, err := mgr.List(ctx, journal)
	require.NoError(t, err)
	require.Len(t, periods, 1)

	closing, err := mgr.Close(ctx, periods[0])
	require.NoError(t, err)
	assert.Equal(t, "12.84", closing.StringFixed(2))

	rec, _ := m.Get(ledger.ModelStatement, id)
	assert.Equal(t, ledger.StatementStatePosted, rec.Text("state"))
	stored, _ := rec.Decimal("balance_end_real")
	assert.Equal(t, "12.84", stored.StringFixed(2))

	// Closing again is a no-op success.
	_, err = mgr.Close(ctx, periods[0])
	require.NoError(t, err)
}

func TestSweepLateClose(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	sep, _, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	addLine(m, sep.ID, 50)
	addLine(m, sep.ID, -20)

	// Left open by an earlier interrupted run.
	oct := m.Seed(ledger.ModelStatement, ledger.Values{
		"name": "USDC_111111 2024-10", "journal_id": journal.ID, "date": "2024-10-01",
		"state": ledger.StatementStateOpen, "balance_start": 0.0,
	})
	addLine(m, oct, 5)

	nov, _, err := mgr.EnsureCurrent(ctx, journal)
	require.NoError(t, err)

	result, err := mgr.Sweep(ctx, journal)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Closed, 2)
	assert.Equal(t, "2024-09", result.Closed[0].MonthKey)
	assert.Equal(t, "30.00", result.Closed[0].ClosingBalance.StringFixed(2))
	assert.Equal(t, "2024-10", result.Closed[1].MonthKey)
	// October is rebased on September's closing balance.
	assert.Equal(t, "35.00", result.Closed[1].ClosingBalance.StringFixed(2))

	periods, err := mgr.List(ctx, journal)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	for _, p := range periods {
		if p.ID == nov.ID {
			assert.Equal(t, StateOpen, p.State, p.Name)
			assert.Equal(t, "35", p.OpeningBalance.String())
			continue
		}
		assert.Equal(t, StateClosed, p.State, p.Name)

		// closing == opening + sum(lines)
		recomputed, err := mgr.ComputeClosing(ctx, p)
		require.NoError(t, err)
		assert.True(t, recomputed.Equal(p.ClosingBalance), p.Name)
	}
}

func TestSweepContinuesAfterPostFailure(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	sep, _, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	oct, _, err := mgr.Ensure(ctx, journal, "2024-10")
	require.NoError(t, err)

	boom := errors.New("lock date violation")
	m.FailPost = func(req ledger.Post) error {
		if req.IDs[0] == sep.ID {
			return boom
		}
		return nil
	}

	result, err := mgr.Sweep(ctx, journal)
	require.NoError(t, err)
	require.Contains(t, result.Failed, "2024-09")
	assert.ErrorIs(t, result.Failed["2024-09"], boom)
	require.Len(t, result.Closed, 1)
	assert.Equal(t, "2024-10", result.Closed[0].MonthKey)

	rec, _ := m.Get(ledger.ModelStatement, sep.ID)
	assert.Equal(t, ledger.StatementStateOpen, rec.Text("state"))
	rec, _ = m.Get(ledger.ModelStatement, oct.ID)
	assert.Equal(t, ledger.StatementStatePosted, rec.Text("state"))

	// The next run recovers the failed period.
	m.FailPost = nil
	result, err = mgr.Sweep(ctx, journal)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Closed, 1)
	assert.Equal(t, "2024-09", result.Closed[0].MonthKey)
}

func TestSweepIgnoresOtherJournals(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	other := Journal{ID: 9, Code: "ETH_222222"}
	_, _, err := mgr.Ensure(ctx, other, "2024-09")
	require.NoError(t, err)

	result, err := mgr.Sweep(ctx, journal)
	require.NoError(t, err)
	assert.Empty(t, result.Closed)

	periods, err := mgr.List(ctx, other)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, StateOpen, periods[0].State)
}

func TestRestateAfterLateLine(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	sep, _, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	addLine(m, sep.ID, 10)
	oct, _, err := mgr.Ensure(ctx, journal, "2024-10")
	require.NoError(t, err)
	addLine(m, oct.ID, 5)
	_, err = mgr.Sweep(ctx, journal)
	require.NoError(t, err)
	nov, _, err := mgr.EnsureCurrent(ctx, journal)
	require.NoError(t, err)

	// A transfer of September shows up after September was closed.
	addLine(m, sep.ID, 7)

	result, err := mgr.Restate(ctx, journal, "2024-09")
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Closed, 2)
	assert.Equal(t, "17.00", result.Closed[0].ClosingBalance.StringFixed(2))
	assert.Equal(t, "22.00", result.Closed[1].ClosingBalance.StringFixed(2))

	periods, err := mgr.List(ctx, journal)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, StateClosed, periods[0].State)
	assert.Equal(t, StateClosed, periods[1].State)
	assert.Equal(t, "17", periods[1].OpeningBalance.String())
	assert.Equal(t, nov.ID, periods[2].ID)
	assert.Equal(t, StateOpen, periods[2].State)
	assert.Equal(t, "22", periods[2].OpeningBalance.String())

	for _, p := range periods[:2] {
		recomputed, err := mgr.ComputeClosing(ctx, p)
		require.NoError(t, err)
		assert.True(t, recomputed.Equal(p.ClosingBalance), p.Name)
	}
}

func TestRestateStopsAtFailure(t *testing.T) {
	m := ledger.NewMemory()
	mgr := NewManager(m, nil, WithClock(clockAt(2024, 11, 5)))
	ctx := context.Background()

	sep, _, err := mgr.Ensure(ctx, journal, "2024-09")
	require.NoError(t, err)
	_, _, err = mgr.Ensure(ctx, journal, "2024-10")
	require.NoError(t, err)
	_, err = mgr.Sweep(ctx, journal)
	require.NoError(t, err)
	addLine(m, sep.ID, 3)

	m.FailPost = func(ledger.Post) error { return errors.New("lock date") }
	result, err := mgr.Restate(ctx, journal, "2024-09")
	require.NoError(t, err)
	assert.Contains(t, result.Failed, "2024-09")
	assert.NotContains(t, result.Failed, "2024-10")
	assert.Empty(t, result.Closed)

	_, err = mgr.Restate(ctx, journal, "2024-9")
	assert.ErrorIs(t, err, ErrInvalidMonthKey)
}
