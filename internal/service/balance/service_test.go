package balance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/service/entry"
	"github.com/ledgersmith/balancebook/internal/storage/memory"
)

type fixture struct {
	balances  Service
	entries   entry.Service
	store     *memory.Store
	clock     *ledger.Clock
	accountID uuid.UUID
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := memory.New()
	locks := ledger.NewLockTable()
	clock := ledger.NewClock()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := ledger.Account{ID: uuid.New(), Name: "test", CreatedAt: clock.Now()}
	require.NoError(t, store.InsertAccount(context.Background(), a))

	return &fixture{
		balances:  New(store, locks, clock, nil, log, opts),
		entries:   entry.New(store, locks, clock, nil),
		store:     store,
		clock:     clock,
		accountID: a.ID,
	}
}

func (f *fixture) credit(t *testing.T, amount string) ledger.Entry {
	t.Helper()
	e, err := f.entries.AppendCredit(context.Background(), f.accountID, decimal.RequireFromString(amount), "")
	require.NoError(t, err)
	return e
}

func (f *fixture) debit(t *testing.T, amount string) ledger.Entry {
	t.Helper()
	e, err := f.entries.AppendDebit(context.Background(), f.accountID, decimal.RequireFromString(amount), "")
	require.NoError(t, err)
	return e
}

func TestGetBalanceEmptyAccount(t *testing.T) {
	f := newFixture(t, Options{})
	v, err := f.balances.GetBalance(context.Background(), f.accountID)
	require.NoError(t, err)
	require.True(t, v.Committed.IsZero())
	require.True(t, v.Pending.IsZero())
	require.Nil(t, v.LatestBalanceEntryID)
	require.Empty(t, v.CommittedEntryIDs)
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.balances.GetBalance(context.Background(), uuid.New())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetBalanceReflectsPending(t *testing.T) {
	f := newFixture(t, Options{})
	f.credit(t, "10")
	f.credit(t, "2.50")
	f.debit(t, "4")

	v, err := f.balances.GetBalance(context.Background(), f.accountID)
	require.NoError(t, err)
	require.True(t, v.Committed.IsZero())
	require.Equal(t, "8.5", v.Pending.String())
	require.Equal(t, 2, v.PendingCredits.Count)
	require.Equal(t, "12.5", v.PendingCredits.Total.String())
	require.Equal(t, 1, v.PendingDebits.Count)
	require.Equal(t, "4", v.PendingDebits.Total.String())
}

func TestCommitAllPending(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c1 := f.credit(t, "10")
	d1 := f.debit(t, "3")

	v, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)
	require.Equal(t, "7", v.Committed.String())
	require.Equal(t, "7", v.Pending.String())
	require.Zero(t, v.PendingCredits.Count)
	require.Zero(t, v.PendingDebits.Count)
	require.NotNil(t, v.LatestBalanceEntryID)
	require.ElementsMatch(t, []uuid.UUID{c1.ID, d1.ID}, v.CommittedEntryIDs)

	// The snapshot postdates every entry it attributes and self-attributes.
	snapshot, ok, err := f.store.LatestBalanceEntry(ctx, f.accountID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, snapshot.Replaces)
	require.Equal(t, snapshot.ID, *snapshot.CommittedBy)
	require.True(t, snapshot.CommittedAt.Equal(snapshot.CreatedAt))
	require.True(t, snapshot.CreatedAt.After(d1.CreatedAt))

	// Attributed entries reference the snapshot with its timestamp.
	committed, err := f.store.EntryByID(ctx, f.accountID, c1.ID)
	require.NoError(t, err)
	require.True(t, committed.Committed)
	require.Equal(t, snapshot.ID, *committed.CommittedBy)
	require.True(t, committed.CommittedAt.Equal(snapshot.CreatedAt))
}

func TestCommitChainsSnapshots(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.credit(t, "10")
	first, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)

	f.debit(t, "4")
	second, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)
	require.Equal(t, "6", second.Committed.String())

	snapshot, ok, err := f.store.LatestBalanceEntry(ctx, f.accountID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, snapshot.Replaces)
	require.Equal(t, *first.LatestBalanceEntryID, *snapshot.Replaces)
}

func TestCommitSelection(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c1 := f.credit(t, "10")
	c2 := f.credit(t, "20")

	v, err := f.balances.Commit(ctx, f.accountID, []uuid.UUID{c1.ID, c1.ID})
	require.NoError(t, err)
	require.Equal(t, "10", v.Committed.String())
	require.Equal(t, []uuid.UUID{c1.ID}, v.CommittedEntryIDs)
	require.Equal(t, 1, v.PendingCredits.Count)
	require.Equal(t, c2.ID, v.PendingCredits.Entries[0].ID)
	require.Equal(t, "30", v.Pending.String())
}

func TestCommitSelectionValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c1 := f.credit(t, "5")

	_, err := f.balances.Commit(ctx, f.accountID, []uuid.UUID{uuid.New()})
	require.ErrorIs(t, err, errs.ErrNotFound)

	other := ledger.Account{ID: uuid.New(), Name: "other", CreatedAt: f.clock.Now()}
	require.NoError(t, f.store.InsertAccount(ctx, other))
	foreign, err := f.entries.AppendCredit(ctx, other.ID, decimal.NewFromInt(1), "")
	require.NoError(t, err)
	_, err = f.balances.Commit(ctx, f.accountID, []uuid.UUID{foreign.ID})
	require.ErrorIs(t, err, errs.ErrInvalid)

	// Committing an already committed entry fails.
	_, err = f.balances.Commit(ctx, f.accountID, []uuid.UUID{c1.ID})
	require.NoError(t, err)
	_, err = f.balances.Commit(ctx, f.accountID, []uuid.UUID{c1.ID})
	require.ErrorIs(t, err, errs.ErrInvalid)

	// A balance entry is never a valid selection.
	snapshot, _, err := f.store.LatestBalanceEntry(ctx, f.accountID)
	require.NoError(t, err)
	_, err = f.balances.Commit(ctx, f.accountID, []uuid.UUID{snapshot.ID})
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestCommitNothingPendingIsNoOp(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	v, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)
	require.Nil(t, v.LatestBalanceEntryID)

	_, ok, err := f.store.LatestBalanceEntry(ctx, f.accountID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitNegativeBalanceAllowedByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	f.debit(t, "9")

	v, err := f.balances.Commit(context.Background(), f.accountID, nil)
	require.NoError(t, err)
	require.Equal(t, "-9", v.Committed.String())
}

func TestCommitNegativeBalanceRejectedWhenConfigured(t *testing.T) {
	f := newFixture(t, Options{RejectNegativeCommit: true})
	f.debit(t, "9")

	_, err := f.balances.Commit(context.Background(), f.accountID, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)

	// The debit stays pending.
	v, err := f.balances.GetBalance(context.Background(), f.accountID)
	require.NoError(t, err)
	require.Equal(t, 1, v.PendingDebits.Count)
}

func TestGetBalanceAsOf(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.credit(t, "10")
	first, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)
	firstAt := *first.BalanceTimestamp

	f.credit(t, "5")
	_, err = f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)

	// Before any snapshot.
	b, err := f.balances.GetBalanceAsOf(ctx, f.accountID, firstAt.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, b.Amount.IsZero())

	// At the first snapshot's instant.
	b, err = f.balances.GetBalanceAsOf(ctx, f.accountID, firstAt)
	require.NoError(t, err)
	require.Equal(t, "10", b.Amount.String())

	// After everything.
	b, err = f.balances.GetBalanceAsOf(ctx, f.accountID, firstAt.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "15", b.Amount.String())
}

func TestGetAllBalances(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	for _, name := range []string{"b", "c", "d"} {
		a := ledger.Account{ID: uuid.New(), Name: name, CreatedAt: f.clock.Now()}
		require.NoError(t, f.store.InsertAccount(ctx, a))
	}
	f.credit(t, "3")

	views, err := f.balances.GetAllBalances(ctx)
	require.NoError(t, err)
	require.Len(t, views, 4)
	require.Equal(t, f.accountID, views[0].AccountID)
	require.Equal(t, "3", views[0].Pending.String())
}

func TestVerifyValidChain(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.credit(t, "10")
	f.debit(t, "2")
	_, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)
	f.credit(t, "1.25")
	_, err = f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)

	ok, err := f.balances.Verify(ctx, f.accountID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyAcceptsFundedGenesis(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// A genesis snapshot with no attributed entries, as account creation with an
	// initial balance writes it.
	at := f.clock.Now()
	genesis := ledger.Entry{
		ID: uuid.New(), AccountID: f.accountID, Kind: ledger.EntryKindBalance,
		Amount: decimal.NewFromInt(100), Committed: true, CreatedAt: at,
	}
	genesis.CommittedBy = &genesis.ID
	genesis.CommittedAt = &at
	require.NoError(t, f.store.InsertEntry(ctx, genesis))

	ok, err := f.balances.Verify(ctx, f.accountID)
	require.NoError(t, err)
	require.True(t, ok)

	// And the chain stays valid across a later commit.
	f.credit(t, "10")
	_, err = f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)
	ok, err = f.balances.Verify(ctx, f.accountID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyDetectsTamperedAmount(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.credit(t, "10")
	_, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)

	snapshot, ok, err := f.store.LatestBalanceEntry(ctx, f.accountID)
	require.NoError(t, err)
	require.True(t, ok)
	snapshot.Amount = decimal.NewFromInt(999)
	require.NoError(t, f.store.InsertEntry(ctx, snapshot))

	valid, err := f.balances.Verify(ctx, f.accountID)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.credit(t, "10")
	_, err := f.balances.Commit(ctx, f.accountID, nil)
	require.NoError(t, err)

	// A second snapshot whose Replaces points nowhere.
	at := f.clock.Now()
	bogus := ledger.Entry{
		ID: uuid.New(), AccountID: f.accountID, Kind: ledger.EntryKindBalance,
		Amount: decimal.NewFromInt(10), Committed: true, CreatedAt: at,
	}
	bogus.CommittedBy = &bogus.ID
	bogus.CommittedAt = &at
	orphan := uuid.New()
	bogus.Replaces = &orphan
	require.NoError(t, f.store.InsertEntry(ctx, bogus))

	valid, err := f.balances.Verify(ctx, f.accountID)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyUnknownAccount(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.balances.Verify(context.Background(), uuid.New())
	require.ErrorIs(t, err, errs.ErrNotFound)
}
