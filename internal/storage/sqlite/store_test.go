package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path, 4)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestAmountRoundTripPreservesScale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()

	e := ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      ledger.EntryKindCredit,
		Amount:    decimal.RequireFromString("123.45678901"),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.InsertEntry(ctx, e))

	got, err := s.EntryByID(ctx, accountID, e.ID)
	require.NoError(t, err)
	require.True(t, got.Amount.Equal(e.Amount), "got %s", got.Amount)
	require.True(t, got.CreatedAt.Equal(e.CreatedAt))
}

func TestAmountOutsideFixedPointRangeRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()

	// Largest value the e8 column can hold; must survive exactly.
	limit := ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      ledger.EntryKindCredit,
		Amount:    decimal.RequireFromString("92233720368.54775807"),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.InsertEntry(ctx, limit))
	got, err := s.EntryByID(ctx, accountID, limit.ID)
	require.NoError(t, err)
	require.True(t, got.Amount.Equal(limit.Amount), "got %s", got.Amount)

	over := ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      ledger.EntryKindCredit,
		Amount:    decimal.RequireFromString("1000000000000"),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.ErrorIs(t, s.InsertEntry(ctx, over), errs.ErrInvalid)
	_, err = s.EntryByID(ctx, accountID, over.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	min := decimal.RequireFromString("100000000000")
	_, err = s.ListEntries(ctx, accountID, storage.EntryFilter{AmountMin: &min})
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestAccountConflictAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := ledger.Account{ID: uuid.New(), Name: "savings", Notes: "n", CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	require.NoError(t, s.InsertAccount(ctx, a))
	require.ErrorIs(t, s.InsertAccount(ctx, ledger.Account{ID: uuid.New(), Name: "savings", CreatedAt: a.CreatedAt}), errs.ErrConflict)

	got, err := s.AccountByName(ctx, "savings")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, "n", got.Notes)

	_, err = s.AccountByID(ctx, uuid.New())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListEntriesFilteringAndOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)

	amounts := []string{"5", "1", "3"}
	for i, amount := range amounts {
		require.NoError(t, s.InsertEntry(ctx, ledger.Entry{
			ID:        uuid.New(),
			AccountID: accountID,
			Kind:      ledger.EntryKindCredit,
			Amount:    decimal.RequireFromString(amount),
			CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		}))
	}
	require.NoError(t, s.InsertEntry(ctx, ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      ledger.EntryKindBalance,
		Amount:    decimal.NewFromInt(9),
		Committed: true,
		CreatedAt: base.Add(10 * time.Microsecond),
	}))

	// Default excludes balances.
	rows, err := s.ListEntries(ctx, accountID, storage.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rows, err = s.ListEntries(ctx, accountID, storage.EntryFilter{Ordering: enumerate.AmountAscending})
	require.NoError(t, err)
	require.Equal(t, "1", rows[0].Amount.String())
	require.Equal(t, "3", rows[1].Amount.String())
	require.Equal(t, "5", rows[2].Amount.String())

	min := decimal.NewFromInt(2)
	rows, err = s.ListEntries(ctx, accountID, storage.EntryFilter{AmountMin: &min})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	from := base.Add(time.Microsecond)
	rows, err = s.ListEntries(ctx, accountID, storage.EntryFilter{CreatedFrom: &from})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestBalanceChainQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)

	mk := func(amount string, at time.Time, replaces *uuid.UUID) ledger.Entry {
		e := ledger.Entry{
			ID:        uuid.New(),
			AccountID: accountID,
			Kind:      ledger.EntryKindBalance,
			Amount:    decimal.RequireFromString(amount),
			Committed: true,
			Replaces:  replaces,
			CreatedAt: at,
		}
		e.CommittedBy = &e.ID
		e.CommittedAt = &at
		return e
	}
	first := mk("10", base, nil)
	second := mk("25", base.Add(time.Minute), &first.ID)
	require.NoError(t, s.InsertEntry(ctx, first))
	require.NoError(t, s.InsertEntry(ctx, second))

	latest, ok, err := s.LatestBalanceEntry(ctx, accountID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, first.ID, *latest.Replaces)
	require.Equal(t, latest.ID, *latest.CommittedBy)

	asOf, ok, err := s.BalanceEntryAsOf(ctx, accountID, base.Add(30*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, asOf.ID)

	_, ok, err = s.BalanceEntryAsOf(ctx, accountID, base.Add(-time.Second))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxCommitAndRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)

	pending := ledger.Entry{
		ID: uuid.New(), AccountID: accountID, Kind: ledger.EntryKindCredit,
		Amount: decimal.NewFromInt(4), CreatedAt: base,
	}
	require.NoError(t, s.InsertEntry(ctx, pending))

	snapshot := ledger.Entry{
		ID: uuid.New(), AccountID: accountID, Kind: ledger.EntryKindBalance,
		Amount: decimal.NewFromInt(4), Committed: true, CreatedAt: base.Add(time.Microsecond),
	}
	at := base.Add(time.Microsecond)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertEntry(ctx, snapshot))
	require.NoError(t, tx.MarkEntriesCommitted(ctx, []uuid.UUID{pending.ID}, snapshot.ID, at))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.EntryByID(ctx, accountID, pending.ID)
	require.NoError(t, err)
	require.True(t, got.Committed)
	require.Equal(t, snapshot.ID, *got.CommittedBy)
	require.True(t, got.CommittedAt.Equal(at))

	// Rolled-back writes never land.
	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	orphan := ledger.Entry{ID: uuid.New(), AccountID: accountID, Kind: ledger.EntryKindCredit, Amount: decimal.NewFromInt(1), CreatedAt: base}
	require.NoError(t, tx.InsertEntry(ctx, orphan))
	require.NoError(t, tx.Rollback(ctx))
	_, err = s.EntryByID(ctx, accountID, orphan.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMarkEntriesCommittedUnknownID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	err = tx.MarkEntriesCommitted(ctx, []uuid.UUID{uuid.New()}, uuid.New(), time.Now().UTC())
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
}

func TestDeleteCascadeWithinTx(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := ledger.Account{ID: uuid.New(), Name: "gone", CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	require.NoError(t, s.InsertAccount(ctx, a))
	require.NoError(t, s.InsertEntry(ctx, ledger.Entry{
		ID: uuid.New(), AccountID: a.ID, Kind: ledger.EntryKindCredit,
		Amount: decimal.NewFromInt(1), CreatedAt: a.CreatedAt,
	}))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteEntriesByAccount(ctx, a.ID))
	require.NoError(t, tx.DeleteAccount(ctx, a.ID))
	require.NoError(t, tx.Commit(ctx))

	_, err = s.AccountByID(ctx, a.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	rows, err := s.ListEntries(ctx, a.ID, storage.EntryFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)
}
