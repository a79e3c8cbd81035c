package memory

import (
	"context"
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

func newAccount(name string, at time.Time) ledger.Account {
	return ledger.Account{ID: uuid.New(), Name: name, CreatedAt: at}
}

func newEntry(accountID uuid.UUID, kind ledger.EntryKind, amount string, at time.Time) ledger.Entry {
	return ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      kind,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at,
	}
}

func TestAccountNameUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.InsertAccount(ctx, newAccount("savings", time.Now())))
	err := s.InsertAccount(ctx, newAccount("savings", time.Now()))
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestAccountLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newAccount("checking", time.Now().UTC())
	require.NoError(t, s.InsertAccount(ctx, a))

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a, got)

	got, err = s.AccountByName(ctx, "checking")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	_, err = s.AccountByID(ctx, uuid.New())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListEntriesDefaultExcludesBalances(t *testing.T) {
	s := New()
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Now().UTC()

	require.NoError(t, s.InsertEntry(ctx, newEntry(accountID, ledger.EntryKindCredit, "10", base)))
	require.NoError(t, s.InsertEntry(ctx, newEntry(accountID, ledger.EntryKindDebit, "3", base.Add(time.Microsecond))))
	require.NoError(t, s.InsertEntry(ctx, newEntry(accountID, ledger.EntryKindBalance, "7", base.Add(2*time.Microsecond))))

	rows, err := s.ListEntries(ctx, accountID, storage.EntryFilter{Ordering: enumerate.CreatedAscending})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, e := range rows {
		require.NotEqual(t, ledger.EntryKindBalance, e.Kind)
	}
}

func TestListEntriesAmountOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Now().UTC()

	require.NoError(t, s.InsertEntry(ctx, newEntry(accountID, ledger.EntryKindCredit, "5", base)))
	require.NoError(t, s.InsertEntry(ctx, newEntry(accountID, ledger.EntryKindCredit, "1", base.Add(time.Microsecond))))
	require.NoError(t, s.InsertEntry(ctx, newEntry(accountID, ledger.EntryKindCredit, "3", base.Add(2*time.Microsecond))))

	rows, err := s.ListEntries(ctx, accountID, storage.EntryFilter{Ordering: enumerate.AmountDescending})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "5", rows[0].Amount.String())
	require.Equal(t, "3", rows[1].Amount.String())
	require.Equal(t, "1", rows[2].Amount.String())
}

func TestLatestBalanceEntryAndAsOf(t *testing.T) {
	s := New()
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := newEntry(accountID, ledger.EntryKindBalance, "10", base)
	second := newEntry(accountID, ledger.EntryKindBalance, "25", base.Add(time.Minute))
	require.NoError(t, s.InsertEntry(ctx, first))
	require.NoError(t, s.InsertEntry(ctx, second))

	latest, ok, err := s.LatestBalanceEntry(ctx, accountID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second.ID, latest.ID)

	asOf, ok, err := s.BalanceEntryAsOf(ctx, accountID, base.Add(30*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, asOf.ID)

	_, ok, err = s.BalanceEntryAsOf(ctx, accountID, base.Add(-time.Second))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxCommitIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	accountID := uuid.New()
	pending := newEntry(accountID, ledger.EntryKindCredit, "4", time.Now().UTC())
	require.NoError(t, s.InsertEntry(ctx, pending))

	snapshot := newEntry(accountID, ledger.EntryKindBalance, "4", time.Now().UTC())
	at := time.Now().UTC()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertEntry(ctx, snapshot))
	require.NoError(t, tx.MarkEntriesCommitted(ctx, []uuid.UUID{pending.ID}, snapshot.ID, at))

	// Nothing is visible before Commit.
	e, err := s.EntryByID(ctx, accountID, pending.ID)
	require.NoError(t, err)
	require.False(t, e.Committed)
	_, err = s.EntryByID(ctx, accountID, snapshot.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, tx.Commit(ctx))

	e, err = s.EntryByID(ctx, accountID, pending.ID)
	require.NoError(t, err)
	require.True(t, e.Committed)
	require.Equal(t, snapshot.ID, *e.CommittedBy)
	require.True(t, e.CommittedAt.Equal(at))
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	accountID := uuid.New()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	e := newEntry(accountID, ledger.EntryKindCredit, "1", time.Now().UTC())
	require.NoError(t, tx.InsertEntry(ctx, e))
	require.NoError(t, tx.Rollback(ctx))

	_, err = s.EntryByID(ctx, accountID, e.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTxCommitCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertEntry(ctx, newEntry(uuid.New(), ledger.EntryKindCredit, "1", time.Now().UTC())))

	cancel()
	require.ErrorIs(t, tx.Commit(ctx), errs.ErrCanceled)
}

func TestAPIKeyRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	k := ledger.APIKey{ID: uuid.New(), Key: "secret", Name: "ci", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertAPIKey(ctx, k))

	got, err := s.APIKeyByValue(ctx, "secret")
	require.NoError(t, err)
	require.Equal(t, k.ID, got.ID)

	require.ErrorIs(t, s.InsertAPIKey(ctx, ledger.APIKey{ID: uuid.New(), Key: "secret"}), errs.ErrConflict)

	require.NoError(t, s.DeleteAPIKey(ctx, k.ID))
	_, err = s.APIKeyByValue(ctx, "secret")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
