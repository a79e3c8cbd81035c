// Package storage defines the persistence contract the engine requires.
// Any backend providing these operations with serializable semantics inside a
// transaction satisfies it; memory, sqlite and postgres implementations live
// in subpackages.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/ledger"
)

// AccountFilter restricts account enumeration. Zero value matches everything.
type AccountFilter struct {
	// NameContains matches accounts whose name contains the substring
	// (case-sensitive, consistent with name uniqueness).
	NameContains string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Ordering     enumerate.Ordering
}

// EntryFilter restricts entry listings and enumeration for one account.
// Zero value matches every entry of the account.
type EntryFilter struct {
	// Kinds limits to the given kinds; empty means credits and debits only,
	// mirroring the API default of excluding balance entries.
	Kinds       []ledger.EntryKind
	Committed   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	AmountMin   *decimal.Decimal
	AmountMax   *decimal.Decimal
	Ordering    enumerate.Ordering
}

// Matches reports whether e passes the filter, ignoring ordering.
func (f EntryFilter) Matches(e ledger.Entry) bool {
	if len(f.Kinds) == 0 {
		if e.Kind == ledger.EntryKindBalance {
			return false
		}
	} else {
		ok := false
		for _, k := range f.Kinds {
			if e.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Committed != nil && e.Committed != *f.Committed {
		return false
	}
	if f.CreatedFrom != nil && e.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && e.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.AmountMin != nil && e.Amount.LessThan(*f.AmountMin) {
		return false
	}
	if f.AmountMax != nil && e.Amount.GreaterThan(*f.AmountMax) {
		return false
	}
	return true
}

// Tx spans the write set of one atomic operation. Either every buffered write
// becomes visible on Commit or none does.
type Tx interface {
	InsertEntry(ctx context.Context, e ledger.Entry) error
	// MarkEntriesCommitted sets Committed, CommittedBy=balanceID and
	// CommittedAt=at on every listed entry.
	MarkEntriesCommitted(ctx context.Context, ids []uuid.UUID, balanceID uuid.UUID, at time.Time) error
	DeleteEntriesByAccount(ctx context.Context, accountID uuid.UUID) error
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the full persistence contract. All methods are safe for concurrent
// use; reads outside a Tx see only committed state.
type Store interface {
	// accounts
	InsertAccount(ctx context.Context, a ledger.Account) error
	AccountByID(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountByName(ctx context.Context, name string) (ledger.Account, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]ledger.Account, error)

	// entries
	InsertEntry(ctx context.Context, e ledger.Entry) error
	// InsertEntries persists the batch atomically in slice order.
	InsertEntries(ctx context.Context, entries []ledger.Entry) error
	EntryByID(ctx context.Context, accountID, entryID uuid.UUID) (ledger.Entry, error)
	EntriesByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.Entry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, f EntryFilter) ([]ledger.Entry, error)
	DeleteEntry(ctx context.Context, accountID, entryID uuid.UUID) error
	// LatestBalanceEntry returns the balance entry with the greatest CreatedAt,
	// or ok=false when the account has no snapshot yet.
	LatestBalanceEntry(ctx context.Context, accountID uuid.UUID) (ledger.Entry, bool, error)
	// BalanceEntryAsOf returns the balance entry with the greatest
	// CreatedAt <= t, or ok=false.
	BalanceEntryAsOf(ctx context.Context, accountID uuid.UUID, t time.Time) (ledger.Entry, bool, error)

	// api keys
	InsertAPIKey(ctx context.Context, k ledger.APIKey) error
	APIKeyByValue(ctx context.Context, key string) (ledger.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]ledger.APIKey, error)
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error

	BeginTx(ctx context.Context) (Tx, error)
	Ready(ctx context.Context) error
	Close()
}
