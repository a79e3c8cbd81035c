// Package entry implements the entry book: appending pending credits and
// debits, atomic batches, cancellation of pending entries, and listings.
package entry

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// BatchItem is one element of an append batch.
type BatchItem struct {
	Amount      decimal.Decimal
	Description string
}

// Service exposes the entry book operations. Appends are lock-free: a pending
// entry either lands before a concurrent commit's snapshot and is committed,
// or after it and stays pending for the next commit.
type Service interface {
	AppendCredit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (ledger.Entry, error)
	AppendCreditBatch(ctx context.Context, accountID uuid.UUID, items []BatchItem) ([]ledger.Entry, error)
	AppendDebit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (ledger.Entry, error)
	AppendDebitBatch(ctx context.Context, accountID uuid.UUID, items []BatchItem) ([]ledger.Entry, error)
	// Cancel hard-deletes a pending entry under the account lock.
	Cancel(ctx context.Context, accountID, entryID uuid.UUID) error
	// ListPending returns uncommitted credits/debits in ascending CreatedAt
	// order, optionally restricted to one kind.
	ListPending(ctx context.Context, accountID uuid.UUID, kind *ledger.EntryKind) ([]ledger.Entry, error)
	Enumerate(ctx context.Context, accountID uuid.UUID, q enumerate.Query, f storage.EntryFilter) (enumerate.Page[ledger.Entry], error)
}

type service struct {
	store    storage.Store
	locks    *ledger.LockTable
	clock    *ledger.Clock
	observer ledger.Observer
}

// New constructs the entry book.
func New(store storage.Store, locks *ledger.LockTable, clock *ledger.Clock, obs ledger.Observer) Service {
	if obs == nil {
		obs = ledger.NopObserver{}
	}
	return &service{store: store, locks: locks, clock: clock, observer: obs}
}

func (s *service) AppendCredit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (ledger.Entry, error) {
	return s.append(ctx, accountID, ledger.EntryKindCredit, amount, description)
}

func (s *service) AppendDebit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (ledger.Entry, error) {
	return s.append(ctx, accountID, ledger.EntryKindDebit, amount, description)
}

func (s *service) append(ctx context.Context, accountID uuid.UUID, kind ledger.EntryKind, amount decimal.Decimal, description string) (ledger.Entry, error) {
	if !amount.IsPositive() {
		return ledger.Entry{}, fmt.Errorf("amount must be > 0: %w", errs.ErrInvalid)
	}
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return ledger.Entry{}, err
	}
	e := ledger.Entry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.InsertEntry(ctx, e); err != nil {
		return ledger.Entry{}, err
	}
	s.observer.Notify(ledger.Event{Kind: appendEvent(kind), AccountID: accountID, EntryIDs: []uuid.UUID{e.ID}, At: e.CreatedAt})
	return e, nil
}

func (s *service) AppendCreditBatch(ctx context.Context, accountID uuid.UUID, items []BatchItem) ([]ledger.Entry, error) {
	return s.appendBatch(ctx, accountID, ledger.EntryKindCredit, items)
}

func (s *service) AppendDebitBatch(ctx context.Context, accountID uuid.UUID, items []BatchItem) ([]ledger.Entry, error) {
	return s.appendBatch(ctx, accountID, ledger.EntryKindDebit, items)
}

// appendBatch validates every element before any write, then persists the
// whole batch atomically with strictly increasing timestamps in input order.
func (s *service) appendBatch(ctx context.Context, accountID uuid.UUID, kind ledger.EntryKind, items []BatchItem) ([]ledger.Entry, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch must not be empty: %w", errs.ErrInvalid)
	}
	for i, it := range items {
		if !it.Amount.IsPositive() {
			return nil, fmt.Errorf("batch item %d: amount must be > 0: %w", i, errs.ErrInvalid)
		}
	}
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	entries := make([]ledger.Entry, 0, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		e := ledger.Entry{
			ID:          uuid.New(),
			AccountID:   accountID,
			Kind:        kind,
			Amount:      it.Amount,
			Description: it.Description,
			CreatedAt:   s.clock.Now(),
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	if err := s.store.InsertEntries(ctx, entries); err != nil {
		return nil, err
	}
	s.observer.Notify(ledger.Event{Kind: appendEvent(kind), AccountID: accountID, EntryIDs: ids, At: entries[len(entries)-1].CreatedAt})
	return entries, nil
}

func (s *service) Cancel(ctx context.Context, accountID, entryID uuid.UUID) error {
	s.locks.Lock(accountID)
	defer s.locks.Unlock(accountID)
	e, err := s.store.EntryByID(ctx, accountID, entryID)
	if err != nil {
		return err
	}
	if e.Kind == ledger.EntryKindBalance {
		return fmt.Errorf("balance entries cannot be canceled: %w", errs.ErrConflict)
	}
	if e.Committed {
		return fmt.Errorf("entry is already committed: %w", errs.ErrConflict)
	}
	if err := s.store.DeleteEntry(ctx, accountID, entryID); err != nil {
		return err
	}
	s.observer.Notify(ledger.Event{Kind: ledger.EventEntryCanceled, AccountID: accountID, EntryIDs: []uuid.UUID{entryID}, At: s.clock.Now()})
	return nil
}

func (s *service) ListPending(ctx context.Context, accountID uuid.UUID, kind *ledger.EntryKind) ([]ledger.Entry, error) {
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	kinds := []ledger.EntryKind{ledger.EntryKindCredit, ledger.EntryKindDebit}
	if kind != nil {
		if *kind != ledger.EntryKindCredit && *kind != ledger.EntryKindDebit {
			return nil, fmt.Errorf("pending listings cover credits and debits only: %w", errs.ErrInvalid)
		}
		kinds = []ledger.EntryKind{*kind}
	}
	pending := false
	return s.store.ListEntries(ctx, accountID, storage.EntryFilter{
		Kinds:     kinds,
		Committed: &pending,
		Ordering:  enumerate.CreatedAscending,
	})
}

func (s *service) Enumerate(ctx context.Context, accountID uuid.UUID, q enumerate.Query, f storage.EntryFilter) (enumerate.Page[ledger.Entry], error) {
	q, err := q.Normalize()
	if err != nil {
		return enumerate.Page[ledger.Entry]{}, err
	}
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return enumerate.Page[ledger.Entry]{}, err
	}
	f.Ordering = q.Ordering
	rows, err := s.store.ListEntries(ctx, accountID, f)
	if err != nil {
		return enumerate.Page[ledger.Entry]{}, err
	}
	return enumerate.Paginate(rows, q, func(e ledger.Entry) uuid.UUID { return e.ID })
}

func appendEvent(kind ledger.EntryKind) ledger.EventKind {
	if kind == ledger.EntryKindDebit {
		return ledger.EventDebitAdded
	}
	return ledger.EventCreditAdded
}

// SortByCreated orders entries ascending by (CreatedAt, ID). Exported for the
// balance engine, which shares the ordering when resolving explicit commit
// selections.
func SortByCreated(entries []ledger.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}
