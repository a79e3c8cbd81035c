// Package account implements the account registry: creation with an optional
// genesis balance, name uniqueness, lookups, cascading deletes, and
// enumeration.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// Service exposes registry operations over accounts.
type Service interface {
	// Create registers a new account. A positive initialBalance additionally
	// writes the genesis balance snapshot under the account lock.
	Create(ctx context.Context, name, notes string, initialBalance decimal.Decimal) (ledger.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	GetByName(ctx context.Context, name string) (ledger.Account, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Delete removes the account and every entry it owns, atomically with
	// respect to concurrent readers.
	Delete(ctx context.Context, id uuid.UUID) error
	Enumerate(ctx context.Context, q enumerate.Query, f storage.AccountFilter) (enumerate.Page[ledger.Account], error)
}

type service struct {
	store    storage.Store
	locks    *ledger.LockTable
	clock    *ledger.Clock
	observer ledger.Observer
}

// New constructs the registry. The lock table and clock are shared with the
// entry book and balance engine so per-account serialization and timestamp
// monotonicity hold across services.
func New(store storage.Store, locks *ledger.LockTable, clock *ledger.Clock, obs ledger.Observer) Service {
	if obs == nil {
		obs = ledger.NopObserver{}
	}
	return &service{store: store, locks: locks, clock: clock, observer: obs}
}

func (s *service) Create(ctx context.Context, name, notes string, initialBalance decimal.Decimal) (ledger.Account, error) {
	if strings.TrimSpace(name) == "" {
		return ledger.Account{}, fmt.Errorf("name is required: %w", errs.ErrInvalid)
	}
	if initialBalance.IsNegative() {
		return ledger.Account{}, fmt.Errorf("initial balance must be >= 0: %w", errs.ErrInvalid)
	}
	if _, err := s.store.AccountByName(ctx, name); err == nil {
		return ledger.Account{}, fmt.Errorf("account name %q already exists: %w", name, errs.ErrConflict)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, err
	}

	a := ledger.Account{
		ID:        uuid.New(),
		Name:      name,
		Notes:     notes,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertAccount(ctx, a); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return ledger.Account{}, fmt.Errorf("account name %q already exists: %w", name, errs.ErrConflict)
		}
		return ledger.Account{}, err
	}

	if initialBalance.IsPositive() {
		s.locks.Lock(a.ID)
		defer s.locks.Unlock(a.ID)
		genesis := genesisBalance(a.ID, initialBalance, s.clock.After(a.CreatedAt))
		if err := s.store.InsertEntry(ctx, genesis); err != nil {
			// Do not leave a half-created account behind.
			s.rollbackCreate(ctx, a.ID)
			return ledger.Account{}, err
		}
	}
	s.observer.Notify(ledger.Event{Kind: ledger.EventAccountCreated, AccountID: a.ID, At: a.CreatedAt})
	return a, nil
}

// genesisBalance builds the first balance snapshot for an account funded at
// creation: replaces is nil and the entry attributes itself.
func genesisBalance(accountID uuid.UUID, amount decimal.Decimal, at time.Time) ledger.Entry {
	id := uuid.New()
	self := id
	committedAt := at
	return ledger.Entry{
		ID:          id,
		AccountID:   accountID,
		Kind:        ledger.EntryKindBalance,
		Amount:      amount,
		Committed:   true,
		CommittedBy: &self,
		CommittedAt: &committedAt,
		CreatedAt:   at,
	}
}

func (s *service) rollbackCreate(ctx context.Context, id uuid.UUID) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return
	}
	if err := tx.DeleteAccount(ctx, id); err != nil {
		_ = tx.Rollback(ctx)
		return
	}
	_ = tx.Commit(ctx)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.store.AccountByID(ctx, id)
}

func (s *service) GetByName(ctx context.Context, name string) (ledger.Account, error) {
	return s.store.AccountByName(ctx, name)
}

func (s *service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.store.AccountByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	if _, err := s.store.AccountByID(ctx, id); err != nil {
		return err
	}
	err := storage.Retry(ctx, func() error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return err
		}
		if err := tx.DeleteEntriesByAccount(ctx, id); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.DeleteAccount(ctx, id); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}
	s.observer.Notify(ledger.Event{Kind: ledger.EventAccountDeleted, AccountID: id, At: s.clock.Now()})
	return nil
}

func (s *service) Enumerate(ctx context.Context, q enumerate.Query, f storage.AccountFilter) (enumerate.Page[ledger.Account], error) {
	q, err := q.ForAccounts().Normalize()
	if err != nil {
		return enumerate.Page[ledger.Account]{}, err
	}
	f.Ordering = q.Ordering
	rows, err := s.store.ListAccounts(ctx, f)
	if err != nil {
		return enumerate.Page[ledger.Account]{}, err
	}
	return enumerate.Paginate(rows, q, func(a ledger.Account) uuid.UUID { return a.ID })
}
