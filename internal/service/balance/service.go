// Package balance implements the balance engine: consistent balance views,
// historical balance reconstruction, the atomic commit that produces a new
// balance snapshot, and verification of the snapshot chain.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/service/entry"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// allBalancesConcurrency bounds the fan-out of GetAllBalances. Each account is
// computed under its own lock; no global snapshot is promised.
const allBalancesConcurrency = 8

// Service exposes the balance engine operations.
type Service interface {
	// GetBalance returns a consistent view of the account: the committed
	// snapshot and the pending set never tear because the read holds the
	// account lock.
	GetBalance(ctx context.Context, accountID uuid.UUID) (ledger.BalanceView, error)
	// GetBalanceAsOf returns the committed balance at instant t. Pending
	// entries are never reflected.
	GetBalanceAsOf(ctx context.Context, accountID uuid.UUID, t time.Time) (ledger.AsOfBalance, error)
	GetAllBalances(ctx context.Context) ([]ledger.BalanceView, error)
	// Commit attributes the selected pending entries (all when selection is
	// empty) to a new balance snapshot, atomically. An empty resolved set is a
	// no-op returning the current view.
	Commit(ctx context.Context, accountID uuid.UUID, selection []uuid.UUID) (ledger.BalanceView, error)
	// Verify walks the account's balance chain and re-derives every snapshot
	// amount from its attributed entries. Mismatches report false, never error.
	Verify(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// Options tune engine policy.
type Options struct {
	// RejectNegativeCommit makes Commit fail Invalid instead of recording a
	// negative committed balance. Off by default: the ledger records, it does
	// not authorize.
	RejectNegativeCommit bool
}

type service struct {
	store    storage.Store
	locks    *ledger.LockTable
	clock    *ledger.Clock
	observer ledger.Observer
	log      *slog.Logger
	opts     Options
}

// New constructs the balance engine.
func New(store storage.Store, locks *ledger.LockTable, clock *ledger.Clock, obs ledger.Observer, log *slog.Logger, opts Options) Service {
	if obs == nil {
		obs = ledger.NopObserver{}
	}
	return &service{store: store, locks: locks, clock: clock, observer: obs, log: log, opts: opts}
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (ledger.BalanceView, error) {
	s.locks.Lock(accountID)
	defer s.locks.Unlock(accountID)
	return s.viewLocked(ctx, accountID)
}

// viewLocked builds a BalanceView. Caller must hold the account lock.
func (s *service) viewLocked(ctx context.Context, accountID uuid.UUID) (ledger.BalanceView, error) {
	a, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return ledger.BalanceView{}, err
	}
	view := ledger.BalanceView{
		AccountID:         a.ID,
		AccountName:       a.Name,
		AccountCreatedAt:  a.CreatedAt,
		Committed:         decimal.Zero,
		CommittedEntryIDs: []uuid.UUID{},
	}

	latest, ok, err := s.store.LatestBalanceEntry(ctx, accountID)
	if err != nil {
		return ledger.BalanceView{}, err
	}
	if ok {
		id := latest.ID
		ts := latest.CreatedAt
		view.LatestBalanceEntryID = &id
		view.BalanceTimestamp = &ts
		view.Committed = latest.Amount

		committed := true
		attributed, err := s.store.ListEntries(ctx, accountID, storage.EntryFilter{
			Kinds:     []ledger.EntryKind{ledger.EntryKindCredit, ledger.EntryKindDebit},
			Committed: &committed,
			Ordering:  enumerate.CreatedAscending,
		})
		if err != nil {
			return ledger.BalanceView{}, err
		}
		for _, e := range attributed {
			if e.CommittedBy != nil && *e.CommittedBy == latest.ID {
				view.CommittedEntryIDs = append(view.CommittedEntryIDs, e.ID)
			}
		}
	}

	pending := false
	pendingEntries, err := s.store.ListEntries(ctx, accountID, storage.EntryFilter{
		Kinds:     []ledger.EntryKind{ledger.EntryKindCredit, ledger.EntryKindDebit},
		Committed: &pending,
		Ordering:  enumerate.CreatedAscending,
	})
	if err != nil {
		return ledger.BalanceView{}, err
	}
	view.PendingCredits = summarize(pendingEntries, ledger.EntryKindCredit)
	view.PendingDebits = summarize(pendingEntries, ledger.EntryKindDebit)
	view.Pending = view.Committed.Add(view.PendingCredits.Total).Sub(view.PendingDebits.Total)
	return view, nil
}

func summarize(entries []ledger.Entry, kind ledger.EntryKind) ledger.EntrySummary {
	sum := ledger.EntrySummary{Total: decimal.Zero, Entries: []ledger.Entry{}}
	for _, e := range entries {
		if e.Kind != kind {
			continue
		}
		sum.Count++
		sum.Total = sum.Total.Add(e.Amount)
		sum.Entries = append(sum.Entries, e)
	}
	return sum
}

func (s *service) GetBalanceAsOf(ctx context.Context, accountID uuid.UUID, t time.Time) (ledger.AsOfBalance, error) {
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return ledger.AsOfBalance{}, err
	}
	out := ledger.AsOfBalance{AccountID: accountID, AsOf: t.UTC(), Amount: decimal.Zero}
	b, ok, err := s.store.BalanceEntryAsOf(ctx, accountID, t)
	if err != nil {
		return ledger.AsOfBalance{}, err
	}
	if ok {
		out.Amount = b.Amount
	}
	return out, nil
}

func (s *service) GetAllBalances(ctx context.Context) ([]ledger.BalanceView, error) {
	accounts, err := s.store.ListAccounts(ctx, storage.AccountFilter{Ordering: enumerate.CreatedAscending})
	if err != nil {
		return nil, err
	}
	views := make([]ledger.BalanceView, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(allBalancesConcurrency)
	for i, a := range accounts {
		i, a := i, a
		g.Go(func() error {
			v, err := s.GetBalance(gctx, a.ID)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *service) Commit(ctx context.Context, accountID uuid.UUID, selection []uuid.UUID) (ledger.BalanceView, error) {
	s.locks.Lock(accountID)
	defer s.locks.Unlock(accountID)

	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return ledger.BalanceView{}, err
	}

	prev, havePrev, err := s.store.LatestBalanceEntry(ctx, accountID)
	if err != nil {
		return ledger.BalanceView{}, err
	}
	current := decimal.Zero
	if havePrev {
		current = prev.Amount
	}

	selected, err := s.resolveSelection(ctx, accountID, selection)
	if err != nil {
		return ledger.BalanceView{}, err
	}
	if len(selected) == 0 {
		// Nothing to commit; no new snapshot.
		return s.viewLocked(ctx, accountID)
	}

	newAmount := current
	maxCreated := time.Time{}
	if havePrev {
		maxCreated = prev.CreatedAt
	}
	ids := make([]uuid.UUID, 0, len(selected))
	for _, e := range selected {
		newAmount = newAmount.Add(e.Signed())
		if e.CreatedAt.After(maxCreated) {
			maxCreated = e.CreatedAt
		}
		ids = append(ids, e.ID)
	}
	if s.opts.RejectNegativeCommit && newAmount.IsNegative() {
		return ledger.BalanceView{}, fmt.Errorf("commit would produce negative balance %s: %w", newAmount, errs.ErrInvalid)
	}

	now := s.clock.After(maxCreated)
	snapshot := ledger.Entry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        ledger.EntryKindBalance,
		Amount:      newAmount,
		Committed:   true,
		CommittedAt: &now,
		CreatedAt:   now,
	}
	self := snapshot.ID
	snapshot.CommittedBy = &self
	if havePrev {
		replaces := prev.ID
		snapshot.Replaces = &replaces
	}

	err = storage.Retry(ctx, func() error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, snapshot); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.MarkEntriesCommitted(ctx, ids, snapshot.ID, now); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return ledger.BalanceView{}, err
	}

	s.observer.Notify(ledger.Event{
		Kind:      ledger.EventEntriesCommitted,
		AccountID: accountID,
		EntryIDs:  append(ids, snapshot.ID),
		At:        now,
	})
	return s.viewLocked(ctx, accountID)
}

// resolveSelection loads the pending entries a commit attributes, ascending by
// (CreatedAt, ID). A nil selection means every pending credit and debit.
func (s *service) resolveSelection(ctx context.Context, accountID uuid.UUID, selection []uuid.UUID) ([]ledger.Entry, error) {
	if len(selection) == 0 {
		pending := false
		return s.store.ListEntries(ctx, accountID, storage.EntryFilter{
			Kinds:     []ledger.EntryKind{ledger.EntryKindCredit, ledger.EntryKindDebit},
			Committed: &pending,
			Ordering:  enumerate.CreatedAscending,
		})
	}
	loaded, err := s.store.EntriesByIDs(ctx, selection)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]ledger.Entry, len(loaded))
	for _, e := range loaded {
		byID[e.ID] = e
	}
	out := make([]ledger.Entry, 0, len(selection))
	seen := make(map[uuid.UUID]struct{}, len(selection))
	for _, id := range selection {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		e, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("entry %s: %w", id, errs.ErrNotFound)
		}
		if e.AccountID != accountID {
			return nil, fmt.Errorf("entry %s belongs to another account: %w", id, errs.ErrInvalid)
		}
		if e.Kind == ledger.EntryKindBalance {
			return nil, fmt.Errorf("entry %s is a balance snapshot: %w", id, errs.ErrInvalid)
		}
		if e.Committed {
			return nil, fmt.Errorf("entry %s is already committed: %w", id, errs.ErrInvalid)
		}
		out = append(out, e)
	}
	entry.SortByCreated(out)
	return out, nil
}

func (s *service) Verify(ctx context.Context, accountID uuid.UUID) (bool, error) {
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return false, err
	}
	chain, err := s.store.ListEntries(ctx, accountID, storage.EntryFilter{
		Kinds:    []ledger.EntryKind{ledger.EntryKindBalance},
		Ordering: enumerate.CreatedAscending,
	})
	if err != nil {
		return false, err
	}
	committed := true
	attributed, err := s.store.ListEntries(ctx, accountID, storage.EntryFilter{
		Kinds:     []ledger.EntryKind{ledger.EntryKindCredit, ledger.EntryKindDebit},
		Committed: &committed,
		Ordering:  enumerate.CreatedAscending,
	})
	if err != nil {
		return false, err
	}
	byBalance := make(map[uuid.UUID][]ledger.Entry)
	for _, e := range attributed {
		if e.CommittedBy == nil {
			s.diag(accountID, "committed entry without attribution", "entry_id", e.ID.String())
			return false, nil
		}
		byBalance[*e.CommittedBy] = append(byBalance[*e.CommittedBy], e)
	}

	prior := decimal.Zero
	for i, b := range chain {
		if !b.Committed || b.CommittedAt == nil || !b.CommittedAt.Equal(b.CreatedAt) {
			s.diag(accountID, "balance entry with inconsistent commit fields", "balance_id", b.ID.String())
			return false, nil
		}
		if b.CommittedBy == nil || *b.CommittedBy != b.ID {
			s.diag(accountID, "balance entry not self-attributed", "balance_id", b.ID.String())
			return false, nil
		}
		if i == 0 {
			if b.Replaces != nil {
				s.diag(accountID, "genesis balance has a predecessor link", "balance_id", b.ID.String())
				return false, nil
			}
		} else {
			if b.Replaces == nil || *b.Replaces != chain[i-1].ID {
				s.diag(accountID, "broken predecessor link", "balance_id", b.ID.String())
				return false, nil
			}
		}

		sum := prior
		for _, e := range byBalance[b.ID] {
			sum = sum.Add(e.Signed())
		}
		// A genesis snapshot with no attributed entries records the account's
		// initial balance; its amount cannot be re-derived and is accepted.
		fundedGenesis := i == 0 && len(byBalance[b.ID]) == 0
		if !fundedGenesis && !b.Amount.Equal(sum) {
			s.diag(accountID, "snapshot amount mismatch",
				"balance_id", b.ID.String(), "expected", sum.String(), "actual", b.Amount.String())
			return false, nil
		}
		prior = b.Amount
	}
	return true, nil
}

func (s *service) diag(accountID uuid.UUID, msg string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Warn("verify failed: "+msg, append([]any{"account_id", accountID.String()}, args...)...)
}
