package memory

// Package memory provides a simple in-memory Store used for development and
// tests. It keeps code paths easy to follow while the sqlite and postgres
// backends carry the same contract against a real database.

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// Store is an in-memory implementation of storage.Store guarded by an RWMutex.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]ledger.Account
	byName   map[string]uuid.UUID
	entries  map[uuid.UUID]ledger.Entry
	apiKeys  map[uuid.UUID]ledger.APIKey
	byValue  map[string]uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]ledger.Account),
		byName:   make(map[string]uuid.UUID),
		entries:  make(map[uuid.UUID]ledger.Entry),
		apiKeys:  make(map[uuid.UUID]ledger.APIKey),
		byValue:  make(map[string]uuid.UUID),
	}
}

// --- Accounts ---

func (s *Store) InsertAccount(_ context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[a.Name]; exists {
		return errs.ErrConflict
	}
	s.accounts[a.ID] = a
	s.byName[a.Name] = a.ID
	return nil
}

func (s *Store) AccountByID(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountByName(_ context.Context, name string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) ListAccounts(_ context.Context, f storage.AccountFilter) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if f.NameContains != "" && !strings.Contains(a.Name, f.NameContains) {
			continue
		}
		if f.CreatedFrom != nil && a.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && a.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, a)
	}
	desc := f.Ordering == enumerate.CreatedDescending || f.Ordering == enumerate.AmountDescending
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

// --- Entries ---

func (s *Store) InsertEntry(_ context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *Store) InsertEntries(_ context.Context, entries []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Store) EntryByID(_ context.Context, accountID, entryID uuid.UUID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID]
	if !ok || e.AccountID != accountID {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, nil
}

func (s *Store) EntriesByIDs(_ context.Context, ids []uuid.UUID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, accountID uuid.UUID, f storage.EntryFilter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0)
	for _, e := range s.entries {
		if e.AccountID != accountID || !f.Matches(e) {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out, f.Ordering)
	return out, nil
}

func (s *Store) DeleteEntry(_ context.Context, accountID, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || e.AccountID != accountID {
		return errs.ErrNotFound
	}
	delete(s.entries, entryID)
	return nil
}

func (s *Store) LatestBalanceEntry(_ context.Context, accountID uuid.UUID) (ledger.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest ledger.Entry
	found := false
	for _, e := range s.entries {
		if e.AccountID != accountID || e.Kind != ledger.EntryKindBalance {
			continue
		}
		if !found || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) BalanceEntryAsOf(_ context.Context, accountID uuid.UUID, t time.Time) (ledger.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best ledger.Entry
	found := false
	for _, e := range s.entries {
		if e.AccountID != accountID || e.Kind != ledger.EntryKindBalance || e.CreatedAt.After(t) {
			continue
		}
		if !found || e.CreatedAt.After(best.CreatedAt) {
			best = e
			found = true
		}
	}
	return best, found, nil
}

// --- API keys ---

func (s *Store) InsertAPIKey(_ context.Context, k ledger.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byValue[k.Key]; exists {
		return errs.ErrConflict
	}
	s.apiKeys[k.ID] = k
	s.byValue[k.Key] = k.ID
	return nil
}

func (s *Store) APIKeyByValue(_ context.Context, key string) (ledger.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byValue[key]
	if !ok {
		return ledger.APIKey{}, errs.ErrNotFound
	}
	return s.apiKeys[id], nil
}

func (s *Store) ListAPIKeys(_ context.Context) ([]ledger.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.APIKey, 0, len(s.apiKeys))
	for _, k := range s.apiKeys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) DeleteAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(s.apiKeys, id)
	delete(s.byValue, k.Key)
	return nil
}

// --- Transactions ---

// op is one buffered mutation; a Tx applies its ops under the store write lock
// on Commit so partial effects are never visible.
type op func(s *Store)

// Tx buffers writes until Commit.
type Tx struct {
	st   *Store
	ops  []op
	done bool
}

func (s *Store) BeginTx(_ context.Context) (storage.Tx, error) {
	return &Tx{st: s}, nil
}

func (t *Tx) InsertEntry(_ context.Context, e ledger.Entry) error {
	t.ops = append(t.ops, func(s *Store) { s.entries[e.ID] = e })
	return nil
}

func (t *Tx) MarkEntriesCommitted(_ context.Context, ids []uuid.UUID, balanceID uuid.UUID, at time.Time) error {
	committedAt := at
	t.ops = append(t.ops, func(s *Store) {
		for _, id := range ids {
			e, ok := s.entries[id]
			if !ok {
				continue
			}
			e.Committed = true
			by := balanceID
			e.CommittedBy = &by
			ca := committedAt
			e.CommittedAt = &ca
			s.entries[id] = e
		}
	})
	return nil
}

func (t *Tx) DeleteEntriesByAccount(_ context.Context, accountID uuid.UUID) error {
	t.ops = append(t.ops, func(s *Store) {
		for id, e := range s.entries {
			if e.AccountID == accountID {
				delete(s.entries, id)
			}
		}
	})
	return nil
}

func (t *Tx) DeleteAccount(_ context.Context, accountID uuid.UUID) error {
	t.ops = append(t.ops, func(s *Store) {
		if a, ok := s.accounts[accountID]; ok {
			delete(s.byName, a.Name)
			delete(s.accounts, accountID)
		}
	})
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errs.ErrStorage
	}
	if err := ctx.Err(); err != nil {
		t.done = true
		return errs.ErrCanceled
	}
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	for _, apply := range t.ops {
		apply(t.st)
	}
	t.done = true
	return nil
}

func (t *Tx) Rollback(_ context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}

// --- Misc ---

func (s *Store) Ready(_ context.Context) error { return nil }

func (s *Store) Close() {}

// sortEntries orders by the requested primary key with id as tiebreaker so
// continuation-token paging is stable under duplicate timestamps or amounts.
func sortEntries(list []ledger.Entry, ordering enumerate.Ordering) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch ordering {
		case enumerate.CreatedDescending:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case enumerate.AmountAscending:
			if c := a.Amount.Cmp(b.Amount); c != 0 {
				return c < 0
			}
		case enumerate.AmountDescending:
			if c := a.Amount.Cmp(b.Amount); c != 0 {
				return c > 0
			}
		default: // created ascending
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID.String() < b.ID.String()
	})
}
