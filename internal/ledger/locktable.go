package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// LockTable maps account IDs to mutexes. Operations that read-modify-write
// balance state on an account hold its lock for the duration; appends do not.
// Locks are process-local and every operation touches at most one account, so
// lock ordering cannot deadlock.
type LockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	mu sync.Mutex
	// refs counts holders plus waiters; the table entry is dropped when it
	// reaches zero so deleted accounts do not pin memory.
	refs int
}

// NewLockTable constructs an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[uuid.UUID]*accountLock)}
}

// Lock blocks until no other caller holds the lock for id.
func (t *LockTable) Lock(id uuid.UUID) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &accountLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()
	l.mu.Lock()
}

// Unlock releases the lock for id.
func (t *LockTable) Unlock(id uuid.UUID) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		t.mu.Unlock()
		panic("locktable: unlock of unheld account lock")
	}
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()
	l.mu.Unlock()
}
