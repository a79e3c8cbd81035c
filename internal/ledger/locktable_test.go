package ledger

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLockTableMutualExclusion(t *testing.T) {
	lt := NewLockTable()
	id := uuid.New()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lt.Lock(id)
			defer lt.Unlock(id)
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestLockTableIndependentAccounts(t *testing.T) {
	lt := NewLockTable()
	a, b := uuid.New(), uuid.New()

	lt.Lock(a)
	// A second account must not block behind the first.
	done := make(chan struct{})
	go func() {
		lt.Lock(b)
		lt.Unlock(b)
		close(done)
	}()
	<-done
	lt.Unlock(a)
}

func TestLockTableDropsIdleEntries(t *testing.T) {
	lt := NewLockTable()
	id := uuid.New()

	lt.Lock(id)
	lt.Unlock(id)

	lt.mu.Lock()
	defer lt.mu.Unlock()
	require.Empty(t, lt.locks)
}

func TestLockTableUnlockUnheldPanics(t *testing.T) {
	lt := NewLockTable()
	require.Panics(t, func() { lt.Unlock(uuid.New()) })
}
