package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowStrictlyIncreasing(t *testing.T) {
	c := NewClock()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		next := c.Now()
		require.True(t, next.After(prev), "instant %d not after predecessor", i)
		prev = next
	}
}

func TestClockNowIsUTCMicroseconds(t *testing.T) {
	c := NewClock()
	now := c.Now()
	require.Equal(t, time.UTC, now.Location())
	require.Equal(t, now.Truncate(time.Microsecond), now)
}

func TestClockAfterPostdatesArgument(t *testing.T) {
	c := NewClock()
	future := time.Now().UTC().Add(time.Hour)
	got := c.After(future)
	require.True(t, got.After(future))

	// Subsequent instants stay ahead of the jump.
	require.True(t, c.Now().After(got))
}

func TestClockConcurrentUse(t *testing.T) {
	c := NewClock()
	const goroutines = 8
	const perGoroutine = 500

	results := make([][]time.Time, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := make([]time.Time, perGoroutine)
			for i := range out {
				out[i] = c.Now()
			}
			results[g] = out
		}()
	}
	wg.Wait()

	seen := make(map[time.Time]bool, goroutines*perGoroutine)
	for _, out := range results {
		for _, ts := range out {
			require.False(t, seen[ts], "duplicate instant %s", ts)
			seen[ts] = true
		}
	}
}
