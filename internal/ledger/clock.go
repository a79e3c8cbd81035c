package ledger

import (
	"sync"
	"time"
)

// Clock issues strictly increasing UTC instants at microsecond granularity.
// A single Clock is shared by all writers so CreatedAt is monotonic within a
// process, which covers the per-account monotonicity the entry model requires.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

// NewClock returns a Clock starting at the current time.
func NewClock() *Clock { return &Clock{} }

// Now returns a UTC instant strictly greater than any instant previously
// returned by this Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}

// After returns an instant strictly greater than both t and every instant
// previously returned. Commit uses it so the new balance entry postdates all
// entries it attributes.
func (c *Clock) After(t time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	if !now.After(t) {
		now = t.Add(time.Microsecond)
	}
	c.last = now
	return now
}
