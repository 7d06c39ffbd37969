package utils

import (
	"sync"
	"time"
)

// Clock wraps wall-clock time so tests can pin or advance it. The zero value follows time.Now.
// It is safe for concurrent use.
type Clock struct {
	mu    sync.RWMutex
	faked bool
	time  time.Time
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = true
	c.time = t
}

// Advance moves a pinned clock forward; an unpinned clock is pinned at now+d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.faked {
		c.faked = true
		c.time = time.Now()
	}
	c.time = c.time.Add(d)
}

// Sync returns the clock to wall-clock time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = false
}

func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.faked {
		return c.time
	}
	return time.Now()
}

// Unix returns the unix timestamp in seconds.
func (c *Clock) Unix() uint64 {
	return uint64(max(c.Time().Unix(), 0))
}

// Since is Time().Sub(t).
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Time().Sub(t)
}
