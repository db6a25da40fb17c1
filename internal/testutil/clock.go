package testutil

import (
	"sync"
	"time"
)

// ManualClock is a model.Clock that only moves when told to.
//
// Tests use it to make record timestamps, exportedAt values and peer
// liveness checks deterministic.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock fixed at the given unix milliseconds.
func NewManualClock(unixMilli int64) *ManualClock {
	return &ManualClock{now: time.UnixMilli(unixMilli).UTC()}
}

// Now returns the current fixed time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to the given unix milliseconds.
func (c *ManualClock) Set(unixMilli int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(unixMilli).UTC()
}

// Millis returns the current time as unix milliseconds.
func (c *ManualClock) Millis() int64 {
	return c.Now().UnixMilli()
}
