package model

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time. Tests substitute a fixed or manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Millis returns the clock's current time as unix milliseconds.
func Millis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// Stamper issues strictly increasing unix-millisecond timestamps.
//
// Two writes within the same millisecond get distinct stamps, so ordering
// records by timestamp is total within a process. If the wall clock steps
// backwards the stamper keeps counting up from its last value.
//
// Stamper is safe for concurrent use.
type Stamper struct {
	clock Clock

	mu   sync.Mutex
	last int64
}

// NewStamper creates a stamper reading from clock.
func NewStamper(clock Clock) *Stamper {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Stamper{clock: clock}
}

// Next returns the next timestamp.
func (s *Stamper) Next() int64 {
	now := Millis(s.clock)

	s.mu.Lock()
	defer s.mu.Unlock()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Clock returns the underlying wall clock.
func (s *Stamper) Clock() Clock {
	return s.clock
}
