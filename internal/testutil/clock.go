package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a fresh DeterministicClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe fake wall clock for tests.
//
// Every call to Now advances the clock by one second, so successive edits
// made through memory.Tree get distinct, predictable last_edited_time values.
// The clock can be reset so the same scenario replays with identical stamps.
type DeterministicClock struct {
	mu   sync.Mutex
	tick int64
}

// NewDeterministicClock creates a clock whose first Now returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now returns the current instant and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.tick) * time.Second)
	c.tick++
	return t
}

// Ticks returns how many times Now has been called since the last reset.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = 0
}
