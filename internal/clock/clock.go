// Package clock centralizes "now" and "today" so day rollover can be simulated in tests.
package clock

import (
	"sync"
	"time"
)

// DayLayout is the key format of daily aggregates.
const DayLayout = "2006-01-02"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Today returns the current UTC calendar day of c.
func Today(c Clock) string {
	return c.Now().UTC().Format(DayLayout)
}

type realClock struct{}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// FakeClock is a manually driven Clock safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
