package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a manually driven clock. Ledger timestamps taken from it are
// deterministic, so processing order in tests is set by Advance calls.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out resolve run IDs "run-1", "run-2", ...
type StubIDGenerator struct {
	mu   sync.Mutex
	runs int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs++
	return fmt.Sprintf("run-%d", g.runs)
}
