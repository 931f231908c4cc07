package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies monotonically non-decreasing timestamps in nanoseconds.
// The epoch is implementation-defined; only elapsed time between two
// readings of the same clock is meaningful.
type Clock interface {
	Now() int64
}

// Sleeper is implemented by clocks that control the passage of their own
// time. Consumers that need to suspend probe for it with a type assertion
// and fall back to real sleeping when the clock does not provide it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SystemClock reads the process monotonic clock. Measuring against a fixed
// base keeps readings immune to wall-clock adjustments (NTP, manual changes),
// which time.Now().UnixNano() alone does not guarantee.
type SystemClock struct {
	base time.Time
}

// NewSystemClock creates a production clock. The returned clock is stateless
// after construction and safe to share across goroutines.
func NewSystemClock() *SystemClock {
	return &SystemClock{base: time.Now()}
}

func (c *SystemClock) Now() int64 {
	return time.Since(c.base).Nanoseconds()
}

// ManualClock is a deterministic clock for tests. Time only moves when the
// test advances it, so refill behavior can be exercised without real sleeps.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a manual clock starting at the given nanosecond
// timestamp.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
// Panics on negative durations to enforce monotonicity.
func (c *ManualClock) Advance(d time.Duration) {
	if d < 0 {
		panic(fmt.Sprintf("clock: cannot advance by negative duration %v", d))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d.Nanoseconds()
}

// Set moves the clock to an absolute nanosecond timestamp.
// Panics if the target is in the past relative to the current reading.
func (c *ManualClock) Set(nanos int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nanos < c.now {
		panic(fmt.Sprintf("clock: cannot move backwards from %d to %d", c.now, nanos))
	}
	c.now = nanos
}

// Sleep advances the clock instead of blocking, satisfying Sleeper so that
// code waiting on this clock completes immediately in tests.
func (c *ManualClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.Advance(d)
}
