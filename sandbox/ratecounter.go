package sandbox

import (
	"sync"
	"time"
)

// RateCounter is a fixed-window counter. The count never exceeds the
// limit beyond the instant of the triggering call; crossing a window
// boundary atomically resets the count to the post-increment value.
type RateCounter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
}

// RateCounterOption configures a RateCounter.
type RateCounterOption func(*RateCounter)

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) RateCounterOption {
	return func(c *RateCounter) {
		c.now = now
	}
}

// NewRateCounter creates a counter allowing limit events per window.
func NewRateCounter(limit int, window time.Duration, opts ...RateCounterOption) *RateCounter {
	c := &RateCounter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.windowStart = c.now()
	return c
}

// TryIncrement consumes one slot. Returns false if the limit for the
// current window is already reached.
func (c *RateCounter) TryIncrement() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollWindow()
	if c.count >= c.limit {
		return false
	}
	c.count++
	return true
}

// Release gives back a slot consumed by an operation that was aborted
// before completing, such as a request torn down by the wall-clock
// timeout. A release after the window boundary is a no-op; the boundary
// reset already discarded the slot.
func (c *RateCounter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(c.windowStart) >= c.window {
		return
	}
	if c.count > 0 {
		c.count--
	}
}

// Remaining returns the number of slots left in the current window.
func (c *RateCounter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollWindow()
	return c.limit - c.count
}

// Limit returns the configured per-window capacity.
func (c *RateCounter) Limit() int {
	return c.limit
}

// WindowReset returns the time until the current window ends. Zero or
// negative means the next call observes a fresh window.
func (c *RateCounter) WindowReset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window - c.now().Sub(c.windowStart)
}

// rollWindow resets the count when the window boundary has passed.
// Caller must hold c.mu.
func (c *RateCounter) rollWindow() {
	now := c.now()
	if now.Sub(c.windowStart) >= c.window {
		c.windowStart = now
		c.count = 0
	}
}
