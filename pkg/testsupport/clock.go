package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-resource-sync/cache"
)

// ManualClock is a deterministic cache.Clock for tests. Time only moves when
// Advance is called; due timers and tickers fire on the advancing goroutine,
// earliest first.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*manualTimer
	tickers []*manualTicker
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

type manualTicker struct {
	clock   *ManualClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

// NewManualClock creates a ManualClock starting at a fixed instant.
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run when the clock advances past d from now.
func (c *ManualClock) AfterFunc(d time.Duration, fn func()) cache.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// NewTicker returns a ticker whose channel receives once per elapsed
// interval during Advance. Missed ticks coalesce like time.Ticker's.
func (c *ManualClock) NewTicker(d time.Duration) cache.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk := &manualTicker{clock: c, every: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, tk)
	return tk
}

// Sleep blocks until the clock advances past d or ctx ends.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	c.AfterFunc(d, func() { close(done) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// PendingTimers reports how many timers are armed but not yet fired or
// stopped. Tests wait on it so a sleeper registers before they advance.
func (c *ManualClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// PendingTickers reports how many tickers are live.
func (c *ManualClock) PendingTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tk := range c.tickers {
		if !tk.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer and ticker that
// comes due on the way, in deadline order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		fire := c.popDueLocked(target)
		if fire == nil {
			break
		}
		c.mu.Unlock()
		fire()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// popDueLocked selects the earliest pending event at or before target, marks
// it consumed, moves now to its deadline, and returns the action to run
// outside the lock.
func (c *ManualClock) popDueLocked(target time.Time) func() {
	var (
		bestAt time.Time
		timer  *manualTimer
		ticker *manualTicker
	)
	for _, t := range c.timers {
		if t.stopped || t.fired || t.at.After(target) {
			continue
		}
		if (timer == nil && ticker == nil) || t.at.Before(bestAt) {
			bestAt, timer, ticker = t.at, t, nil
		}
	}
	for _, tk := range c.tickers {
		if tk.stopped || tk.next.After(target) {
			continue
		}
		if (timer == nil && ticker == nil) || tk.next.Before(bestAt) {
			bestAt, timer, ticker = tk.next, nil, tk
		}
	}

	switch {
	case timer != nil:
		timer.fired = true
		c.now = bestAt
		return timer.fn
	case ticker != nil:
		ticker.next = ticker.next.Add(ticker.every)
		c.now = bestAt
		at := bestAt
		ch := ticker.ch
		return func() {
			select {
			case ch <- at:
			default:
			}
		}
	default:
		return nil
	}
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (tk *manualTicker) Chan() <-chan time.Time {
	return tk.ch
}

func (tk *manualTicker) Stop() {
	tk.clock.mu.Lock()
	defer tk.clock.mu.Unlock()
	tk.stopped = true
}
