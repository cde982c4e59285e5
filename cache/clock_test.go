package cache

import (
	"context"
	"sync"
	"time"
)

// manualClock is a deterministic Clock for tests in this package. Advance
// moves time forward and fires due timers and tickers on the calling
// goroutine, earliest first.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*manualTimer
	tickers []*manualTicker
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

type manualTicker struct {
	clock   *manualClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk := &manualTicker{clock: c, every: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, tk)
	return tk
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
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

func (c *manualClock) Advance(d time.Duration) {
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
func (c *manualClock) popDueLocked(target time.Time) func() {
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
