package resourcesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/internal/retry"
	"github.com/goliatone/go-resource-sync/transport"
)

// FetchFunc loads a resource from the server. The ctx is the flight's
// cancellation scope: it is cancelled when the fetch is superseded, when the
// last interested caller goes away, or when the engine shuts down.
type FetchFunc func(ctx context.Context) (any, error)

// coordinator owns fetch deduplication. At most one flight runs per key:
// concurrent EnsureFresh calls join the existing flight, while Refetch
// cancels and replaces it. Completions are written through the store's
// generation guard, so a superseded flight can never overwrite newer state.
type coordinator struct {
	store        *cache.Store
	log          *slog.Logger
	unauthorized func()

	flights *xsync.MapOf[string, *flight]
}

// flight is one in-flight fetch for a key. err is written before done is
// closed and read only after it closes.
type flight struct {
	key        cache.Key
	generation uint64
	scope      context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	mu      sync.Mutex
	waiters int

	err error
}

func newCoordinator(store *cache.Store, log *slog.Logger, unauthorized func()) *coordinator {
	return &coordinator{
		store:        store,
		log:          log,
		unauthorized: unauthorized,
		flights:      xsync.NewMapOf[string, *flight](),
	}
}

// EnsureFresh returns the entry for key, fetching if it is absent, stale, or
// errored. A fresh entry returns with no network call. When the entry holds
// any data, even stale, the data returns immediately and revalidation runs
// in the background. Only a data-less entry blocks until the flight settles
// or ctx is cancelled.
func (c *coordinator) EnsureFresh(ctx context.Context, key cache.Key, fetch FetchFunc) (cache.Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return c.store.Get(key), err
		}

		entry := c.store.Get(key)
		if entry.FreshAt(c.store.Now()) {
			c.store.RecordHit()
			return entry, nil
		}
		c.store.RecordMiss()

		fl := c.flightFor(ctx, key, fetch)
		if entry.HasData() {
			return entry, nil
		}

		entry, err := c.await(ctx, fl)
		switch {
		case err != nil && transport.IsCancellation(err) && ctx.Err() == nil:
			// The flight was cancelled under us, by supersession or by an
			// unlucky abandon race. Our caller is still interested, so go
			// again; a superseding flight is joined on the next pass.
			continue
		case err == nil && !entry.HasData() && entry.Status != cache.StatusSuccess:
			// The flight completed but its write was discarded by a newer
			// generation. Whatever superseded it owns the entry now, so
			// rejoin. A genuinely nil fetch result does not land here: its
			// write applies and leaves the entry in StatusSuccess.
			continue
		}
		return entry, err
	}
}

// Refetch forces a new fetch for key, cancelling any flight already running,
// and returns without waiting for the result. Invalidation and forced
// refreshes use it so a post-write refetch can never be satisfied by a
// response that predates the write.
func (c *coordinator) Refetch(ctx context.Context, key cache.Key, fetch FetchFunc) {
	scope, cancel := newFlightScope(ctx)
	fl := &flight{
		key:    key,
		scope:  scope,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var prev *flight
	c.flights.Compute(key.Canonical(), func(cur *flight, loaded bool) (*flight, bool) {
		if loaded {
			prev = cur
		}
		return fl, false
	})
	if prev != nil {
		prev.cancel()
	}
	c.start(fl, fetch)
}

// CancelAll aborts every in-flight fetch. Used on logout and shutdown; the
// store's generation bumps make any racing completion a no-op.
func (c *coordinator) CancelAll() {
	c.flights.Range(func(_ string, fl *flight) bool {
		fl.cancel()
		return true
	})
}

// InFlight reports the number of active flights.
func (c *coordinator) InFlight() int {
	return c.flights.Size()
}

// flightFor joins the existing flight for key or creates and starts one.
func (c *coordinator) flightFor(ctx context.Context, key cache.Key, fetch FetchFunc) *flight {
	var created *flight
	fl, loaded := c.flights.LoadOrCompute(key.Canonical(), func() *flight {
		scope, cancel := newFlightScope(ctx)
		created = &flight{
			key:    key,
			scope:  scope,
			cancel: cancel,
			done:   make(chan struct{}),
		}
		return created
	})
	if !loaded {
		c.start(created, fetch)
	}
	return fl
}

// start stamps the flight's generation synchronously, so any completion of
// an older flight is discarded from this point on, then runs the fetch.
func (c *coordinator) start(fl *flight, fetch FetchFunc) {
	fl.generation = c.store.BeginFetch(fl.key)
	go c.run(fl, fetch)
}

func (c *coordinator) run(fl *flight, fetch FetchFunc) {
	defer fl.cancel()

	policy := c.store.Policies().For(fl.key.Resource()).Retry
	canonical := fl.key.Canonical()

	var data any
	err := retry.Do(fl.scope, retry.Options{
		Policy: retry.Policy{
			MaxAttempts: policy.MaxAttempts,
			BaseDelay:   policy.BaseDelay,
			Factor:      policy.Factor,
		},
		Retryable: transport.Retryable,
		DelayHint: transport.RetryAfterHint,
		Sleep:     c.store.Clock().Sleep,
		OnRetry: func(err error, attempt int, delay time.Duration) {
			c.log.Warn("transient fetch failure, retrying",
				"key", canonical, "attempt", attempt, "delay", delay, "error", err)
		},
	}, func(ctx context.Context) error {
		result, ferr := fetch(ctx)
		if ferr == nil {
			data = result
		}
		return ferr
	})

	switch {
	case err == nil:
		c.store.CompleteFetch(fl.key, fl.generation, data)
	case transport.IsCancellation(err):
		// Superseded or abandoned. The entry belongs to whoever comes next;
		// cancellations are never cached.
		c.log.Debug("fetch cancelled", "key", canonical)
	default:
		if transport.IsUnauthorized(err) && c.unauthorized != nil {
			c.unauthorized()
		}
		c.store.FailFetch(fl.key, fl.generation, err)
		c.log.Debug("fetch failed", "key", canonical, "error", err)
	}

	c.remove(fl)
	fl.settle(err)
}

// remove drops fl from the flight map unless a superseding flight has
// already taken the slot.
func (c *coordinator) remove(fl *flight) {
	c.flights.Compute(fl.key.Canonical(), func(cur *flight, loaded bool) (*flight, bool) {
		if loaded && cur != fl {
			return cur, false
		}
		return nil, true
	})
}

// await blocks until the flight settles or ctx is cancelled. The returned
// entry is re-read from the store so it reflects the settled state.
func (c *coordinator) await(ctx context.Context, fl *flight) (cache.Entry, error) {
	fl.mu.Lock()
	fl.waiters++
	fl.mu.Unlock()

	select {
	case <-ctx.Done():
		c.release(fl)
		return c.store.Get(fl.key), ctx.Err()
	case <-fl.done:
		c.release(fl)
		return c.store.Get(fl.key), fl.err
	}
}

// release drops a waiter reference. When the last waiter leaves an unsettled
// flight for a key nobody subscribes to, the flight is abandoned and its
// transport call aborted.
func (c *coordinator) release(fl *flight) {
	fl.mu.Lock()
	fl.waiters--
	last := fl.waiters == 0
	fl.mu.Unlock()
	if !last {
		return
	}

	select {
	case <-fl.done:
		return
	default:
	}
	if c.store.SubscriberCount(fl.key) == 0 {
		c.log.Debug("abandoning fetch, no waiters or subscribers", "key", fl.key.Canonical())
		fl.cancel()
	}
}

func (fl *flight) settle(err error) {
	fl.err = err
	close(fl.done)
}
