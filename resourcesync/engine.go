package resourcesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/internal/logging"
	"github.com/goliatone/go-resource-sync/session"
	"github.com/goliatone/go-resource-sync/transport"
)

var (
	// ErrNoFetcher is returned when an operation needs a fetcher for a key
	// and none was registered.
	ErrNoFetcher = errors.New("resourcesync: no fetcher registered for key")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("resourcesync: engine is closed")
)

// Options configures an Engine.
type Options struct {
	// Policies resolves per-resource staleness, GC, polling, and retry
	// behavior. Defaults to a set holding only cache.DefaultPolicy.
	Policies *cache.PolicySet

	// Rules is the invalidation graph: resource type to key prefixes.
	Rules Ruleset

	// Session, when provided, is watched for logout and unauthorized events
	// (the cache clears on both), and receives NotifyUnauthorized when a
	// fetch or write comes back 401.
	Session *session.Broadcaster

	// Clock supplies time for staleness, GC, retry backoff, and polling.
	// Defaults to the system clock.
	Clock cache.Clock

	// Logger receives engine logging. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Engine is the resource synchronization facade: an injected instance that
// owns one cache store, one fetch coordinator, one optimistic mutator, the
// invalidation graph, and the polling scheduler. Every method is safe for
// concurrent use.
type Engine struct {
	store   *cache.Store
	session *session.Broadcaster
	log     *slog.Logger

	coord *coordinator
	mut   *mutator
	inv   *invalidator
	sched *scheduler

	fetchers *xsync.MapOf[string, FetchFunc]
	unsubs   []func()
	closed   atomic.Bool
}

// New builds an Engine. Policies are validated up front so a malformed
// configuration fails at wiring time rather than on first use.
func New(opts Options) (*Engine, error) {
	if opts.Policies != nil {
		if err := opts.Policies.Validate(); err != nil {
			return nil, fmt.Errorf("resourcesync: %w", err)
		}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	store := cache.NewStore(cache.Options{
		Policies: opts.Policies,
		Clock:    opts.Clock,
		Logger:   log,
	})

	e := &Engine{
		store:    store,
		session:  opts.Session,
		log:      log,
		fetchers: xsync.NewMapOf[string, FetchFunc](),
	}
	e.coord = newCoordinator(store, log, e.handleUnauthorized)
	e.mut = newMutator(store, log)
	e.inv = newInvalidator(store, e.coord, opts.Rules, e.Fetcher, log)
	e.sched = newScheduler(store, e.coord, e.Fetcher, log)
	store.SetSubscriberHook(e.sched.subscribersChanged)

	if opts.Session != nil {
		e.unsubs = append(e.unsubs,
			opts.Session.OnLogout(e.Clear),
			opts.Session.OnUnauthorized(e.Clear),
		)
	}
	return e, nil
}

// RegisterFetcher binds the fetch closure for a key. Subscriptions, polling
// ticks, and invalidation refetches all reuse it. Re-registering a key
// replaces the closure.
func (e *Engine) RegisterFetcher(key cache.Key, fetch FetchFunc) {
	e.fetchers.Store(key.Canonical(), fetch)
}

// Fetcher returns the fetch closure registered for key.
func (e *Engine) Fetcher(key cache.Key) (FetchFunc, bool) {
	return e.fetchers.Load(key.Canonical())
}

// Subscribe registers fn to run synchronously on every change to key's
// entry and returns the unsubscribe function. The first subscriber of a
// live key starts its poller. Callbacks must not synchronously mutate the
// observed key or invoke Mutate; schedule that work instead.
func (e *Engine) Subscribe(key cache.Key, fn func(cache.Entry)) func() {
	return e.store.Subscribe(key, fn)
}

// Get returns the current entry snapshot without triggering any fetch.
func (e *Engine) Get(key cache.Key) cache.Entry {
	return e.store.Get(key)
}

// EnsureFresh returns key's data, fetching through the registered fetcher
// when the entry is absent, stale, or errored. Stale data returns
// immediately while revalidation proceeds in the background; only a
// data-less entry blocks.
func (e *Engine) EnsureFresh(ctx context.Context, key cache.Key) (cache.Entry, error) {
	if e.closed.Load() {
		return e.store.Get(key), ErrClosed
	}
	fetch, ok := e.Fetcher(key)
	if !ok {
		return e.store.Get(key), fmt.Errorf("%w: %s", ErrNoFetcher, key.Canonical())
	}
	return e.coord.EnsureFresh(ctx, key, fetch)
}

// Refetch forces a fresh fetch for key, superseding any in-flight one, and
// returns without waiting for the result.
func (e *Engine) Refetch(ctx context.Context, key cache.Key) error {
	if e.closed.Load() {
		return ErrClosed
	}
	fetch, ok := e.Fetcher(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFetcher, key.Canonical())
	}
	e.coord.Refetch(ctx, key, fetch)
	return nil
}

// Mutate runs a server write with optimistic cache patches. Patches apply
// before the write; on success they are discarded and the resource type's
// invalidation rules run; on failure every patch rolls back LIFO and the
// error returns as-is. Writes are never retried and never cancelled by ctx.
func (e *Engine) Mutate(ctx context.Context, m Mutation) (any, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if m.Write == nil {
		return nil, fmt.Errorf("resourcesync: mutation for %q has no write", m.Resource)
	}

	records := e.mut.apply(m.Optimistic)
	result, err := m.Write(writeScope(ctx))
	if err != nil {
		e.mut.settle(records, true)
		if transport.IsUnauthorized(err) {
			e.handleUnauthorized()
		}
		e.log.Debug("mutation failed", "resource", m.Resource, "error", err)
		return nil, err
	}

	e.mut.settle(records, false)
	if m.Resource != "" {
		e.Invalidate(ctx, m.Resource)
	}
	return result, nil
}

// Invalidate marks every live key matching resourceType's rules stale and
// refetches the subscribed ones. It returns the touched keys.
func (e *Engine) Invalidate(ctx context.Context, resourceType string) []cache.Key {
	if e.closed.Load() {
		return nil
	}
	return e.inv.Invalidate(ctx, resourceType)
}

// Clear aborts all in-flight fetches, drops pending optimistic records, and
// resets every entry to empty Idle while keeping subscriptions alive. Runs
// automatically on logout and unauthorized events.
func (e *Engine) Clear() {
	e.coord.CancelAll()
	e.mut.reset()
	e.store.Clear()
}

// CacheStats returns a snapshot of the cache counters.
func (e *Engine) CacheStats() cache.StatsSnapshot {
	return e.store.Stats()
}

// Store exposes the underlying cache store for wiring and diagnostics.
func (e *Engine) Store() *cache.Store {
	return e.store
}

// Close shuts the engine down: session listeners detach, pollers stop, and
// in-flight fetches abort. Subsequent operations return ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.sched.shutdown()
	e.coord.CancelAll()
	e.log.Debug("engine closed")
	return nil
}

// handleUnauthorized reacts to a 401: with a session wired the broadcaster
// fans out (and our own listener clears the cache); without one the cache
// clears directly.
func (e *Engine) handleUnauthorized() {
	if e.session != nil {
		e.session.NotifyUnauthorized()
		return
	}
	e.Clear()
}
