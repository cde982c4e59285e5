package resourcesync

import (
	"context"

	"github.com/goliatone/go-resource-sync/cache"
)

// View binds one cache key, its fetcher, and a result type into a handle a
// screen can hold. It is a thin typed layer over the engine: reads go
// through the same deduplication, staleness, and polling machinery, and
// every View of a key shares that key's single cache entry.
type View[T any] struct {
	engine *Engine
	key    cache.Key
}

// NewView registers fetch as key's fetcher and returns the typed handle.
// A nil fetch keeps whatever fetcher is already registered, so a View can
// wrap a key another component owns.
func NewView[T any](e *Engine, key cache.Key, fetch func(context.Context) (T, error)) *View[T] {
	if fetch != nil {
		e.RegisterFetcher(key, func(ctx context.Context) (any, error) {
			value, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			return value, nil
		})
	}
	return &View[T]{engine: e, key: key}
}

// Key returns the cache key the view reads.
func (v *View[T]) Key() cache.Key {
	return v.key
}

// Get returns the view's value, fetching when the entry is absent, stale,
// or errored. Stale data returns immediately while revalidation proceeds
// in the background.
func (v *View[T]) Get(ctx context.Context) (T, error) {
	return Fetch[T](ctx, v.engine, v.key)
}

// Peek returns the cached value without triggering any fetch. ok is false
// when the entry is empty or holds a different type.
func (v *View[T]) Peek() (T, bool) {
	value, ok := v.engine.Get(v.key).Data.(T)
	return value, ok
}

// Refresh forces a fresh fetch, superseding any in-flight one, and returns
// without waiting for the result. Subscribers observe the outcome.
func (v *View[T]) Refresh(ctx context.Context) error {
	return v.engine.Refetch(ctx, v.key)
}

// Watch runs fn with the view's value on every change that carries one,
// skipping intermediate states with no data of the view's type. The first
// subscriber of a polled key starts its poller. The returned stop function
// detaches the watch.
func (v *View[T]) Watch(fn func(T)) func() {
	return v.engine.Subscribe(v.key, func(entry cache.Entry) {
		if value, ok := entry.Data.(T); ok {
			fn(value)
		}
	})
}
