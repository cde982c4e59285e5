// Package cache provides the keyed resource store that backs the sync
// engine: entries with fetch status, staleness tracking, generation
// counters, and synchronous subscriber notification.
//
// # Overview
//
// This package exports four building blocks:
//
//   - Key: A canonical cache key built from a resource name and optional
//     parameters
//   - Policy / PolicySet: Per-resource staleness, garbage collection, and
//     retry configuration
//   - Store: The concurrent entry registry with subscriptions and
//     generation-guarded fetch completion
//   - Clock: An injectable time source so staleness and GC are testable
//
// The store holds plain entry state and ordering guarantees; fetch
// coordination, optimistic mutation, and invalidation build on top of it in
// the resourcesync package.
//
// # Keys
//
// A Key is a resource name plus named parameters. Parameters are sorted into
// a canonical string form so logically equal keys always collide:
//
//	list := cache.NewKey("agents").With("status", "active")
//	detail := cache.NewKey("agents/" + id)
//
//	list.Canonical()   // "agents::status=active"
//	detail.Canonical() // "agents/42"
//
// Keys are immutable values; With copies. Invalidation matches keys by
// canonical prefix, where "agents" covers the list and every parameter
// variant, and "agents/*" covers detail keys.
//
// # Entry Lifecycle
//
// Entries move between four statuses: Idle (created, never fetched),
// Fetching, Success, and Error. Set, SetError, Patch, BeginFetch, MarkStale,
// and Restore each bump the entry's generation counter. CompleteFetch and
// FailFetch carry the generation returned by BeginFetch and are discarded
// when it no longer matches, so a fetch that started before a later write
// can never overwrite that write:
//
//	gen := store.BeginFetch(key)
//	data, err := fetch(ctx)
//	if err != nil {
//		store.FailFetch(key, gen, err)
//	} else {
//		store.CompleteFetch(key, gen, data)
//	}
//
// SetError and FailFetch retain the last good data so callers can render
// stale content alongside the error.
//
// # Subscriptions and Notification
//
// Subscribe registers a callback invoked synchronously on every mutation of
// the key's entry. Callbacks for one key run in subscription order, and
// successive mutations are delivered in mutation order. A callback may read
// any key and mutate other keys, but must not synchronously mutate the key
// it observes.
//
// Entries with no subscribers are garbage collected after the policy's
// GCAfter window. Resubscribing before the window elapses cancels the
// eviction, and the count is re-checked under the entry lock when the timer
// fires, so a late resubscribe always wins.
//
// # Policies
//
// A PolicySet maps resource names to staleness and GC windows, with wildcard
// stems for detail keys and a fallback for everything else:
//
//	policies := cache.NewPolicySet(cache.DefaultPolicy()).
//		Set("agents", cache.Policy{StaleAfter: time.Minute, GCAfter: 5 * time.Minute}).
//		Set("agents/*", cache.Policy{StaleAfter: time.Minute, GCAfter: 5 * time.Minute})
//
// # See Also
//
// For fetch deduplication, optimistic mutation, and invalidation rules built
// on this store, see the resourcesync package. For the policy values wired
// for each resource, see the platform package.
package cache
