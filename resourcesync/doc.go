// Package resourcesync keeps a client's view of server resources
// continuously correct: fetched on demand, deduplicated, revalidated when
// stale, optimistically patched during writes, rolled back on failure, and
// invalidated by resource relationships.
//
// # Overview
//
// The package exports one facade, Engine, built from four cooperating
// pieces over a cache.Store:
//
//   - Fetch coordination: at most one network fetch per key; concurrent
//     demands join it
//   - Optimistic mutation: cache-local patches with a per-key LIFO undo log
//   - Invalidation graph: a mutation of one resource type marks related key
//     prefixes stale
//   - Polling: live keys refetch on a fixed interval while subscribed
//
// # Reading
//
// Callers register a fetch closure per key once, then read through
// EnsureFresh or the typed Fetch helper:
//
//	key := cache.NewKey("agents").With("status", "active")
//	engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
//		return api.FetchAgents(ctx, "active")
//	})
//
//	agents, err := resourcesync.Fetch[[]AgentSummary](ctx, engine, key)
//
// A fresh entry returns without network. A stale entry returns its data
// immediately while a background flight revalidates. Only a key with no
// data at all blocks the caller. Concurrent EnsureFresh calls for one key
// share a single flight.
//
// Transient fetch failures (network errors, 5xx, 429) retry with
// exponential backoff under the key's policy; 429 honors Retry-After. Other
// client errors fail immediately, and a 401 additionally raises the
// session's unauthorized event, which clears the cache. A cancelled caller
// releases its interest: when nothing else awaits or subscribes, the flight
// aborts, and nothing is written to the cache.
//
// # Writing
//
// Mutations pair a server write with optimistic patches:
//
//	_, err := engine.Mutate(ctx, resourcesync.Mutation{
//		Resource: "agent",
//		Optimistic: []resourcesync.OptimisticPatch{{
//			Key:   detailKey,
//			Apply: resourcesync.PatchValue(func(a Agent) Agent {
//				a.Status = "paused"
//				return a
//			}),
//		}},
//		Write: func(ctx context.Context) (any, error) {
//			return api.UpdateAgentStatus(ctx, id, "paused")
//		},
//	})
//
// Patches apply before the write and subscribers see them instantly. A
// successful write keeps the optimistic data and runs the resource type's
// invalidation rules, refetching subscribed keys. A failed write restores
// the snapshots taken before the patches, strictly LIFO per key, so
// overlapping mutations that both fail land back on the true pre-mutation
// state. Writes are never retried and never cancelled by the caller's ctx.
//
// # Typed views
//
// View binds a key, its fetcher, and the result type into one handle a
// screen can hold:
//
//	dash := resourcesync.NewView(engine, cache.NewKey("dashboard/stats"), fetchStats)
//	stats, err := dash.Get(ctx)
//	stop := dash.Watch(func(s DashboardStats) { render(s) })
//
// Watch skips notifications that carry no value of the view's type, so a
// screen only renders complete data.
//
// # Ordering
//
// Subscribers of one key observe every state change in mutation order. The
// store's generation counter makes interleavings safe: any fetch completion
// that started before a later write, patch, or invalidation is discarded
// rather than applied.
package resourcesync
