package resourcesync

import (
	"context"
	"log/slog"
	"sort"

	"github.com/goliatone/go-resource-sync/cache"
)

// Ruleset maps a resource type to the canonical key prefixes its mutations
// invalidate. Prefixes match boundary-aware: "agents" covers the agents list
// and all its parameter variants plus "agents/..." detail keys, "agents/*"
// covers detail keys only, and anything else must match exactly.
type Ruleset map[string][]string

// ResourceTypes returns the rule names, sorted.
func (r Ruleset) ResourceTypes() []string {
	types := make([]string, 0, len(r))
	for name := range r {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// invalidator applies the invalidation graph: on a mutation of a resource
// type, every live key matching the type's prefixes is marked stale, and the
// subscribed ones are refetched immediately. Unsubscribed keys stay lazily
// stale until something reads them again.
type invalidator struct {
	store    *cache.Store
	coord    *coordinator
	rules    Ruleset
	fetchers func(cache.Key) (FetchFunc, bool)
	log      *slog.Logger
}

func newInvalidator(store *cache.Store, coord *coordinator, rules Ruleset, fetchers func(cache.Key) (FetchFunc, bool), log *slog.Logger) *invalidator {
	return &invalidator{
		store:    store,
		coord:    coord,
		rules:    rules,
		fetchers: fetchers,
		log:      log,
	}
}

// Invalidate resolves resourceType's prefixes and marks every matching live
// key stale. Subscribed keys with a registered fetcher are refetched through
// the supersession path, so a response predating the write can never satisfy
// the refetch. The touched keys are returned sorted.
func (inv *invalidator) Invalidate(ctx context.Context, resourceType string) []cache.Key {
	prefixes, ok := inv.rules[resourceType]
	if !ok {
		inv.log.Warn("no invalidation rule for resource type", "resource", resourceType)
		return nil
	}

	keys := inv.store.MatchKeys(prefixes)
	for _, key := range keys {
		inv.store.MarkStale(key)
		if inv.store.SubscriberCount(key) == 0 {
			continue
		}
		fetch, registered := inv.fetchers(key)
		if !registered {
			inv.log.Warn("subscribed key has no fetcher for invalidation refetch", "key", key.Canonical())
			continue
		}
		inv.coord.Refetch(ctx, key, fetch)
	}

	inv.log.Debug("invalidated resource type", "resource", resourceType, "keys", len(keys))
	return keys
}
