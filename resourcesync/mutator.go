package resourcesync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-resource-sync/cache"
)

// PatchFunc transforms an entry's current data into its optimistic shape.
// It must return a new value rather than mutating in place; the previous
// value lives on in rollback snapshots.
type PatchFunc func(current any) any

// OptimisticPatch is one cache-local edit applied before a mutation's write
// lands, so the UI reflects the change immediately.
type OptimisticPatch struct {
	Key   cache.Key
	Apply PatchFunc
}

// Mutation is a server write with optional optimistic patches. Resource
// names the invalidation graph node consulted after a successful write,
// e.g. "agent".
type Mutation struct {
	Resource   string
	Write      func(ctx context.Context) (any, error)
	Optimistic []OptimisticPatch
}

// patchRecord tracks one applied optimistic patch until its mutation
// settles. Records stack per key; rollback pops strictly from the top.
type patchRecord struct {
	mutationID string
	key        cache.Key
	snapshot   cache.Snapshot
	settled    bool
	failed     bool
}

// mutator owns the optimistic undo log. One lock covers snapshotting and
// patching, so when two mutations touch the same key the second's snapshot
// always includes the first's patch, and per-key rollback is strictly LIFO.
type mutator struct {
	store *cache.Store
	log   *slog.Logger

	mu     sync.Mutex
	stacks map[string][]*patchRecord
}

func newMutator(store *cache.Store, log *slog.Logger) *mutator {
	return &mutator{
		store:  store,
		log:    log,
		stacks: make(map[string][]*patchRecord),
	}
}

// apply snapshots and patches each touched entry atomically, returning the
// records that settle must later consume.
func (m *mutator) apply(patches []OptimisticPatch) []*patchRecord {
	if len(patches) == 0 {
		return nil
	}
	mutationID := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]*patchRecord, 0, len(patches))
	for _, patch := range patches {
		rec := &patchRecord{
			mutationID: mutationID,
			key:        patch.Key,
			snapshot:   m.store.Snapshot(patch.Key),
		}
		canonical := patch.Key.Canonical()
		m.stacks[canonical] = append(m.stacks[canonical], rec)
		m.store.Patch(patch.Key, patch.Apply)
		records = append(records, rec)
	}

	m.log.Debug("optimistic patches applied", "mutation", mutationID, "patches", len(records))
	return records
}

// settle marks a mutation's records as succeeded or failed and unwinds every
// touched stack. A record buried under an unsettled one stays put until the
// records above it settle, so the earliest-applied patch is always restored
// last and a full rollback lands on the true pre-mutation state.
func (m *mutator) settle(records []*patchRecord, failed bool) {
	if len(records) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		rec.settled = true
		rec.failed = failed
	}
	for _, rec := range records {
		m.unwindLocked(rec.key.Canonical())
	}

	if failed {
		m.log.Debug("mutation rolled back", "mutation", records[0].mutationID)
	}
}

// unwindLocked pops settled records off a key's stack top-down, restoring
// snapshots for the failed ones. It stops at the first unsettled record.
func (m *mutator) unwindLocked(canonical string) {
	stack := m.stacks[canonical]
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if !top.settled {
			break
		}
		stack = stack[:len(stack)-1]
		if top.failed {
			m.store.Restore(top.snapshot)
		}
	}
	if len(stack) == 0 {
		delete(m.stacks, canonical)
	} else {
		m.stacks[canonical] = stack
	}
}

// pending reports how many unsettled patches currently stack on key.
func (m *mutator) pending(key cache.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stacks[key.Canonical()])
}

// reset drops every pending record without restoring anything. Used when
// the cache itself is cleared; the snapshots describe entries that no
// longer exist.
func (m *mutator) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stacks = make(map[string][]*patchRecord)
}
