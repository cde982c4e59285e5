package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-resource-sync/internal/logging"
)

// SubscriberHook observes subscriber count transitions for a key. The
// polling scheduler uses it to start tickers when the first watcher arrives
// and let them wind down after the last one leaves. Hooks run outside the
// entry locks.
type SubscriberHook func(key Key, oldCount, newCount int)

// Options configures a Store.
type Options struct {
	// Policies resolves per-resource cache behavior. Defaults to a set with
	// only DefaultPolicy.
	Policies *PolicySet

	// Clock supplies time for staleness checks and GC timers. Defaults to
	// SystemClock.
	Clock Clock

	// Logger receives debug output. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Store is the process-wide resource cache: a keyed registry of entries
// holding data, fetch status, timestamps, and subscribers. All methods are
// safe for concurrent use.
//
// Every entry mutation synchronously notifies the key's subscribers in
// subscription order, and notifications for one key are delivered in
// mutation order. Subscriber callbacks may read any key and mutate other
// keys, but must not synchronously mutate the key they observe.
type Store struct {
	policies *PolicySet
	clock    Clock
	log      *slog.Logger
	onSubs   SubscriberHook

	slots *xsync.MapOf[string, *slot]
	stats Stats
}

type subscription struct {
	id uint64
	fn func(Entry)
}

// slot is the mutable state behind one cache key. mu guards every field;
// notifyMu serializes subscriber delivery and is always acquired while mu is
// still held, so delivery order matches mutation order.
type slot struct {
	key    Key
	policy Policy

	mu          sync.Mutex
	data        any
	status      Status
	err         error
	fetchedAt   time.Time
	invalidated bool
	generation  uint64
	subs        []subscription
	nextSubID   uint64
	gcTimer     Timer
	orphanedAt  time.Time
	evicted     bool

	notifyMu sync.Mutex
}

// NewStore creates a Store with the given options.
func NewStore(opts Options) *Store {
	policies := opts.Policies
	if policies == nil {
		policies = NewPolicySet(DefaultPolicy())
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Store{
		policies: policies,
		clock:    clock,
		log:      log,
		slots:    xsync.NewMapOf[string, *slot](),
	}
}

// SetSubscriberHook installs the subscriber transition hook. It must be
// called during wiring, before the store is shared between goroutines.
func (s *Store) SetSubscriberHook(hook SubscriberHook) {
	s.onSubs = hook
}

// Policies returns the policy set governing this store.
func (s *Store) Policies() *PolicySet {
	return s.policies
}

// Clock returns the store's time source.
func (s *Store) Clock() Clock {
	return s.clock
}

// Now returns the current instant from the store's clock.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// Get returns a snapshot of the entry for key, creating an Idle entry if
// absent. Creation schedules the orphan GC timer.
func (s *Store) Get(key Key) Entry {
	sl := s.lockSlot(key)
	entry := sl.entryLocked()
	sl.mu.Unlock()
	return entry
}

// Has reports whether an entry currently exists for key, without creating
// one.
func (s *Store) Has(key Key) bool {
	_, ok := s.slots.Load(key.Canonical())
	return ok
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return s.slots.Size()
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// RecordHit and RecordMiss let the fetch coordinator account for lookups it
// resolves from cached data versus lookups that require a fetch.
func (s *Store) RecordHit()  { s.stats.RecordHit() }
func (s *Store) RecordMiss() { s.stats.RecordMiss() }

// Set transitions the entry to Success with the given data, stamps the
// fetch time, clears any error and forced staleness, and notifies
// subscribers. The write bumps the generation, so any in-flight fetch that
// began earlier is discarded on completion.
func (s *Store) Set(key Key, data any) Entry {
	sl := s.lockSlot(key)
	sl.data = data
	sl.status = StatusSuccess
	sl.err = nil
	sl.fetchedAt = s.clock.Now()
	sl.invalidated = false
	sl.generation++
	s.stats.recordSet()
	return s.notifyLocked(sl)
}

// SetError transitions the entry to Error, retaining the last good data so
// callers can render stale data beside the error, and notifies subscribers.
func (s *Store) SetError(key Key, err error) Entry {
	sl := s.lockSlot(key)
	sl.status = StatusError
	sl.err = err
	sl.generation++
	s.stats.recordError()
	return s.notifyLocked(sl)
}

// Patch applies fn to the entry's current data synchronously. Status, error,
// and fetch time are untouched; the generation is bumped so completions of
// fetches that started before the patch never overwrite it.
func (s *Store) Patch(key Key, fn func(current any) any) Entry {
	sl := s.lockSlot(key)
	sl.data = fn(sl.data)
	sl.generation++
	return s.notifyLocked(sl)
}

// MarkStale force-marks an existing entry stale so the next read triggers a
// refetch. The generation is bumped so a fetch that began before the
// invalidation cannot land pre-invalidation data and clear the flag. Absent
// keys are ignored.
func (s *Store) MarkStale(key Key) {
	sl := s.lockExisting(key)
	if sl == nil {
		return
	}
	sl.invalidated = true
	sl.generation++
	s.notifyLocked(sl)
}

// BeginFetch transitions the entry to Fetching, retaining previous data for
// stale-while-revalidate reads, and returns the new generation. The returned
// generation must accompany the matching CompleteFetch or FailFetch call.
func (s *Store) BeginFetch(key Key) uint64 {
	sl := s.lockSlot(key)
	sl.status = StatusFetching
	sl.generation++
	gen := sl.generation
	s.notifyLocked(sl)
	return gen
}

// CompleteFetch applies Set semantics if gen still matches the entry's
// current generation. It reports whether the completion was applied; stale
// completions are counted and dropped.
func (s *Store) CompleteFetch(key Key, gen uint64, data any) bool {
	sl := s.lockSlot(key)
	if sl.generation != gen {
		sl.mu.Unlock()
		s.stats.recordDiscarded()
		s.log.Debug("discarded stale fetch completion",
			"key", key.Canonical(), "fingerprint", key.Fingerprint(), "generation", gen)
		return false
	}
	sl.data = data
	sl.status = StatusSuccess
	sl.err = nil
	sl.fetchedAt = s.clock.Now()
	sl.invalidated = false
	s.stats.recordSet()
	s.notifyLocked(sl)
	return true
}

// FailFetch applies SetError semantics if gen still matches the entry's
// current generation. It reports whether the failure was applied.
func (s *Store) FailFetch(key Key, gen uint64, err error) bool {
	sl := s.lockSlot(key)
	if sl.generation != gen {
		sl.mu.Unlock()
		s.stats.recordDiscarded()
		s.log.Debug("discarded stale fetch failure",
			"key", key.Canonical(), "fingerprint", key.Fingerprint(), "generation", gen)
		return false
	}
	sl.status = StatusError
	sl.err = err
	s.stats.recordError()
	s.notifyLocked(sl)
	return true
}

// Snapshot captures the entry's restorable state for the mutation undo log.
// Absent keys yield a Snapshot with Existed false; restoring it resets the
// entry to Idle.
func (s *Store) Snapshot(key Key) Snapshot {
	sl := s.lockExisting(key)
	if sl == nil {
		return Snapshot{Key: key, Status: StatusIdle}
	}
	snap := Snapshot{
		Key:         sl.key,
		Data:        sl.data,
		Status:      sl.status,
		Err:         sl.err,
		FetchedAt:   sl.fetchedAt,
		Invalidated: sl.invalidated,
		Existed:     true,
	}
	sl.mu.Unlock()
	return snap
}

// Restore writes a snapshot back, bumping the generation and notifying
// subscribers. Used by mutation rollback.
func (s *Store) Restore(snap Snapshot) Entry {
	sl := s.lockSlot(snap.Key)
	sl.data = snap.Data
	sl.status = snap.Status
	sl.err = snap.Err
	sl.fetchedAt = snap.FetchedAt
	sl.invalidated = snap.Invalidated
	sl.generation++
	return s.notifyLocked(sl)
}

// Subscribe registers fn to run on every mutation of key's entry and
// returns the matching unsubscribe function. Unsubscribing is idempotent.
// Dropping the last subscriber schedules the orphan GC timer.
func (s *Store) Subscribe(key Key, fn func(Entry)) func() {
	sl := s.lockSlot(key)
	sl.nextSubID++
	id := sl.nextSubID
	sl.subs = append(sl.subs, subscription{id: id, fn: fn})
	newCount := len(sl.subs)
	if newCount == 1 && sl.gcTimer != nil {
		sl.gcTimer.Stop()
		sl.gcTimer = nil
	}
	sl.mu.Unlock()
	s.subscribersChanged(key, newCount-1, newCount)

	var once sync.Once
	return func() {
		once.Do(func() {
			sl.mu.Lock()
			if sl.evicted {
				sl.mu.Unlock()
				return
			}
			for i, sub := range sl.subs {
				if sub.id == id {
					sl.subs = append(sl.subs[:i], sl.subs[i+1:]...)
					break
				}
			}
			remaining := len(sl.subs)
			if remaining == 0 {
				s.scheduleGCLocked(sl)
			}
			sl.mu.Unlock()
			s.subscribersChanged(key, remaining+1, remaining)
		})
	}
}

// SubscriberCount returns the number of active subscribers for key, zero
// when the entry is absent.
func (s *Store) SubscriberCount(key Key) int {
	sl := s.lockExisting(key)
	if sl == nil {
		return 0
	}
	n := len(sl.subs)
	sl.mu.Unlock()
	return n
}

// EvictIfOrphaned removes the entry if it still has no subscribers and its
// GC deadline has passed. The subscriber count and deadline are re-checked
// under the entry lock, so a resubscribe between timer fire and eviction
// wins the race.
func (s *Store) EvictIfOrphaned(key Key) bool {
	canonical := key.Canonical()
	sl, ok := s.slots.Load(canonical)
	if !ok {
		return false
	}
	sl.mu.Lock()
	if sl.evicted || len(sl.subs) > 0 {
		sl.mu.Unlock()
		return false
	}
	if s.clock.Now().Sub(sl.orphanedAt) < sl.policy.GCAfter {
		sl.mu.Unlock()
		return false
	}
	if cur, ok := s.slots.Load(canonical); !ok || cur != sl {
		sl.mu.Unlock()
		return false
	}
	sl.evicted = true
	if sl.gcTimer != nil {
		sl.gcTimer.Stop()
		sl.gcTimer = nil
	}
	s.slots.Delete(canonical)
	sl.mu.Unlock()

	s.stats.recordEviction()
	s.log.Debug("cache entry evicted", "key", canonical, "fingerprint", key.Fingerprint())
	return true
}

// MatchKeys returns the live keys whose canonical form matches any of the
// given invalidation prefixes, sorted by canonical form.
func (s *Store) MatchKeys(prefixes []string) []Key {
	var keys []Key
	s.slots.Range(func(canonical string, sl *slot) bool {
		if MatchesAnyPrefix(canonical, prefixes) {
			keys = append(keys, sl.key)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Canonical() < keys[j].Canonical()
	})
	return keys
}

// Keys returns all live keys, sorted by canonical form.
func (s *Store) Keys() []Key {
	var keys []Key
	s.slots.Range(func(_ string, sl *slot) bool {
		keys = append(keys, sl.key)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Canonical() < keys[j].Canonical()
	})
	return keys
}

// Clear resets every entry to Idle with no data, bumping generations so any
// in-flight completion is discarded. Subscriptions survive and each key's
// subscribers are notified once. Used on logout and token invalidation.
func (s *Store) Clear() {
	for _, key := range s.Keys() {
		sl := s.lockExisting(key)
		if sl == nil {
			continue
		}
		sl.data = nil
		sl.status = StatusIdle
		sl.err = nil
		sl.fetchedAt = time.Time{}
		sl.invalidated = false
		sl.generation++
		s.notifyLocked(sl)
	}
	s.log.Debug("cache cleared", "entries", s.Len())
}

// lockSlot returns the slot for key locked, creating an Idle entry if
// absent. Callers own sl.mu afterwards.
func (s *Store) lockSlot(key Key) *slot {
	canonical := key.Canonical()
	for {
		sl, loaded := s.slots.LoadOrCompute(canonical, func() *slot {
			return &slot{
				key:        key,
				policy:     s.policies.For(key.Resource()),
				status:     StatusIdle,
				orphanedAt: s.clock.Now(),
			}
		})
		sl.mu.Lock()
		if sl.evicted {
			sl.mu.Unlock()
			continue
		}
		if !loaded && sl.gcTimer == nil && len(sl.subs) == 0 {
			s.scheduleGCLocked(sl)
		}
		return sl
	}
}

// lockExisting returns the slot for key locked, or nil when absent.
func (s *Store) lockExisting(key Key) *slot {
	for {
		sl, ok := s.slots.Load(key.Canonical())
		if !ok {
			return nil
		}
		sl.mu.Lock()
		if !sl.evicted {
			return sl
		}
		sl.mu.Unlock()
	}
}

// notifyLocked snapshots the slot, hands the state lock over to the
// delivery lock, and invokes subscriber callbacks outside sl.mu. Acquiring
// notifyMu before releasing mu keeps delivery in mutation order.
func (s *Store) notifyLocked(sl *slot) Entry {
	entry := sl.entryLocked()
	var subs []subscription
	if len(sl.subs) > 0 {
		subs = make([]subscription, len(sl.subs))
		copy(subs, sl.subs)
	}
	sl.notifyMu.Lock()
	sl.mu.Unlock()
	for _, sub := range subs {
		sub.fn(entry)
	}
	sl.notifyMu.Unlock()
	return entry
}

func (sl *slot) entryLocked() Entry {
	return Entry{
		Key:         sl.key,
		Data:        sl.data,
		Status:      sl.status,
		Err:         sl.err,
		FetchedAt:   sl.fetchedAt,
		StaleAfter:  sl.policy.StaleAfter,
		GCAfter:     sl.policy.GCAfter,
		Subscribers: len(sl.subs),
		Generation:  sl.generation,
		Invalidated: sl.invalidated,
	}
}

// scheduleGCLocked arms the orphan eviction timer. Caller holds sl.mu.
func (s *Store) scheduleGCLocked(sl *slot) {
	if sl.gcTimer != nil {
		sl.gcTimer.Stop()
	}
	sl.orphanedAt = s.clock.Now()
	key := sl.key
	sl.gcTimer = s.clock.AfterFunc(sl.policy.GCAfter, func() {
		s.EvictIfOrphaned(key)
	})
}

func (s *Store) subscribersChanged(key Key, oldCount, newCount int) {
	if s.onSubs != nil {
		s.onSubs(key, oldCount, newCount)
	}
}
