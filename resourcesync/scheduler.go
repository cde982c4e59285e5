package resourcesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-resource-sync/cache"
)

// scheduler drives periodic background refreshes for live keys, the ones
// whose policy sets PollInterval. A key gets exactly one ticker no matter
// how many subscribers it has: the first subscriber starts it and the first
// tick that observes zero subscribers stops it.
type scheduler struct {
	store    *cache.Store
	coord    *coordinator
	fetchers func(cache.Key) (FetchFunc, bool)
	clock    cache.Clock
	log      *slog.Logger

	mu      sync.Mutex
	pollers map[string]struct{}
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newScheduler(store *cache.Store, coord *coordinator, fetchers func(cache.Key) (FetchFunc, bool), log *slog.Logger) *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &scheduler{
		store:    store,
		coord:    coord,
		fetchers: fetchers,
		clock:    store.Clock(),
		log:      log,
		pollers:  make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// subscribersChanged is the store's subscriber hook. Only the first-watcher
// edge matters here; teardown is tick-driven.
func (s *scheduler) subscribersChanged(key cache.Key, oldCount, newCount int) {
	if oldCount == 0 && newCount == 1 {
		s.maybeStart(key)
	}
}

func (s *scheduler) maybeStart(key cache.Key) {
	policy := s.store.Policies().For(key.Resource())
	if policy.PollInterval <= 0 {
		return
	}
	canonical := key.Canonical()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, running := s.pollers[canonical]; running {
		s.mu.Unlock()
		return
	}
	s.pollers[canonical] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("polling started", "key", canonical, "interval", policy.PollInterval)
	s.wg.Add(1)
	go s.poll(key, policy.PollInterval)
}

func (s *scheduler) poll(key cache.Key, interval time.Duration) {
	defer s.wg.Done()
	canonical := key.Canonical()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.remove(canonical)
			return
		case <-ticker.Chan():
			if s.store.SubscriberCount(key) == 0 {
				s.log.Debug("polling stopped", "key", canonical)
				s.remove(canonical)
				// A subscriber arriving during teardown must not lose its
				// poller to this shutdown race.
				if s.store.SubscriberCount(key) > 0 {
					s.maybeStart(key)
				}
				return
			}
			fetch, ok := s.fetchers(key)
			if !ok {
				s.log.Warn("live key has no fetcher, polling stopped", "key", canonical)
				s.remove(canonical)
				return
			}
			s.coord.EnsureFresh(s.ctx, key, fetch)
		}
	}
}

func (s *scheduler) remove(canonical string) {
	s.mu.Lock()
	delete(s.pollers, canonical)
	s.mu.Unlock()
}

// active reports how many keys currently have a running poller.
func (s *scheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pollers)
}

// shutdown stops every poller, unblocks any mid-poll fetch wait, and waits
// for the goroutines to exit.
func (s *scheduler) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
