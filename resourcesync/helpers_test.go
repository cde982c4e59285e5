package resourcesync

import (
	"testing"
	"time"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/pkg/testsupport"
)

// testPolicies disables retries so failures surface on the first attempt,
// and marks "tasks" as a polled resource whose freshness window is shorter
// than its poll interval, so every tick refetches. Tests that exercise
// backoff build their own set.
func testPolicies() *cache.PolicySet {
	base := cache.Policy{
		StaleAfter: 30 * time.Second,
		GCAfter:    5 * time.Minute,
		Retry:      cache.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second, Factor: 2},
	}
	tasks := base
	tasks.StaleAfter = 15 * time.Second
	tasks.PollInterval = 30 * time.Second
	return cache.NewPolicySet(base).Set("tasks", tasks)
}

func testRules() Ruleset {
	return Ruleset{
		"agent":    {"agents", "dashboard/stats"},
		"task":     {"tasks", "dashboard/stats"},
		"campaign": {"campaigns", "dashboard/stats"},
	}
}

func newTestEngine(t *testing.T) (*Engine, *testsupport.ManualClock) {
	t.Helper()

	clock := testsupport.NewManualClock()
	engine, err := New(Options{
		Policies: testPolicies(),
		Rules:    testRules(),
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return engine, clock
}

// waitFor polls cond until it holds or the test times out. Flights and
// pollers settle on their own goroutines, so assertions on their outcome
// go through here.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitEntry receives a blocked read's result with a timeout.
func waitEntry(t *testing.T, ch <-chan cache.Entry) cache.Entry {
	t.Helper()

	select {
	case entry := <-ch:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a read to return")
		return cache.Entry{}
	}
}

// flightWaiters reports how many callers are blocked on key's in-flight
// fetch, so tests can release a gate only once everyone has joined.
func flightWaiters(e *Engine, key cache.Key) int {
	fl, ok := e.coord.flights.Load(key.Canonical())
	if !ok {
		return 0
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.waiters
}
