package resourcesync

import (
	"testing"
	"time"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/pkg/testsupport"
)

func TestEngine_PollingFollowsSubscriberLifecycle(t *testing.T) {
	engine, clock := newTestEngine(t)
	key := cache.NewKey("tasks")
	script := testsupport.NewFetchScript().Return("t1").Return("t2").Return("t3")
	engine.RegisterFetcher(key, script.Fetch)

	unsub := engine.Subscribe(key, func(cache.Entry) {})
	if n := engine.sched.active(); n != 1 {
		t.Fatalf("expected one poller after the first subscriber, got %d", n)
	}
	waitFor(t, "the poller's ticker", func() bool { return clock.PendingTickers() == 1 })

	clock.Advance(30 * time.Second)
	waitFor(t, "the first poll to land", func() bool { return engine.Get(key).Data == "t1" })

	clock.Advance(30 * time.Second)
	waitFor(t, "the second poll to land", func() bool { return engine.Get(key).Data == "t2" })

	// Once the last subscriber leaves, the next tick tears the poller down
	// without fetching.
	unsub()
	clock.Advance(30 * time.Second)
	waitFor(t, "the poller to stop", func() bool { return engine.sched.active() == 0 })
	waitFor(t, "the ticker to stop", func() bool { return clock.PendingTickers() == 0 })
	if script.Calls() != 2 {
		t.Errorf("expected no fetch on the teardown tick, got %d calls", script.Calls())
	}
}

func TestEngine_SecondSubscriberSharesOnePoller(t *testing.T) {
	engine, clock := newTestEngine(t)
	key := cache.NewKey("tasks")
	script := testsupport.NewFetchScript().Return("t1")
	engine.RegisterFetcher(key, script.Fetch)

	unsub1 := engine.Subscribe(key, func(cache.Entry) {})
	defer unsub1()
	unsub2 := engine.Subscribe(key, func(cache.Entry) {})
	defer unsub2()

	if n := engine.sched.active(); n != 1 {
		t.Fatalf("expected a single shared poller, got %d", n)
	}
	waitFor(t, "the poller's ticker", func() bool { return clock.PendingTickers() == 1 })

	clock.Advance(30 * time.Second)
	waitFor(t, "the poll to land", func() bool { return engine.Get(key).Data == "t1" })
	if script.Calls() != 1 {
		t.Errorf("expected one fetch per tick, got %d", script.Calls())
	}
}

func TestEngine_PollingRestartsOnResubscribe(t *testing.T) {
	engine, clock := newTestEngine(t)
	key := cache.NewKey("tasks")
	script := testsupport.NewFetchScript().Return("t1").Return("t2")
	engine.RegisterFetcher(key, script.Fetch)

	unsub := engine.Subscribe(key, func(cache.Entry) {})
	waitFor(t, "the first poller's ticker", func() bool { return clock.PendingTickers() == 1 })

	unsub()
	clock.Advance(30 * time.Second)
	waitFor(t, "the poller to stop", func() bool { return engine.sched.active() == 0 })

	unsub = engine.Subscribe(key, func(cache.Entry) {})
	defer unsub()
	if n := engine.sched.active(); n != 1 {
		t.Fatalf("expected a fresh poller after resubscribing, got %d", n)
	}
	waitFor(t, "the new poller's ticker", func() bool { return clock.PendingTickers() == 1 })

	clock.Advance(30 * time.Second)
	waitFor(t, "polling to resume", func() bool { return engine.Get(key).Data == "t1" })
}

func TestEngine_UnpolledResourceGetsNoPoller(t *testing.T) {
	engine, clock := newTestEngine(t)
	key := cache.NewKey("agents")

	unsub := engine.Subscribe(key, func(cache.Entry) {})
	defer unsub()

	if n := engine.sched.active(); n != 0 {
		t.Fatalf("expected no poller for an unpolled resource, got %d", n)
	}
	if n := clock.PendingTickers(); n != 0 {
		t.Errorf("expected no ticker, got %d", n)
	}
}

func TestEngine_CloseStopsPolling(t *testing.T) {
	engine, clock := newTestEngine(t)
	key := cache.NewKey("tasks")
	script := testsupport.NewFetchScript().Return("t1")
	engine.RegisterFetcher(key, script.Fetch)

	unsub := engine.Subscribe(key, func(cache.Entry) {})
	defer unsub()
	waitFor(t, "the poller's ticker", func() bool { return clock.PendingTickers() == 1 })

	if err := engine.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Close waits for the poll goroutines, so the teardown is observable
	// immediately.
	if n := engine.sched.active(); n != 0 {
		t.Errorf("expected no pollers after close, got %d", n)
	}
	if n := clock.PendingTickers(); n != 0 {
		t.Errorf("expected no live tickers after close, got %d", n)
	}
}
