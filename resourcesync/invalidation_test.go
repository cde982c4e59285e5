package resourcesync

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/pkg/testsupport"
)

func TestRuleset_ResourceTypes(t *testing.T) {
	rules := Ruleset{
		"task":     {"tasks"},
		"agent":    {"agents"},
		"campaign": {"campaigns"},
	}

	want := []string{"agent", "campaign", "task"}
	if diff := cmp.Diff(want, rules.ResourceTypes()); diff != "" {
		t.Errorf("resource types mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_InvalidateMarksMatchingKeysStale(t *testing.T) {
	engine, _ := newTestEngine(t)
	store := engine.Store()
	store.Set(cache.NewKey("agents"), "list")
	store.Set(cache.NewKey("agents/1"), "detail")
	store.Set(cache.NewKeyWithParams("agents", map[string]string{"status": "active"}), "filtered")
	store.Set(cache.NewKey("dashboard/stats"), "stats")
	store.Set(cache.NewKey("campaigns"), "campaigns")

	keys := engine.Invalidate(context.Background(), "agent")

	canonicals := make([]string, 0, len(keys))
	for _, key := range keys {
		canonicals = append(canonicals, key.Canonical())
	}
	want := []string{"agents", "agents/1", "agents::status=active", "dashboard/stats"}
	if diff := cmp.Diff(want, canonicals); diff != "" {
		t.Errorf("invalidated keys mismatch (-want +got):\n%s", diff)
	}

	now := store.Now()
	for _, key := range keys {
		if entry := engine.Get(key); !entry.StaleAt(now) {
			t.Errorf("expected %s stale after invalidation", key.Canonical())
		}
	}
	if entry := engine.Get(cache.NewKey("campaigns")); entry.Invalidated {
		t.Error("campaigns entry does not belong to the agent rules")
	}
}

func TestEngine_InvalidateUnknownResourceIsNoOp(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := cache.NewKey("agents")
	engine.Store().Set(key, "list")

	if keys := engine.Invalidate(context.Background(), "widget"); keys != nil {
		t.Fatalf("expected no keys for an unknown resource type, got %v", keys)
	}
	if entry := engine.Get(key); entry.Invalidated {
		t.Error("expected the entry untouched")
	}
}

func TestEngine_InvalidateSkipsRefetchWithoutSubscribers(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := cache.NewKey("agents")
	engine.Store().Set(key, "v1")

	script := testsupport.NewFetchScript().Return("v2")
	engine.RegisterFetcher(key, script.Fetch)

	engine.Invalidate(context.Background(), "agent")

	// Nobody is watching: the key turns stale but no fetch fires until the
	// next read.
	if script.Calls() != 0 {
		t.Fatalf("expected no refetch for an unwatched key, got %d calls", script.Calls())
	}
	if entry := engine.Get(key); !entry.Invalidated || entry.Data != "v1" {
		t.Fatalf("expected stale v1 retained, got %+v", entry)
	}

	entry, err := engine.EnsureFresh(context.Background(), key)
	if err != nil {
		t.Fatalf("read after invalidation failed: %v", err)
	}
	// Stale data serves immediately; the refetch runs behind it.
	if entry.Data != "v1" {
		t.Fatalf("expected stale v1 served, got %v", entry.Data)
	}
	waitFor(t, "the lazy refetch to land", func() bool {
		return engine.Get(key).Data == "v2"
	})
}

func TestEngine_InvalidateRefetchesSubscribedKeys(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := cache.NewKey("agents")
	engine.Store().Set(key, "v1")

	script := testsupport.NewFetchScript().Return("v2")
	engine.RegisterFetcher(key, script.Fetch)
	unsub := engine.Subscribe(key, func(cache.Entry) {})
	defer unsub()

	engine.Invalidate(context.Background(), "agent")

	waitFor(t, "the subscribed key to refetch", func() bool {
		return engine.Get(key).Data == "v2"
	})
	entry := engine.Get(key)
	if entry.Invalidated {
		t.Error("expected the refetch to clear the invalidation mark")
	}
	if entry.Status != cache.StatusSuccess {
		t.Errorf("expected success status, got %v", entry.Status)
	}
}
