package resourcesync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/pkg/testsupport"
	"github.com/goliatone/go-resource-sync/transport"
)

type testAgent struct {
	ID     string
	Name   string
	Status string
}

func pauseAgent(id string) []OptimisticPatch {
	return []OptimisticPatch{
		{
			Key: cache.NewKey("agents"),
			Apply: PatchValue(func(agents []testAgent) []testAgent {
				out := make([]testAgent, len(agents))
				copy(out, agents)
				for i := range out {
					if out[i].ID == id {
						out[i].Status = "paused"
					}
				}
				return out
			}),
		},
		{
			Key: cache.NewKey("agents/" + id),
			Apply: PatchValue(func(a testAgent) testAgent {
				a.Status = "paused"
				return a
			}),
		},
	}
}

// Walks the whole loop of an agent status update: list and detail cached,
// optimistic pause visible in both views before the server confirms, then
// the post-write invalidation refetches the subscribed views.
func TestScenario_AgentStatusUpdateReflectsEverywhere(t *testing.T) {
	engine, _ := newTestEngine(t)
	listKey := cache.NewKey("agents")
	detailKey := cache.NewKey("agents/1")

	listScript := testsupport.NewFetchScript().
		Return([]testAgent{
			{ID: "1", Name: "Trendsetter", Status: "active"},
			{ID: "2", Name: "Analyzer", Status: "idle"},
		}).
		Return([]testAgent{
			{ID: "1", Name: "Trendsetter", Status: "paused"},
			{ID: "2", Name: "Analyzer", Status: "idle"},
		})
	detailScript := testsupport.NewFetchScript().
		Return(testAgent{ID: "1", Name: "Trendsetter", Status: "active"}).
		Return(testAgent{ID: "1", Name: "Trendsetter", Status: "paused"})
	engine.RegisterFetcher(listKey, listScript.Fetch)
	engine.RegisterFetcher(detailKey, detailScript.Fetch)

	if _, err := engine.EnsureFresh(context.Background(), listKey); err != nil {
		t.Fatalf("list read failed: %v", err)
	}
	if _, err := engine.EnsureFresh(context.Background(), detailKey); err != nil {
		t.Fatalf("detail read failed: %v", err)
	}

	unsubList := engine.Subscribe(listKey, func(cache.Entry) {})
	defer unsubList()
	unsubDetail := engine.Subscribe(detailKey, func(cache.Entry) {})
	defer unsubDetail()

	gate := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Mutate(context.Background(), Mutation{
			Resource: "agent",
			Write: func(ctx context.Context) (any, error) {
				<-gate
				return testAgent{ID: "1", Name: "Trendsetter", Status: "paused"}, nil
			},
			Optimistic: pauseAgent("1"),
		})
		errCh <- err
	}()

	// Both views show the pause while the server is still thinking.
	waitFor(t, "the optimistic detail update", func() bool {
		agent, ok := engine.Get(detailKey).Data.(testAgent)
		return ok && agent.Status == "paused"
	})
	waitFor(t, "the optimistic list update", func() bool {
		agents, ok := engine.Get(listKey).Data.([]testAgent)
		return ok && agents[0].Status == "paused" && agents[1].Status == "idle"
	})

	close(gate)
	if err := <-errCh; err != nil {
		t.Fatalf("mutation failed: %v", err)
	}

	// Invalidation refetches both subscribed views; the invalidation mark
	// clearing proves the server copies landed.
	waitFor(t, "the list to reconverge", func() bool {
		entry := engine.Get(listKey)
		return !entry.Invalidated && entry.Status == cache.StatusSuccess
	})
	waitFor(t, "the detail to reconverge", func() bool {
		entry := engine.Get(detailKey)
		return !entry.Invalidated && entry.Status == cache.StatusSuccess
	})
	if listScript.Calls() != 2 || detailScript.Calls() != 2 {
		t.Errorf("expected one refetch per view, got %d and %d", listScript.Calls(), detailScript.Calls())
	}

	want := []testAgent{
		{ID: "1", Name: "Trendsetter", Status: "paused"},
		{ID: "2", Name: "Analyzer", Status: "idle"},
	}
	if diff := cmp.Diff(want, engine.Get(listKey).Data); diff != "" {
		t.Errorf("final list mismatch (-want +got):\n%s", diff)
	}
}

// The same flow with a write that fails: both views roll back to the server
// truth they held before the mutation, and nothing refetches.
func TestScenario_FailedStatusUpdateRollsBackBothViews(t *testing.T) {
	engine, _ := newTestEngine(t)
	listKey := cache.NewKey("agents")
	detailKey := cache.NewKey("agents/1")

	listScript := testsupport.NewFetchScript().Return([]testAgent{
		{ID: "1", Name: "Trendsetter", Status: "active"},
		{ID: "2", Name: "Analyzer", Status: "idle"},
	})
	detailScript := testsupport.NewFetchScript().Return(testAgent{ID: "1", Name: "Trendsetter", Status: "active"})
	engine.RegisterFetcher(listKey, listScript.Fetch)
	engine.RegisterFetcher(detailKey, detailScript.Fetch)

	if _, err := engine.EnsureFresh(context.Background(), listKey); err != nil {
		t.Fatalf("list read failed: %v", err)
	}
	if _, err := engine.EnsureFresh(context.Background(), detailKey); err != nil {
		t.Fatalf("detail read failed: %v", err)
	}

	detailRec := testsupport.NewEntryRecorder()
	unsub := engine.Subscribe(detailKey, detailRec.Callback())
	defer unsub()

	_, err := engine.Mutate(context.Background(), Mutation{
		Resource: "agent",
		Write: func(ctx context.Context) (any, error) {
			return nil, &transport.HTTPError{Status: 500, Message: "internal error"}
		},
		Optimistic: pauseAgent("1"),
	})
	var httpErr *transport.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != 500 {
		t.Fatalf("expected the 500 to surface, got %v", err)
	}

	if agents := engine.Get(listKey).Data.([]testAgent); agents[0].Status != "active" {
		t.Errorf("expected the list rolled back to active, got %+v", agents)
	}
	if agent := engine.Get(detailKey).Data.(testAgent); agent.Status != "active" {
		t.Errorf("expected the detail rolled back to active, got %+v", agent)
	}

	// The subscriber watched the pause appear and then revert.
	var statuses []string
	for _, e := range detailRec.Entries() {
		if agent, ok := e.Data.(testAgent); ok {
			statuses = append(statuses, agent.Status)
		}
	}
	if diff := cmp.Diff([]string{"paused", "active"}, statuses); diff != "" {
		t.Errorf("subscriber sequence mismatch (-want +got):\n%s", diff)
	}

	// A failed write invalidates nothing.
	if listScript.Calls() != 1 || detailScript.Calls() != 1 {
		t.Errorf("expected no refetch after a failed write, got %d and %d", listScript.Calls(), detailScript.Calls())
	}
	if engine.Get(listKey).Invalidated {
		t.Error("expected the list untouched by invalidation")
	}
}
