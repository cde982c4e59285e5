package platform

import (
	"time"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/resourcesync"
)

// DefaultPolicies tunes cache lifetimes per resource family. Agent and
// campaign data changes slowly, so it stays fresh for minutes; tasks and
// dashboard counters move constantly and are polled while anything
// subscribes to them.
func DefaultPolicies() *cache.PolicySet {
	base := cache.DefaultPolicy()

	agents := base
	agents.StaleAfter = 60 * time.Second

	tasks := base
	tasks.StaleAfter = 15 * time.Second
	tasks.GCAfter = 2 * time.Minute

	taskList := tasks
	taskList.PollInterval = 45 * time.Second

	campaigns := base
	campaigns.StaleAfter = 120 * time.Second

	dashboard := base
	dashboard.StaleAfter = 10 * time.Second
	dashboard.GCAfter = time.Minute
	dashboard.PollInterval = 30 * time.Second

	return cache.NewPolicySet(base).
		Set("agents", agents).
		Set("agents/*", agents).
		Set("tasks", taskList).
		Set("tasks/*", tasks).
		Set("campaigns", campaigns).
		Set("campaigns/*", campaigns).
		Set("dashboard/stats", dashboard)
}

// DefaultRules wires each mutation's resource type to the cache keys it
// can go stale under. Every write also touches the dashboard counters.
func DefaultRules() resourcesync.Ruleset {
	return resourcesync.Ruleset{
		"agent":    {"agents", "dashboard/stats"},
		"task":     {"tasks", "dashboard/stats"},
		"campaign": {"campaigns", "dashboard/stats"},
	}
}
