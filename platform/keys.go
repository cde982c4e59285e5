package platform

import (
	"strconv"

	"github.com/goliatone/go-resource-sync/cache"
)

// AgentFilter narrows the agent list. Zero fields are omitted from both
// the request and the cache key, so every distinct filter combination
// caches independently while identical ones share an entry.
type AgentFilter struct {
	Status   AgentStatus
	Category AgentCategory
	Skip     int
	Limit    int
}

func (f AgentFilter) params() map[string]string {
	p := map[string]string{}
	if f.Status != "" {
		p["status"] = string(f.Status)
	}
	if f.Category != "" {
		p["category"] = string(f.Category)
	}
	if f.Skip > 0 {
		p["skip"] = strconv.Itoa(f.Skip)
	}
	if f.Limit > 0 {
		p["limit"] = strconv.Itoa(f.Limit)
	}
	if len(p) == 0 {
		return nil
	}
	return p
}

// TaskFilter narrows the task list.
type TaskFilter struct {
	Status  TaskStatus
	AgentID int
	Skip    int
	Limit   int
}

func (f TaskFilter) params() map[string]string {
	p := map[string]string{}
	if f.Status != "" {
		p["status"] = string(f.Status)
	}
	if f.AgentID > 0 {
		p["agent_id"] = strconv.Itoa(f.AgentID)
	}
	if f.Skip > 0 {
		p["skip"] = strconv.Itoa(f.Skip)
	}
	if f.Limit > 0 {
		p["limit"] = strconv.Itoa(f.Limit)
	}
	if len(p) == 0 {
		return nil
	}
	return p
}

// CampaignFilter narrows the campaign list.
type CampaignFilter struct {
	Status CampaignStatus
	Skip   int
	Limit  int
}

func (f CampaignFilter) params() map[string]string {
	p := map[string]string{}
	if f.Status != "" {
		p["status"] = string(f.Status)
	}
	if f.Skip > 0 {
		p["skip"] = strconv.Itoa(f.Skip)
	}
	if f.Limit > 0 {
		p["limit"] = strconv.Itoa(f.Limit)
	}
	if len(p) == 0 {
		return nil
	}
	return p
}

// AgentListKey identifies one filtered view of the agent list.
func AgentListKey(f AgentFilter) cache.Key {
	return cache.NewKeyWithParams("agents", f.params())
}

// AgentKey identifies a single agent's detail entry.
func AgentKey(id int) cache.Key {
	return cache.NewKey("agents/" + strconv.Itoa(id))
}

// AgentStatsKey identifies the fleet-wide agent counters.
func AgentStatsKey() cache.Key {
	return cache.NewKey("agents/stats")
}

// TaskListKey identifies one filtered view of the task list.
func TaskListKey(f TaskFilter) cache.Key {
	return cache.NewKeyWithParams("tasks", f.params())
}

// TaskKey identifies a single task's detail entry.
func TaskKey(id string) cache.Key {
	return cache.NewKey("tasks/" + id)
}

// CampaignListKey identifies one filtered view of the campaign list.
func CampaignListKey(f CampaignFilter) cache.Key {
	return cache.NewKeyWithParams("campaigns", f.params())
}

// CampaignKey identifies a single campaign's detail entry.
func CampaignKey(id int) cache.Key {
	return cache.NewKey("campaigns/" + strconv.Itoa(id))
}

// DashboardKey identifies the dashboard counter entry.
func DashboardKey() cache.Key {
	return cache.NewKey("dashboard/stats")
}
