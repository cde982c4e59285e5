// Package platform is the typed client for the agents platform API: agents,
// tasks, campaigns, and dashboard counters, read through the sync engine's
// cache and written with optimistic updates.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/internal/logging"
	"github.com/goliatone/go-resource-sync/resourcesync"
	"github.com/goliatone/go-resource-sync/transport"
)

// Options configures a Client. API and Engine are required.
type Options struct {
	// API performs the HTTP requests.
	API *transport.Client

	// Engine caches results and coordinates fetches, polling, and
	// optimistic mutations.
	Engine *resourcesync.Engine

	// Logger receives client logging. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Client is the typed facade over the platform REST API. Reads go through
// the sync engine, so repeated calls are served from cache while fresh and
// deduplicated while a fetch is in flight. Each read registers its fetch
// closure under the resource key, which is what background polling and
// invalidation refetches replay later.
type Client struct {
	api    *transport.Client
	engine *resourcesync.Engine
	log    *slog.Logger
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	if opts.API == nil {
		return nil, errors.New("platform: transport client is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("platform: sync engine is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Client{api: opts.API, engine: opts.Engine, log: log}, nil
}

// Engine exposes the underlying sync engine for subscriptions, manual
// invalidation, and cache metrics.
func (c *Client) Engine() *resourcesync.Engine {
	return c.engine
}

// Agents returns the agent list for filter, served from cache while fresh.
func (c *Client) Agents(ctx context.Context, filter AgentFilter) ([]AgentSummary, error) {
	key := AgentListKey(filter)
	params := filter.params()
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var agents []AgentSummary
		if err := c.api.Get(ctx, "/api/v1/agents", params, &agents); err != nil {
			return nil, err
		}
		return agents, nil
	})
	return resourcesync.Fetch[[]AgentSummary](ctx, c.engine, key)
}

// Agent returns one agent's detail view.
func (c *Client) Agent(ctx context.Context, id int) (Agent, error) {
	key := AgentKey(id)
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var agent Agent
		if err := c.api.Get(ctx, fmt.Sprintf("/api/v1/agents/%d", id), nil, &agent); err != nil {
			return nil, err
		}
		return agent, nil
	})
	return resourcesync.Fetch[Agent](ctx, c.engine, key)
}

// AgentStats returns fleet-wide agent counters.
func (c *Client) AgentStats(ctx context.Context) (AgentStats, error) {
	key := AgentStatsKey()
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var stats AgentStats
		if err := c.api.Get(ctx, "/api/v1/agents/stats", nil, &stats); err != nil {
			return nil, err
		}
		return stats, nil
	})
	return resourcesync.Fetch[AgentStats](ctx, c.engine, key)
}

type statusPatch struct {
	Status string `json:"status"`
}

// UpdateAgentStatus changes an agent's status. Every cached agent list and
// the agent's detail entry flip optimistically and roll back if the server
// rejects the write.
func (c *Client) UpdateAgentStatus(ctx context.Context, id int, status AgentStatus) (Agent, error) {
	patches := []resourcesync.OptimisticPatch{{
		Key: AgentKey(id),
		Apply: resourcesync.PatchValue(func(a Agent) Agent {
			a.Status = status
			return a
		}),
	}}
	for _, key := range c.listKeys("agents") {
		patches = append(patches, resourcesync.OptimisticPatch{
			Key: key,
			Apply: resourcesync.PatchValue(func(list []AgentSummary) []AgentSummary {
				next := make([]AgentSummary, len(list))
				copy(next, list)
				for i := range next {
					if next[i].ID == id {
						next[i].Status = status
					}
				}
				return next
			}),
		})
	}

	result, err := c.engine.Mutate(ctx, resourcesync.Mutation{
		Resource: "agent",
		Write: func(ctx context.Context) (any, error) {
			var updated Agent
			path := fmt.Sprintf("/api/v1/agents/%d/status", id)
			if err := c.api.Patch(ctx, path, statusPatch{Status: string(status)}, &updated); err != nil {
				return nil, err
			}
			return updated, nil
		},
		Optimistic: patches,
	})
	if err != nil {
		return Agent{}, err
	}
	updated, _ := result.(Agent)
	return updated, nil
}

// CloneAgent duplicates an agent server-side and returns the copy. Lists
// and counters are refetched rather than patched, since only the server
// knows the clone's identity.
func (c *Client) CloneAgent(ctx context.Context, id int) (Agent, error) {
	result, err := c.engine.Mutate(ctx, resourcesync.Mutation{
		Resource: "agent",
		Write: func(ctx context.Context) (any, error) {
			var clone Agent
			if err := c.api.Post(ctx, fmt.Sprintf("/api/v1/agents/%d/clone", id), nil, &clone); err != nil {
				return nil, err
			}
			return clone, nil
		},
	})
	if err != nil {
		return Agent{}, err
	}
	clone, _ := result.(Agent)
	return clone, nil
}

type taskListEnvelope struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

type taskEnvelope struct {
	Task Task `json:"task"`
}

// Tasks returns the task list for filter.
func (c *Client) Tasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	key := TaskListKey(filter)
	params := filter.params()
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var envelope taskListEnvelope
		if err := c.api.Get(ctx, "/api/v1/tasks", params, &envelope); err != nil {
			return nil, err
		}
		return envelope.Tasks, nil
	})
	return resourcesync.Fetch[[]Task](ctx, c.engine, key)
}

// Task returns one task's detail view.
func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	key := TaskKey(id)
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var envelope taskEnvelope
		if err := c.api.Get(ctx, "/api/v1/tasks/"+id, nil, &envelope); err != nil {
			return nil, err
		}
		return envelope.Task, nil
	})
	return resourcesync.Fetch[Task](ctx, c.engine, key)
}

// CreateTask submits a task for execution and returns the accepted task.
// Task lists and dashboard counters are refetched once the server accepts.
func (c *Client) CreateTask(ctx context.Context, draft TaskDraft) (Task, error) {
	result, err := c.engine.Mutate(ctx, resourcesync.Mutation{
		Resource: "task",
		Write: func(ctx context.Context) (any, error) {
			var created Task
			if err := c.api.Post(ctx, "/api/v1/tasks/execute", draft, &created); err != nil {
				return nil, err
			}
			return created, nil
		},
	})
	if err != nil {
		return Task{}, err
	}
	created, _ := result.(Task)
	return created, nil
}

// CancelTask asks the server to stop a task. Cached views flip to
// cancelled immediately and roll back if the server refuses.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	patches := []resourcesync.OptimisticPatch{{
		Key: TaskKey(id),
		Apply: resourcesync.PatchValue(func(t Task) Task {
			t.Status = TaskCancelled
			return t
		}),
	}}
	for _, key := range c.listKeys("tasks") {
		patches = append(patches, resourcesync.OptimisticPatch{
			Key: key,
			Apply: resourcesync.PatchValue(func(list []Task) []Task {
				next := make([]Task, len(list))
				copy(next, list)
				for i := range next {
					if next[i].ID == id {
						next[i].Status = TaskCancelled
					}
				}
				return next
			}),
		})
	}

	_, err := c.engine.Mutate(ctx, resourcesync.Mutation{
		Resource: "task",
		Write: func(ctx context.Context) (any, error) {
			return nil, c.api.Post(ctx, "/api/v1/tasks/cancel/"+id, nil, nil)
		},
		Optimistic: patches,
	})
	return err
}

type campaignListEnvelope struct {
	Campaigns []Campaign `json:"campaigns"`
	Total     int        `json:"total"`
}

type campaignEnvelope struct {
	Campaign Campaign `json:"campaign"`
}

// Campaigns returns the campaign list for filter.
func (c *Client) Campaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error) {
	key := CampaignListKey(filter)
	params := filter.params()
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var envelope campaignListEnvelope
		if err := c.api.Get(ctx, "/api/v1/campaigns", params, &envelope); err != nil {
			return nil, err
		}
		return envelope.Campaigns, nil
	})
	return resourcesync.Fetch[[]Campaign](ctx, c.engine, key)
}

// Campaign returns one campaign's detail view.
func (c *Client) Campaign(ctx context.Context, id int) (Campaign, error) {
	key := CampaignKey(id)
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var envelope campaignEnvelope
		if err := c.api.Get(ctx, fmt.Sprintf("/api/v1/campaigns/%d", id), nil, &envelope); err != nil {
			return nil, err
		}
		return envelope.Campaign, nil
	})
	return resourcesync.Fetch[Campaign](ctx, c.engine, key)
}

// UpdateCampaignStatus changes a campaign's status with the same
// optimistic treatment as UpdateAgentStatus.
func (c *Client) UpdateCampaignStatus(ctx context.Context, id int, status CampaignStatus) (Campaign, error) {
	patches := []resourcesync.OptimisticPatch{{
		Key: CampaignKey(id),
		Apply: resourcesync.PatchValue(func(cp Campaign) Campaign {
			cp.Status = status
			return cp
		}),
	}}
	for _, key := range c.listKeys("campaigns") {
		patches = append(patches, resourcesync.OptimisticPatch{
			Key: key,
			Apply: resourcesync.PatchValue(func(list []Campaign) []Campaign {
				next := make([]Campaign, len(list))
				copy(next, list)
				for i := range next {
					if next[i].ID == id {
						next[i].Status = status
					}
				}
				return next
			}),
		})
	}

	result, err := c.engine.Mutate(ctx, resourcesync.Mutation{
		Resource: "campaign",
		Write: func(ctx context.Context) (any, error) {
			var envelope campaignEnvelope
			path := fmt.Sprintf("/api/v1/campaigns/%d", id)
			if err := c.api.Put(ctx, path, statusPatch{Status: string(status)}, &envelope); err != nil {
				return nil, err
			}
			return envelope.Campaign, nil
		},
		Optimistic: patches,
	})
	if err != nil {
		return Campaign{}, err
	}
	updated, _ := result.(Campaign)
	return updated, nil
}

type dashboardEnvelope struct {
	Stats DashboardStats `json:"stats"`
}

// Dashboard returns the headline counters.
func (c *Client) Dashboard(ctx context.Context) (DashboardStats, error) {
	key := DashboardKey()
	c.engine.RegisterFetcher(key, func(ctx context.Context) (any, error) {
		var envelope dashboardEnvelope
		if err := c.api.Get(ctx, "/api/v1/reports/dashboard", nil, &envelope); err != nil {
			return nil, err
		}
		return envelope.Stats, nil
	})
	return resourcesync.Fetch[DashboardStats](ctx, c.engine, key)
}

// WarmUp prefetches the resources every screen needs, typically right
// after login, so first paints hit a warm cache. It returns the first
// fetch error and cancels the remaining prefetches.
func (c *Client) WarmUp(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.Agents(ctx, AgentFilter{})
		return err
	})
	g.Go(func() error {
		_, err := c.Tasks(ctx, TaskFilter{})
		return err
	})
	g.Go(func() error {
		_, err := c.Campaigns(ctx, CampaignFilter{})
		return err
	})
	g.Go(func() error {
		_, err := c.Dashboard(ctx)
		return err
	})
	return g.Wait()
}

// listKeys returns every cached list variant under resource. Detail and
// stats entries share the prefix but carry a longer resource path, so the
// exact match excludes them.
func (c *Client) listKeys(resource string) []cache.Key {
	var keys []cache.Key
	for _, key := range c.engine.Store().MatchKeys([]string{resource}) {
		if key.Resource() == resource {
			keys = append(keys, key)
		}
	}
	return keys
}
