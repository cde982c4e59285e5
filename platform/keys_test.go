package platform

import (
	"testing"
	"time"
)

func TestAgentListKey_CanonicalForms(t *testing.T) {
	cases := []struct {
		name   string
		filter AgentFilter
		want   string
	}{
		{"unfiltered", AgentFilter{}, "agents"},
		{"status only", AgentFilter{Status: AgentActive}, "agents::status=active"},
		{
			"full filter",
			AgentFilter{Status: AgentPaused, Category: CategorySupport, Skip: 20, Limit: 10},
			"agents::category=support::limit=10::skip=20::status=paused",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AgentListKey(tc.filter).Canonical(); got != tc.want {
				t.Errorf("Canonical() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestListKeys_EqualFiltersShareAKey(t *testing.T) {
	a := TaskListKey(TaskFilter{Status: TaskRunning, AgentID: 7})
	b := TaskListKey(TaskFilter{AgentID: 7, Status: TaskRunning})
	if !a.Equal(b) {
		t.Errorf("keys differ: %s vs %s", a, b)
	}
	c := TaskListKey(TaskFilter{Status: TaskRunning})
	if a.Equal(c) {
		t.Errorf("distinct filters produced the same key %s", a)
	}
}

func TestDetailKeys_CanonicalForms(t *testing.T) {
	if got := AgentKey(7).Canonical(); got != "agents/7" {
		t.Errorf("AgentKey(7) = %q", got)
	}
	if got := TaskKey("t-1").Canonical(); got != "tasks/t-1" {
		t.Errorf("TaskKey(t-1) = %q", got)
	}
	if got := CampaignKey(3).Canonical(); got != "campaigns/3" {
		t.Errorf("CampaignKey(3) = %q", got)
	}
	if got := AgentStatsKey().Canonical(); got != "agents/stats" {
		t.Errorf("AgentStatsKey() = %q", got)
	}
	if got := DashboardKey().Canonical(); got != "dashboard/stats" {
		t.Errorf("DashboardKey() = %q", got)
	}
}

func TestDefaultPolicies_PerResourceLookup(t *testing.T) {
	ps := DefaultPolicies()
	if err := ps.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if got := ps.For("agents/7").StaleAfter; got != 60*time.Second {
		t.Errorf("agent detail StaleAfter = %v, want 60s", got)
	}
	if got := ps.For("tasks").PollInterval; got != 45*time.Second {
		t.Errorf("task list PollInterval = %v, want 45s", got)
	}
	if got := ps.For("tasks/t-1"); got.PollInterval != 0 || got.StaleAfter != 15*time.Second {
		t.Errorf("task detail policy = %+v, want no polling and 15s staleness", got)
	}
	if got := ps.For("campaigns/3").StaleAfter; got != 120*time.Second {
		t.Errorf("campaign detail StaleAfter = %v, want 120s", got)
	}
	if got := ps.For("dashboard/stats"); got.PollInterval != 30*time.Second || got.StaleAfter != 10*time.Second {
		t.Errorf("dashboard policy = %+v, want 30s polling and 10s staleness", got)
	}
	if got := ps.For("something/else").StaleAfter; got != 30*time.Second {
		t.Errorf("fallback StaleAfter = %v, want 30s", got)
	}
}

func TestDefaultRules_EveryWriteTouchesDashboard(t *testing.T) {
	rules := DefaultRules()
	for _, resource := range []string{"agent", "task", "campaign"} {
		prefixes, ok := rules[resource]
		if !ok {
			t.Fatalf("no rule for %q", resource)
		}
		found := false
		for _, p := range prefixes {
			if p == "dashboard/stats" {
				found = true
			}
		}
		if !found {
			t.Errorf("%q rule %v does not cover dashboard/stats", resource, prefixes)
		}
	}
}
