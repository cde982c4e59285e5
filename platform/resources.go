package platform

import "time"

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentIdle     AgentStatus = "idle"
	AgentPaused   AgentStatus = "paused"
	AgentError    AgentStatus = "error"
	AgentTraining AgentStatus = "training"
)

// AgentCategory groups agents by the kind of work they do.
type AgentCategory string

const (
	CategoryMarketing AgentCategory = "marketing"
	CategorySupport   AgentCategory = "support"
	CategoryContent   AgentCategory = "content"
	CategoryAnalytics AgentCategory = "analytics"
	CategorySales     AgentCategory = "sales"
	CategoryGeneral   AgentCategory = "general"
)

// AgentSummary is the list-view projection of an agent.
type AgentSummary struct {
	ID              int           `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Role            string        `json:"role"`
	Category        AgentCategory `json:"category"`
	Status          AgentStatus   `json:"status"`
	LLMProvider     string        `json:"llm_provider"`
	LLMModel        string        `json:"llm_model"`
	TasksCompleted  int           `json:"tasks_completed"`
	TasksFailed     int           `json:"tasks_failed"`
	SuccessRate     float64       `json:"success_rate"`
	TotalTokensUsed int           `json:"total_tokens_used"`
	TotalCost       string        `json:"total_cost"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActive      *time.Time    `json:"last_active,omitempty"`
}

// Agent is the full detail view, including the prompt configuration the
// list endpoint omits.
type Agent struct {
	ID              int            `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Role            string         `json:"role"`
	Category        AgentCategory  `json:"category"`
	Status          AgentStatus    `json:"status"`
	LLMProvider     string         `json:"llm_provider"`
	LLMModel        string         `json:"llm_model"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	Instructions    string         `json:"instructions,omitempty"`
	Settings        map[string]any `json:"settings,omitempty"`
	TasksCompleted  int            `json:"tasks_completed"`
	TasksFailed     int            `json:"tasks_failed"`
	TotalTokensUsed int            `json:"total_tokens_used"`
	TotalCost       string         `json:"total_cost"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
	LastActive      *time.Time     `json:"last_active,omitempty"`
}

// AgentStats aggregates fleet-wide agent counters.
type AgentStats struct {
	TotalAgents         int     `json:"total_agents"`
	ActiveAgents        int     `json:"active_agents"`
	IdleAgents          int     `json:"idle_agents"`
	PausedAgents        int     `json:"paused_agents"`
	TotalTasksCompleted int     `json:"total_tasks_completed"`
	TotalTasksFailed    int     `json:"total_tasks_failed"`
	OverallSuccessRate  float64 `json:"overall_success_rate"`
	TotalTokensUsed     int     `json:"total_tokens_used"`
	TotalCost           float64 `json:"total_cost"`
}

// TaskStatus is the execution state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// TaskPriority orders tasks within an agent's queue.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Task is one unit of agent work. IDs are server-assigned opaque strings.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	AgentID     int            `json:"agent_id"`
	AgentName   string         `json:"agent_name,omitempty"`
	Status      TaskStatus     `json:"status"`
	Priority    TaskPriority   `json:"priority"`
	InputData   map[string]any `json:"input_data,omitempty"`
	Result      *TaskResult    `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TaskResult carries the outcome of a finished task.
type TaskResult struct {
	Output        string  `json:"output,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	TokensUsed    int     `json:"tokens_used"`
	ExecutionTime float64 `json:"execution_time"`
	Cost          float64 `json:"cost"`
}

// TaskDraft is the payload for submitting a new task for execution.
type TaskDraft struct {
	AgentID        int            `json:"agent_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	InputData      map[string]any `json:"input_data,omitempty"`
	Priority       TaskPriority   `json:"priority,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Tools          []string       `json:"tools,omitempty"`
}

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// CampaignPlatform names the ad network a campaign runs on.
type CampaignPlatform string

const (
	PlatformGoogleAds   CampaignPlatform = "google_ads"
	PlatformMetaAds     CampaignPlatform = "meta_ads"
	PlatformTikTokAds   CampaignPlatform = "tiktok_ads"
	PlatformLinkedInAds CampaignPlatform = "linkedin_ads"
)

// Campaign is an ad campaign managed by an agent. Monetary amounts are
// decimal strings to avoid float drift.
type Campaign struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Platform    CampaignPlatform `json:"platform"`
	Status      CampaignStatus   `json:"status"`
	BudgetTotal string           `json:"budget_total,omitempty"`
	BudgetDaily string           `json:"budget_daily,omitempty"`
	SpentAmount string           `json:"spent_amount,omitempty"`
	Impressions int              `json:"impressions"`
	Clicks      int              `json:"clicks"`
	Conversions int              `json:"conversions"`
	CTR         string           `json:"ctr,omitempty"`
	CPC         string           `json:"cpc,omitempty"`
	ROAS        string           `json:"roas,omitempty"`
	AgentID     int              `json:"agent_id,omitempty"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

// DashboardStats is the headline counter set shown on the home screen.
type DashboardStats struct {
	TotalAgents     int `json:"total_agents"`
	ActiveAgents    int `json:"active_agents"`
	TotalCampaigns  int `json:"total_campaigns"`
	ActiveCampaigns int `json:"active_campaigns"`
	TotalTasks      int `json:"total_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	PendingTasks    int `json:"pending_tasks"`
}
