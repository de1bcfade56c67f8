package store

import (
	"time"

	"github.com/rendis/cmdkit/pkg/schema"
)

// Task priorities run from 1 (highest) to 5.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Run triggers.
const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerMCP      = "mcp"
)

// Command is a saved one-line shell command template.
type Command struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Command     string     `json:"command"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	UseCount    int64      `json:"use_count"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CommandFilter specifies criteria for listing saved commands.
type CommandFilter struct {
	Tag   string `json:"tag,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a workflow. Nil fields are left as is.
type WorkflowUpdate struct {
	Description     *string           `json:"description,omitempty"`
	Commands        []string          `json:"commands,omitempty"`
	Parallel        *bool             `json:"parallel,omitempty"`
	ContinueOnError *bool             `json:"continue_on_error,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
}

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Run is the persisted summary of one workflow execution.
type Run struct {
	ID          string                  `json:"id"`
	Workflow    string                  `json:"workflow"`
	Trigger     string                  `json:"trigger"`
	Status      schema.RunStatus        `json:"status"`
	State       schema.RunState         `json:"state"`
	Parallel    bool                    `json:"parallel"`
	HaltedEarly bool                    `json:"halted_early"`
	Outcomes    []schema.CommandOutcome `json:"outcomes"`
	Variables   map[string]string       `json:"variables,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	DurationMs  int64                   `json:"duration_ms"`
}

// RunFilter specifies criteria for listing runs. Newest first.
type RunFilter struct {
	Workflow string `json:"workflow,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Task is a prioritized to-do item.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority"`
	Done        bool       `json:"done"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskUpdate specifies mutable fields of a task.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
	Done        *bool      `json:"done,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Done        *bool `json:"done,omitempty"`
	MaxPriority int   `json:"max_priority,omitempty"`
	Limit       int   `json:"limit,omitempty"`
}

// ScheduledJob is a cron-triggered workflow run.
type ScheduledJob struct {
	ID             string            `json:"id"`
	Workflow       string            `json:"workflow"`
	CronExpression string            `json:"cron_expression"`
	Variables      map[string]string `json:"variables,omitempty"`
	Enabled        bool              `json:"enabled"`
	LastRunAt      *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time        `json:"next_run_at,omitempty"`
	LastRunStatus  string            `json:"last_run_status,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}
