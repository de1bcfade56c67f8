package store

import (
	"context"
	"time"

	"github.com/rendis/cmdkit/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Commands
	SaveCommand(ctx context.Context, cmd *Command) error
	GetCommand(ctx context.Context, name string) (*Command, error)
	ListCommands(ctx context.Context, filter CommandFilter) ([]*Command, error)
	SearchCommands(ctx context.Context, query string) ([]*Command, error)
	DeleteCommand(ctx context.Context, name string) error
	RecordCommandUse(ctx context.Context, name string, at time.Time) error

	// Workflows
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	UpdateWorkflow(ctx context.Context, name string, update WorkflowUpdate) error
	GetWorkflow(ctx context.Context, name string) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)
	SearchWorkflows(ctx context.Context, query string) ([]*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, name string) error
	RecordExecution(ctx context.Context, name string, at time.Time) error

	// Run history
	SaveRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Tasks
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	UpdateTask(ctx context.Context, id int64, update TaskUpdate) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	DeleteTask(ctx context.Context, id int64) error

	// Scheduled Jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
