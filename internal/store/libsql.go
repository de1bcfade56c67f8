package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/cmdkit/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// connPragmas are applied once per store. The pool holds a single
// connection, so they stick for the store's lifetime.
var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

// NewLibSQLStore opens the libSQL database at dsn, e.g.
// "file:/home/me/.cmdkit/cmdkit.db". Call Migrate before first use.
func NewLibSQLStore(dsn string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open libsql %s: %w", dsn, err)
	}
	applyPragmas(db)
	return &LibSQLStore{db: db}, nil
}

// applyPragmas is best effort. journal_mode answers with a row, so every
// pragma goes through QueryRow and its result is discarded.
func applyPragmas(db *sql.DB) {
	for _, p := range connPragmas {
		var ignored string
		_ = db.QueryRow(p).Scan(&ignored)
	}
}

func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies every embedded migration newer than the recorded version.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// SchemaVersion returns the highest applied migration version.
func (s *LibSQLStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Commands ---

const commandColumns = `id, name, command, description, tags, use_count, last_used_at, created_at, updated_at`

// SaveCommand inserts cmd, or replaces the command text, description and
// tags of an existing command with the same name.
func (s *LibSQLStore) SaveCommand(ctx context.Context, cmd *Command) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return schema.NewError(schema.ErrCodeValidation, "command name is required")
	}
	if strings.TrimSpace(cmd.Command) == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "command %q has an empty command line", cmd.Name)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	tags, err := json.Marshal(nonNilStrings(cmd.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	now := time.Now().UTC()
	cmd.CreatedAt = timeOrNow(cmd.CreatedAt)
	cmd.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commands (id, name, command, description, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET command=excluded.command, description=excluded.description, tags=excluded.tags, updated_at=excluded.updated_at`,
		cmd.ID, cmd.Name, cmd.Command, cmd.Description, string(tags), cmd.CreatedAt, cmd.UpdatedAt,
	)
	return wrapStoreErr(err, "command", cmd.Name)
}

func (s *LibSQLStore) GetCommand(ctx context.Context, name string) (*Command, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE name = ?`, name)
	cmd, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("command", name)
	}
	return cmd, err
}

func (s *LibSQLStore) ListCommands(ctx context.Context, filter CommandFilter) ([]*Command, error) {
	query := `SELECT ` + commandColumns + ` FROM commands`
	var args []any
	if filter.Tag != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM json_each(commands.tags) WHERE json_each.value = ?)`
		args = append(args, filter.Tag)
	}
	query += ` ORDER BY name`
	query += limitClause(filter.Limit, 0)
	return s.queryCommands(ctx, query, args...)
}

// SearchCommands matches query case-insensitively against name, command text
// and description.
func (s *LibSQLStore) SearchCommands(ctx context.Context, query string) ([]*Command, error) {
	pattern := likePattern(query)
	return s.queryCommands(ctx,
		`SELECT `+commandColumns+` FROM commands
		 WHERE name LIKE ? ESCAPE '\' OR command LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'
		 ORDER BY use_count DESC, name`,
		pattern, pattern, pattern)
}

func (s *LibSQLStore) DeleteCommand(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "command", name)
}

func (s *LibSQLStore) RecordCommandUse(ctx context.Context, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET use_count = use_count + 1, last_used_at = ? WHERE name = ?`, at.UTC(), name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "command", name)
}

func (s *LibSQLStore) queryCommands(ctx context.Context, query string, args ...any) ([]*Command, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func scanCommand(sc scanner) (*Command, error) {
	cmd := &Command{}
	var tags string
	var lastUsed sql.NullTime
	if err := sc.Scan(&cmd.ID, &cmd.Name, &cmd.Command, &cmd.Description, &tags,
		&cmd.UseCount, &lastUsed, &cmd.CreatedAt, &cmd.UpdatedAt); err != nil {
		return nil, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &cmd.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if lastUsed.Valid {
		cmd.LastUsedAt = &lastUsed.Time
	}
	return cmd, nil
}

// --- Workflows ---

const workflowColumns = `id, name, description, commands, parallel, continue_on_error, variables, execution_count, last_executed, created_at, updated_at`

// CreateWorkflow persists a new workflow. A workflow without commands is
// rejected here so it can never reach the executor.
func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	if strings.TrimSpace(wf.Name) == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow name is required")
	}
	if len(wf.Commands) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "workflow %q must have at least one command", wf.Name)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	commands, err := json.Marshal(wf.Commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}
	vars, err := marshalVars(wf.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	wf.UpdatedAt = timeOrNow(wf.UpdatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, wf.Description, string(commands), boolInt(wf.Parallel), boolInt(wf.ContinueOnError), vars,
		wf.ExecutionCount, nullTime(wf.LastExecuted), wf.CreatedAt, wf.UpdatedAt,
	)
	return wrapStoreErr(err, "workflow", wf.Name)
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, name string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Commands != nil {
		if len(update.Commands) == 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "workflow %q must have at least one command", name)
		}
		b, err := json.Marshal(update.Commands)
		if err != nil {
			return fmt.Errorf("marshal commands: %w", err)
		}
		sets = append(sets, "commands = ?")
		args = append(args, string(b))
	}
	if update.Parallel != nil {
		sets = append(sets, "parallel = ?")
		args = append(args, boolInt(*update.Parallel))
	}
	if update.ContinueOnError != nil {
		sets = append(sets, "continue_on_error = ?")
		args = append(args, boolInt(*update.ContinueOnError))
	}
	if update.Variables != nil {
		vars, err := marshalVars(update.Variables)
		if err != nil {
			return fmt.Errorf("marshal variables: %w", err)
		}
		sets = append(sets, "variables = ?")
		args = append(args, vars)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), name)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE name = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", name)
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, name string) (*schema.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("workflow", name)
	}
	return wf, err
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY name` + limitClause(filter.Limit, filter.Offset)
	return s.queryWorkflows(ctx, query)
}

// SearchWorkflows matches query case-insensitively against name, description
// and command templates.
func (s *LibSQLStore) SearchWorkflows(ctx context.Context, query string) ([]*schema.Workflow, error) {
	pattern := likePattern(query)
	return s.queryWorkflows(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR commands LIKE ? ESCAPE '\'
		 ORDER BY name`,
		pattern, pattern, pattern)
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", name)
}

// RecordExecution bumps the execution counter in a single statement so
// concurrent runs of the same workflow never lose an increment.
func (s *LibSQLStore) RecordExecution(ctx context.Context, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET execution_count = execution_count + 1, last_executed = ? WHERE name = ?`,
		at.UTC(), name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", name)
}

func (s *LibSQLStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]*schema.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func scanWorkflow(sc scanner) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var commands, vars string
	var lastExecuted sql.NullTime
	if err := sc.Scan(&wf.ID, &wf.Name, &wf.Description, &commands, &wf.Parallel, &wf.ContinueOnError,
		&vars, &wf.ExecutionCount, &lastExecuted, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(commands), &wf.Commands); err != nil {
		return nil, fmt.Errorf("unmarshal commands: %w", err)
	}
	if err := unmarshalVars(vars, &wf.Variables); err != nil {
		return nil, err
	}
	if lastExecuted.Valid {
		wf.LastExecuted = &lastExecuted.Time
	}
	return wf, nil
}

// --- Runs ---

func (s *LibSQLStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Trigger == "" {
		run.Trigger = TriggerCLI
	}
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	vars, err := marshalVars(run.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, trigger, status, state, parallel, halted_early, outcomes, variables, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workflow, run.Trigger, string(run.Status), string(run.State), boolInt(run.Parallel), boolInt(run.HaltedEarly),
		string(outcomes), vars, timeOrNow(run.StartedAt), timeOrNow(run.CompletedAt), run.DurationMs,
	)
	return wrapStoreErr(err, "run", run.ID)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT id, workflow, trigger, status, state, parallel, halted_early, outcomes, variables, started_at, completed_at, duration_ms FROM runs`
	var args []any
	if filter.Workflow != "" {
		query += ` WHERE workflow = ?`
		args = append(args, filter.Workflow)
	}
	query += ` ORDER BY started_at DESC` + limitClause(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var status, state, outcomes, vars string
		if err := rows.Scan(&r.ID, &r.Workflow, &r.Trigger, &status, &state, &r.Parallel, &r.HaltedEarly,
			&outcomes, &vars, &r.StartedAt, &r.CompletedAt, &r.DurationMs); err != nil {
			return nil, err
		}
		r.Status = schema.RunStatus(status)
		r.State = schema.RunState(state)
		if err := json.Unmarshal([]byte(outcomes), &r.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal outcomes: %w", err)
		}
		if err := unmarshalVars(vars, &r.Variables); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Tasks ---

const taskColumns = `id, title, description, priority, done, due_at, completed_at, created_at, updated_at`

func (s *LibSQLStore) CreateTask(ctx context.Context, task *Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return schema.NewError(schema.ErrCodeValidation, "task title is required")
	}
	if task.Priority == 0 {
		task.Priority = DefaultPriority
	}
	if err := validatePriority(task.Priority); err != nil {
		return err
	}
	task.CreatedAt = timeOrNow(task.CreatedAt)
	task.UpdatedAt = task.CreatedAt
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, priority, done, due_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.Title, task.Description, task.Priority, boolInt(task.Done), nullTime(task.DueAt), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return wrapStoreErr(err, "task", task.Title)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	task.ID = id
	return nil
}

func (s *LibSQLStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("task", fmt.Sprint(id))
	}
	return t, err
}

func (s *LibSQLStore) UpdateTask(ctx context.Context, id int64, update TaskUpdate) error {
	var sets []string
	var args []any

	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			return schema.NewError(schema.ErrCodeValidation, "task title is required")
		}
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Priority != nil {
		if err := validatePriority(*update.Priority); err != nil {
			return err
		}
		sets = append(sets, "priority = ?")
		args = append(args, *update.Priority)
	}
	if update.Done != nil {
		sets = append(sets, "done = ?", "completed_at = ?")
		var completedAt any
		if *update.Done {
			completedAt = time.Now().UTC()
		}
		args = append(args, boolInt(*update.Done), completedAt)
	}
	if update.DueAt != nil {
		sets = append(sets, "due_at = ?")
		args = append(args, *update.DueAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "task", fmt.Sprint(id))
}

// ListTasks returns open tasks before done ones, then by priority and age.
func (s *LibSQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	var where []string
	var args []any

	if filter.Done != nil {
		where = append(where, "done = ?")
		args = append(args, boolInt(*filter.Done))
	}
	if filter.MaxPriority > 0 {
		where = append(where, "priority <= ?")
		args = append(args, filter.MaxPriority)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY done, priority, created_at, id` + limitClause(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *LibSQLStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "task", fmt.Sprint(id))
}

func scanTask(sc scanner) (*Task, error) {
	t := &Task{}
	var dueAt, completedAt sql.NullTime
	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Done,
		&dueAt, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if dueAt.Valid {
		t.DueAt = &dueAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

func validatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"priority must be between %d and %d, got %d", MinPriority, MaxPriority, p)
	}
	return nil
}

// --- Scheduled Jobs ---

const jobColumns = `id, workflow, cron_expression, variables, enabled, last_run_at, next_run_at, last_run_status, created_at`

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	vars, err := marshalVars(job.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	job.CreatedAt = timeOrNow(job.CreatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Workflow, job.CronExpression, vars, boolInt(job.Enabled),
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), job.LastRunStatus, job.CreatedAt,
	)
	return wrapStoreErr(err, "scheduled_job", job.ID)
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("scheduled_job", id)
	}
	return job, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}
	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}

	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at` + limitClause(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

func scanJob(sc scanner) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var vars string
	var lastRun, nextRun sql.NullTime
	if err := sc.Scan(&job.ID, &job.Workflow, &job.CronExpression, &vars, &job.Enabled,
		&lastRun, &nextRun, &job.LastRunStatus, &job.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalVars(vars, &job.Variables); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		job.NextRunAt = &nextRun.Time
	}
	return job, nil
}

// --- Helpers ---

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

// wrapStoreErr maps unique-constraint violations to CONFLICT.
func wrapStoreErr(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return schema.NewErrorf(schema.ErrCodeConflict, "%s %q already exists", resource, id).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeStore, "save %s %q: %v", resource, id, err).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

// likePattern wraps q for a substring LIKE match with '\' as the escape.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func marshalVars(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalVars(s string, dst *map[string]string) error {
	if s == "" || s == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("unmarshal variables: %w", err)
	}
	return nil
}

// boolInt stores booleans as 0/1 INTEGER columns.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
