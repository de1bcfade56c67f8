// Package scheduler runs stored workflows on 5-field cron expressions.
// Jobs live in the store, so a daemon restart picks them up again and
// RecoverMissed catches up on runs that fell due while it was down.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/pkg/schema"
)

// DefaultInterval is how often the store is polled for due jobs.
const DefaultInterval = 60 * time.Second

// StatusError is recorded when a scheduled run produced no report.
const StatusError = "error"

// ErrAlreadyStarted is returned by a second Start without Stop.
var ErrAlreadyStarted = errors.New("scheduler already started")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun returns the first activation of expr strictly after from.
// Seconds and descriptors such as @daily are rejected.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// WorkflowRunner runs a stored workflow by name. *workflows.Service
// satisfies it.
type WorkflowRunner interface {
	Run(ctx context.Context, name string, overrides map[string]string, trigger string) (*engine.Report, error)
}

type Option func(*Scheduler)

// WithInterval overrides the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

type Scheduler struct {
	store    store.Store
	runner   WorkflowRunner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	claims   *claimSet

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler. logger may be nil.
func NewScheduler(s store.Store, runner WorkflowRunner, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sched := &Scheduler{
		store:    s,
		runner:   runner,
		logger:   logger,
		interval: DefaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
		claims:   newClaimSet(),
	}
	for _, opt := range opts {
		opt(sched)
	}
	return sched
}

// AddJob schedules an existing workflow. vars are applied as run overrides.
func (s *Scheduler) AddJob(ctx context.Context, workflow, cronExpr string, vars map[string]string) (*store.ScheduledJob, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	next, err := NextRun(cronExpr, s.now())
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	if _, err := s.store.GetWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	job := &store.ScheduledJob{
		Workflow:       workflow,
		CronExpression: cronExpr,
		Variables:      vars,
		Enabled:        true,
		NextRunAt:      &next,
	}
	if err := s.store.CreateScheduledJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "scheduled job added",
		slog.String("job_id", job.ID),
		slog.String("workflow", workflow),
		slog.String("cron", cronExpr),
		slog.Time("next_run_at", next))
	return job, nil
}

func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	return s.store.DeleteScheduledJob(ctx, id)
}

// SetEnabled pauses or resumes a job. Resuming moves the next run to the
// next activation from now, so a long pause does not fire a stale run.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	job, err := s.store.GetScheduledJob(ctx, id)
	if err != nil {
		return err
	}
	update := store.ScheduledJobUpdate{Enabled: &enabled}
	if enabled {
		next, err := NextRun(job.CronExpression, s.now())
		if err != nil {
			return err
		}
		update.NextRunAt = &next
	}
	return s.store.UpdateScheduledJob(ctx, id, update)
}

// ListJobs returns scheduled jobs, all of them when workflow is empty.
func (s *Scheduler) ListJobs(ctx context.Context, workflow string) ([]*store.ScheduledJob, error) {
	return s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Workflow: workflow})
}

// Start polls in the background until Stop or ctx ends. The first poll
// happens immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for an in-progress poll. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
