package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/cmdkit/internal/store"
)

// claimSet keeps a job from running twice at once, e.g. when a slow run
// overlaps the next poll.
type claimSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{ids: make(map[string]struct{})}
}

// claim returns false if id is already held.
func (c *claimSet) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.ids[id]; held {
		return false
	}
	c.ids[id] = struct{}{}
	return true
}

func (c *claimSet) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, id)
}

// selector decides whether an enabled job should run at now.
type selector func(job *store.ScheduledJob, now time.Time) bool

// due selects jobs whose next run has arrived. A job with no next run
// recorded is due immediately.
func due(job *store.ScheduledJob, now time.Time) bool {
	return job.NextRunAt == nil || !job.NextRunAt.After(now)
}

// missed selects jobs whose next run passed before now.
func missed(job *store.ScheduledJob, now time.Time) bool {
	return job.NextRunAt != nil && job.NextRunAt.Before(now)
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.runSelected(ctx, due); err != nil {
		s.logger.ErrorContext(ctx, "scheduler poll failed", slog.String("error", err.Error()))
	}
}

// RecoverMissed runs, once each, the enabled jobs whose next run passed
// while no scheduler was polling.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	n, err := s.runSelected(ctx, missed)
	if err != nil {
		return fmt.Errorf("recover missed jobs: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "recovered missed jobs", slog.Int("count", n))
	}
	return nil
}

// runSelected runs every enabled job pick accepts, in store order, and
// returns how many ran and were recorded.
func (s *Scheduler) runSelected(ctx context.Context, pick selector) (int, error) {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		return 0, fmt.Errorf("list scheduled jobs: %w", err)
	}

	now := s.now()
	ran := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !pick(job, now) || !s.claims.claim(job.ID) {
			continue
		}
		err := s.runJob(ctx, job, now)
		s.claims.release(job.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "scheduled job not recorded",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
			continue
		}
		ran++
	}
	return ran, nil
}

// runJob runs the job's workflow and records its status and next run. A
// failed run is still recorded; only a store failure is returned.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	log := s.logger.With(slog.String("job_id", job.ID), slog.String("workflow", job.Workflow))
	log.InfoContext(ctx, "running scheduled job")

	status := StatusError
	report, err := s.runner.Run(ctx, job.Workflow, job.Variables, store.TriggerSchedule)
	if report != nil {
		status = string(report.Status)
	}
	if err != nil {
		log.ErrorContext(ctx, "scheduled run failed", slog.String("error", err.Error()))
	}

	next, err := NextRun(job.CronExpression, now)
	if err != nil {
		return err
	}
	return s.store.UpdateScheduledJob(context.WithoutCancel(ctx), job.ID, store.ScheduledJobUpdate{
		LastRunAt:     &now,
		NextRunAt:     &next,
		LastRunStatus: status,
	})
}
