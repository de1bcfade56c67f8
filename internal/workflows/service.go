// Package workflows is the orchestration layer between the CLI/MCP surfaces
// and the executor: it loads definitions from the store, runs them and
// records the outcome.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/expressions"
	"github.com/rendis/cmdkit/internal/logging"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/internal/validation"
	"github.com/rendis/cmdkit/pkg/schema"
)

// ListOptions narrows List. Filter is a boolean expression over each
// workflow exposed as `item`, written in Lang (cel, expr or jq).
type ListOptions struct {
	Limit  int
	Offset int
	Filter string
	Lang   string
}

// Service manages stored workflows and runs them.
type Service struct {
	store     store.Store
	executor  *engine.Executor
	validator *validation.WorkflowValidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. logger may be nil.
func NewService(s store.Store, exec *engine.Executor, v *validation.WorkflowValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:     s,
		executor:  exec,
		validator: v,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new workflow. The returned result carries
// warnings even when the workflow was saved.
func (s *Service) Create(ctx context.Context, wf *schema.Workflow) (*schema.ValidationResult, error) {
	result := s.validator.Validate(wf)
	if err := result.ToError(); err != nil {
		return result, err
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return result, err
	}
	s.logger.Info("workflow created", "workflow", wf.Name, "commands", len(wf.Commands), "parallel", wf.Parallel)
	return result, nil
}

func (s *Service) Get(ctx context.Context, name string) (*schema.Workflow, error) {
	return s.store.GetWorkflow(ctx, name)
}

// List returns stored workflows ordered by name, optionally narrowed by a
// filter expression.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*schema.Workflow, error) {
	if opts.Filter == "" {
		return s.store.ListWorkflows(ctx, store.WorkflowFilter{Limit: opts.Limit, Offset: opts.Offset})
	}

	eng, err := expressions.NewEngine(opts.Lang)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		return nil, err
	}
	kept, err := expressions.Filter(ctx, eng, opts.Filter, all)
	if err != nil {
		return nil, err
	}
	return paginate(kept, opts.Limit, opts.Offset), nil
}

func (s *Service) Search(ctx context.Context, query string) ([]*schema.Workflow, error) {
	if strings.TrimSpace(query) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "search query is required")
	}
	return s.store.SearchWorkflows(ctx, query)
}

func (s *Service) Remove(ctx context.Context, name string) error {
	if err := s.store.DeleteWorkflow(ctx, name); err != nil {
		return err
	}
	s.logger.Info("workflow removed", "workflow", name)
	return nil
}

// Duplicate copies src under the name dst. Usage counters start fresh.
func (s *Service) Duplicate(ctx context.Context, src, dst string) (*schema.Workflow, error) {
	orig, err := s.store.GetWorkflow(ctx, src)
	if err != nil {
		return nil, err
	}
	cp := orig.Clone()
	cp.ID = ""
	cp.Name = dst
	cp.ExecutionCount = 0
	cp.LastExecuted = nil
	cp.CreatedAt = time.Time{}
	cp.UpdatedAt = time.Time{}

	if _, err := s.Create(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Run executes the named workflow with overrides merged over its stored
// variables, then bumps its execution counter and appends the run to
// history. A run interrupted by ctx is still recorded.
func (s *Service) Run(ctx context.Context, name string, overrides map[string]string, trigger string) (*engine.Report, error) {
	wf, err := s.store.GetWorkflow(ctx, name)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithTrigger(ctx, trigger)
	report, runErr := s.executor.Run(ctx, wf, overrides)
	if report == nil {
		return nil, runErr
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.RecordExecution(persistCtx, wf.Name, report.StartedAt); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("record execution: %w", err))
	}
	if err := s.store.SaveRun(persistCtx, toRun(report, trigger)); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("save run: %w", err))
	}
	return report, runErr
}

// History returns the most recent runs of a workflow, newest first.
func (s *Service) History(ctx context.Context, name string, limit int) ([]*store.Run, error) {
	return s.store.ListRuns(ctx, store.RunFilter{Workflow: name, Limit: limit})
}

func toRun(r *engine.Report, trigger string) *store.Run {
	return &store.Run{
		ID:          r.RunID,
		Workflow:    r.Workflow,
		Trigger:     trigger,
		Status:      r.Status,
		State:       r.State,
		Parallel:    r.Parallel,
		HaltedEarly: r.HaltedEarly,
		Outcomes:    r.Outcomes,
		Variables:   r.Variables,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMs:  r.DurationMs,
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ParseVars parses a "key=value,key2=value2" override list. The first '='
// of each pair separates key from value, so values may contain '='.
func ParseVars(spec string) (map[string]string, error) {
	vars := make(map[string]string)
	if strings.TrimSpace(spec) == "" {
		return vars, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"invalid variable %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
