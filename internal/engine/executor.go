package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/cmdkit/internal/expressions"
	"github.com/rendis/cmdkit/internal/logging"
	"github.com/rendis/cmdkit/internal/process"
	"github.com/rendis/cmdkit/internal/streaming"
	"github.com/rendis/cmdkit/pkg/schema"
)

// Runner launches one resolved command and waits for it to exit.
// *process.ShellRunner satisfies it.
type Runner interface {
	Run(ctx context.Context, req process.Request) (*process.Result, error)
}

// Config holds executor settings.
type Config struct {
	// MaxParallel bounds in-flight commands of a parallel run. 0 means all of them.
	MaxParallel int
	// Strict rejects runs whose commands still contain ${name} placeholders
	// after variables are merged.
	Strict bool
	// LiveOutput receives stdout of sequential runs as it is produced.
	LiveOutput io.Writer
	// CommandTimeout overrides the runner's per-command timeout.
	CommandTimeout time.Duration
}

// Executor runs workflows. It owns no state across runs: every call to Run
// works on its own variable snapshot and outcome set.
type Executor struct {
	runner Runner
	hub    streaming.Hub
	logger *slog.Logger
	cfg    Config
}

// NewExecutor creates an Executor. hub and logger may be nil.
func NewExecutor(runner Runner, hub streaming.Hub, logger *slog.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{runner: runner, hub: hub, logger: logger, cfg: cfg}
}

// Run executes wf with overrides merged over its stored variables.
//
// Structural problems return an error and no report. Individual command
// failures never do; they are reported through Report.Status. If ctx is
// cancelled mid-run the partial report is returned alongside a CANCELLED error.
func (e *Executor) Run(ctx context.Context, wf *schema.Workflow, overrides map[string]string) (*Report, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if len(wf.Commands) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow %q has no commands", wf.Name)
	}

	vars := expressions.MergeVars(wf.Variables, overrides)
	if e.cfg.Strict {
		for i, tmpl := range wf.Commands {
			if _, err := expressions.SubstituteStrict(tmpl, vars); err != nil {
				var se *schema.Error
				if errors.As(err, &se) {
					return nil, se.WithCommand(i)
				}
				return nil, err
			}
		}
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Workflow:  wf.Name,
		Parallel:  wf.Parallel,
		State:     schema.RunStateNotStarted,
		Variables: vars,
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRun(ctx, report.RunID, wf.Name)

	fsm := NewRunFSM(report.RunID)
	fsm.OnTransition(func(_, to schema.RunState) error {
		report.State = to
		e.publishRunEvent(ctx, report, to)
		return nil
	})

	if err := fsm.Transition(schema.RunStateRunning); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "workflow run started",
		slog.Int("commands", len(wf.Commands)),
		slog.Bool("parallel", wf.Parallel),
		slog.Bool("continue_on_error", wf.ContinueOnError))

	if wf.Parallel {
		report.Outcomes = e.runParallel(ctx, report, wf.Commands, vars)
	} else {
		report.Outcomes, report.HaltedEarly = e.runSequential(ctx, report, wf.Commands, vars, wf.ContinueOnError)
	}

	report.Status = DeriveStatus(report.Outcomes, report.HaltedEarly)
	report.CompletedAt = time.Now().UTC()
	report.DurationMs = report.CompletedAt.Sub(report.StartedAt).Milliseconds()

	if err := fsm.Transition(finalState(ctx.Err(), report.Status)); err != nil {
		return report, err
	}

	succeeded, failed := report.Counts()
	e.logger.InfoContext(ctx, "workflow run finished",
		slog.String("status", string(report.Status)),
		slog.String("state", string(report.State)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Bool("halted_early", report.HaltedEarly),
		slog.Int64("duration_ms", report.DurationMs))

	if report.State == schema.RunStateAborted {
		return report, schema.NewErrorf(schema.ErrCodeCancelled,
			"run of workflow %q aborted after %d of %d commands", wf.Name, len(report.Outcomes), len(wf.Commands)).
			WithCause(ctx.Err())
	}
	return report, nil
}

// runSequential resolves and dispatches one command at a time. The second
// return value reports whether a failure stopped the run early.
func (e *Executor) runSequential(ctx context.Context, report *Report, commands []string, vars map[string]string, continueOnError bool) ([]schema.CommandOutcome, bool) {
	outcomes := make([]schema.CommandOutcome, 0, len(commands))
	for i, tmpl := range commands {
		if ctx.Err() != nil {
			return outcomes, false
		}
		out := e.dispatch(ctx, report, i, expressions.Substitute(tmpl, vars), e.cfg.LiveOutput)
		outcomes = append(outcomes, out)
		if out.Failed() && !continueOnError {
			return outcomes, true
		}
	}
	return outcomes, false
}

// runParallel resolves every command from the same snapshot, dispatches them
// all, then waits for every one to settle. Outcomes keep their original index.
func (e *Executor) runParallel(ctx context.Context, report *Report, commands []string, vars map[string]string) []schema.CommandOutcome {
	resolved := make([]string, len(commands))
	for i, tmpl := range commands {
		resolved[i] = expressions.Substitute(tmpl, vars)
	}

	size := len(resolved)
	if e.cfg.MaxParallel > 0 && e.cfg.MaxParallel < size {
		size = e.cfg.MaxParallel
	}
	slots := NewSlots(size, func(r any) {
		e.logger.ErrorContext(ctx, "parallel dispatch panicked", slog.Any("panic", r))
	})

	outcomes := make([]schema.CommandOutcome, len(resolved))
	settled := make([]bool, len(resolved))
	for i, cmd := range resolved {
		err := slots.Go(ctx, func() {
			outcomes[i] = e.dispatch(ctx, report, i, cmd, nil)
			settled[i] = true
		})
		if err != nil {
			break
		}
	}
	slots.Wait()

	stats := slots.Stats()
	e.logger.DebugContext(ctx, "parallel dispatch settled",
		slog.Int64("started", stats.Started),
		slog.Int64("peak_in_flight", stats.Peak))

	// Only a cancelled run leaves commands undispatched.
	kept := outcomes[:0]
	for i := range outcomes {
		if settled[i] {
			kept = append(kept, outcomes[i])
		}
	}
	return kept
}

// dispatch runs one resolved command and turns the result into an outcome.
func (e *Executor) dispatch(ctx context.Context, report *Report, index int, resolved string, tee io.Writer) (out schema.CommandOutcome) {
	ctx = logging.WithCommandIndex(ctx, index)
	e.publish(ctx, report, &index, schema.EventCommandStarted, map[string]any{"command": resolved})
	e.logger.DebugContext(ctx, "dispatching command", slog.String("command", resolved))

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = schema.CommandOutcome{
				Index:           index,
				ResolvedCommand: resolved,
				Status:          schema.OutcomeFailed,
				ErrorDetail:     fmt.Sprintf("runner panic: %v", r),
				ExitCode:        -1,
				DurationMs:      time.Since(start).Milliseconds(),
			}
			e.settle(ctx, report, out)
		}
	}()

	res, err := e.runner.Run(ctx, process.Request{
		Command: resolved,
		Tee:     tee,
		Timeout: e.cfg.CommandTimeout,
	})
	out = newOutcome(index, resolved, res, err, time.Since(start))
	e.settle(ctx, report, out)
	return out
}

func (e *Executor) settle(ctx context.Context, report *Report, out schema.CommandOutcome) {
	index := out.Index
	if out.Failed() {
		e.logger.WarnContext(ctx, "command failed",
			slog.Int("exit_code", out.ExitCode),
			slog.String("error", out.ErrorDetail))
		e.publish(ctx, report, &index, schema.EventCommandFailed, out)
		return
	}
	e.logger.DebugContext(ctx, "command succeeded", slog.Int64("duration_ms", out.DurationMs))
	e.publish(ctx, report, &index, schema.EventCommandSucceeded, out)
}

func newOutcome(index int, resolved string, res *process.Result, err error, elapsed time.Duration) schema.CommandOutcome {
	out := schema.CommandOutcome{
		Index:           index,
		ResolvedCommand: resolved,
		DurationMs:      elapsed.Milliseconds(),
	}
	if err != nil || res == nil {
		out.Status = schema.OutcomeFailed
		out.ExitCode = -1
		out.ErrorDetail = launchDetail(err)
		return out
	}

	out.Output = res.Stdout
	out.ExitCode = res.ExitCode
	out.DurationMs = res.DurationMs
	if res.Success() {
		out.Status = schema.OutcomeSuccess
		return out
	}
	out.Status = schema.OutcomeFailed
	out.ErrorDetail = failureDetail(res)
	return out
}

func launchDetail(err error) string {
	if err == nil {
		return "runner returned no result"
	}
	var se *schema.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func failureDetail(res *process.Result) string {
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	if res.Killed {
		return fmt.Sprintf("killed after %dms", res.DurationMs)
	}
	return fmt.Sprintf("exit status %d", res.ExitCode)
}

func (e *Executor) publishRunEvent(ctx context.Context, report *Report, to schema.RunState) {
	switch to {
	case schema.RunStateRunning:
		e.publish(ctx, report, nil, schema.EventRunStarted, map[string]any{"parallel": report.Parallel})
	case schema.RunStateAborted:
		e.publish(ctx, report, nil, schema.EventRunAborted, map[string]any{"dispatched": len(report.Outcomes)})
	case schema.RunStateCompleted, schema.RunStateCompletedWithErrors:
		e.publish(ctx, report, nil, schema.EventRunCompleted, map[string]any{
			"status":       report.Status,
			"halted_early": report.HaltedEarly,
		})
	}
}

// publish is best-effort; it survives cancellation so run_aborted is delivered.
func (e *Executor) publish(ctx context.Context, report *Report, index *int, eventType string, payload any) {
	if e.hub == nil {
		return
	}
	var idx *int
	if index != nil {
		v := *index
		idx = &v
	}
	err := e.hub.Publish(context.WithoutCancel(ctx), streaming.RunEvent{
		RunID:        report.RunID,
		Workflow:     report.Workflow,
		CommandIndex: idx,
		Type:         eventType,
		Payload:      payload,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "publish run event", slog.String("event", eventType), slog.String("error", err.Error()))
	}
}
