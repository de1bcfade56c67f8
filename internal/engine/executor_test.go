package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cmdkit/internal/process"
	"github.com/rendis/cmdkit/internal/streaming"
	"github.com/rendis/cmdkit/pkg/schema"
)

// fakeRunner interprets commands by prefix:
//
//	fail...   exits 1 with stderr "boom"
//	exit2...  exits 2 with empty stderr
//	nolaunch  returns a launch error
//	block...  waits for ctx to be cancelled and reports a kill
//	sleep:N   sleeps N milliseconds then succeeds
//	panic     panics
//
// Anything else succeeds and echoes the command on stdout.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	tees  []io.Writer

	inflight    int64
	maxInflight int64

	// barrier, when > 0, holds every call until that many calls are in flight.
	barrier int64
	arrived int64
	release chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{})}
}

func (f *fakeRunner) Run(ctx context.Context, req process.Request) (*process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Command)
	f.tees = append(f.tees, req.Tee)
	f.mu.Unlock()

	cur := atomic.AddInt64(&f.inflight, 1)
	defer atomic.AddInt64(&f.inflight, -1)
	for {
		prev := atomic.LoadInt64(&f.maxInflight)
		if cur <= prev || atomic.CompareAndSwapInt64(&f.maxInflight, prev, cur) {
			break
		}
	}

	if f.barrier > 0 {
		if atomic.AddInt64(&f.arrived, 1) == f.barrier {
			close(f.release)
		}
		select {
		case <-f.release:
		case <-time.After(2 * time.Second):
			return &process.Result{ExitCode: 99, Stderr: "barrier timeout"}, nil
		}
	}

	cmd := req.Command
	switch {
	case strings.HasPrefix(cmd, "fail"):
		return &process.Result{ExitCode: 1, Stderr: "boom\n"}, nil
	case strings.HasPrefix(cmd, "exit2"):
		return &process.Result{ExitCode: 2}, nil
	case cmd == "nolaunch":
		return nil, schema.NewError(schema.ErrCodeExecution, "launch /bin/sh: no such file")
	case cmd == "panic":
		panic("runner exploded")
	case strings.HasPrefix(cmd, "block"):
		<-ctx.Done()
		return &process.Result{ExitCode: -1, Killed: true}, nil
	case strings.HasPrefix(cmd, "sleep:"):
		d, _ := time.ParseDuration(strings.TrimPrefix(cmd, "sleep:") + "ms")
		time.Sleep(d)
	}

	if req.Tee != nil {
		_, _ = io.WriteString(req.Tee, cmd+"\n")
	}
	return &process.Result{Stdout: cmd + "\n"}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newWorkflow(parallel, continueOnError bool, commands ...string) *schema.Workflow {
	return &schema.Workflow{
		Name:            "wf",
		Commands:        commands,
		Parallel:        parallel,
		ContinueOnError: continueOnError,
	}
}

func assertIndexed(t *testing.T, report *Report) {
	t.Helper()
	for i, o := range report.Outcomes {
		assert.Equal(t, i, o.Index, "outcome %d carries index %d", i, o.Index)
	}
}

func TestExecutor_DeployScenario(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	wf := &schema.Workflow{
		Name:      "deploy",
		Commands:  []string{"echo build:${env}", "echo push:${env}"},
		Variables: map[string]string{"env": "staging"},
	}

	report, err := exec.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo build:staging", "echo push:staging"}, runner.Calls())
	assert.Equal(t, schema.RunStatusSuccess, report.Status)
	assert.Equal(t, schema.RunStateCompleted, report.State)
	assert.False(t, report.HaltedEarly)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "deploy", report.Workflow)
	assertIndexed(t, report)

	report, err = exec.Run(context.Background(), wf, map[string]string{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, "echo build:prod", report.Outcomes[0].ResolvedCommand)
	assert.Equal(t, "echo push:prod", report.Outcomes[1].ResolvedCommand)
	assert.Equal(t, "staging", wf.Variables["env"], "overrides must not leak into the workflow")
}

func TestExecutor_AllSuccessBothModes(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		runner := newFakeRunner()
		exec := NewExecutor(runner, nil, nil, Config{})

		report, err := exec.Run(context.Background(), newWorkflow(parallel, false, "a", "b", "c"), nil)
		require.NoError(t, err)
		assert.Equal(t, schema.RunStatusSuccess, report.Status)
		require.Len(t, report.Outcomes, 3)
		_, failed := report.Counts()
		assert.Zero(t, failed)
		assertIndexed(t, report)
		assert.Equal(t, "b\n", report.Outcomes[1].Output)
	}
}

func TestExecutor_SequentialHaltOnFirstFailure(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(false, false, "fail-a", "b", "c"), nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, schema.OutcomeFailed, report.Outcomes[0].Status)
	assert.Equal(t, "boom", report.Outcomes[0].ErrorDetail)
	assert.Equal(t, 1, report.Outcomes[0].ExitCode)
	assert.True(t, report.HaltedEarly)
	assert.Equal(t, schema.RunStatusFailed, report.Status)
	assert.Equal(t, schema.RunStateCompletedWithErrors, report.State)
	assert.Equal(t, []string{"fail-a"}, runner.Calls())
}

func TestExecutor_SequentialHaltAfterSuccess(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(false, false, "a", "fail-b", "c"), nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.HaltedEarly)
	assert.Equal(t, schema.RunStatusFailed, report.Status)
	assert.Equal(t, []string{"a", "fail-b"}, runner.Calls())
}

func TestExecutor_SequentialContinueOnError(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(false, true, "a", "fail-b", "c"), nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assertIndexed(t, report)
	assert.Equal(t, schema.OutcomeSuccess, report.Outcomes[0].Status)
	assert.Equal(t, schema.OutcomeFailed, report.Outcomes[1].Status)
	assert.Equal(t, schema.OutcomeSuccess, report.Outcomes[2].Status)
	assert.False(t, report.HaltedEarly)
	assert.Equal(t, schema.RunStatusPartialFailure, report.Status)
	assert.Equal(t, []string{"a", "fail-b", "c"}, runner.Calls())
}

func TestExecutor_SequentialAllFailContinue(t *testing.T) {
	exec := NewExecutor(newFakeRunner(), nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(false, true, "fail-a", "fail-b"), nil)
	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 2)
	assert.False(t, report.HaltedEarly)
	assert.Equal(t, schema.RunStatusFailed, report.Status)
}

func TestExecutor_ParallelNoShortCircuit(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	// continueOnError=false is ignored in parallel mode.
	report, err := exec.Run(context.Background(), newWorkflow(true, false, "fail-a", "b", "c"), nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assertIndexed(t, report)
	assert.Equal(t, schema.OutcomeFailed, report.Outcomes[0].Status)
	assert.Equal(t, schema.OutcomeSuccess, report.Outcomes[1].Status)
	assert.Equal(t, schema.OutcomeSuccess, report.Outcomes[2].Status)
	assert.False(t, report.HaltedEarly)
	assert.Equal(t, schema.RunStatusPartialFailure, report.Status)
	assert.ElementsMatch(t, []string{"fail-a", "b", "c"}, runner.Calls())
}

func TestExecutor_ParallelAllDispatchedBeforeAwait(t *testing.T) {
	runner := newFakeRunner()
	runner.barrier = 4
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(true, false, "a", "b", "c", "d"), nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSuccess, report.Status)
	assert.Equal(t, int64(4), atomic.LoadInt64(&runner.maxInflight))
}

func TestExecutor_ParallelOrderIndependentOfCompletion(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(true, false, "sleep:60", "sleep:30", "sleep:1"), nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assertIndexed(t, report)
	assert.Equal(t, "sleep:60", report.Outcomes[0].ResolvedCommand)
	assert.Equal(t, "sleep:1", report.Outcomes[2].ResolvedCommand)
}

func TestExecutor_ParallelAllFailed(t *testing.T) {
	exec := NewExecutor(newFakeRunner(), nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(true, true, "fail-a", "fail-b"), nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, report.Status)
	assert.Len(t, report.Outcomes, 2)
}

func TestExecutor_ParallelMaxParallel(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{MaxParallel: 1})

	report, err := exec.Run(context.Background(), newWorkflow(true, false, "sleep:5", "sleep:5", "sleep:5"), nil)
	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 3)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runner.maxInflight))
}

func TestExecutor_ParallelSharedSnapshot(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	wf := newWorkflow(true, false, "echo ${v}", "echo $v", "echo ${w}")
	wf.Variables = map[string]string{"v": "one", "w": "two"}

	report, err := exec.Run(context.Background(), wf, map[string]string{"v": "uno"})
	require.NoError(t, err)
	assert.Equal(t, "echo uno", report.Outcomes[0].ResolvedCommand)
	assert.Equal(t, "echo uno", report.Outcomes[1].ResolvedCommand)
	assert.Equal(t, "echo two", report.Outcomes[2].ResolvedCommand)
	assert.Equal(t, map[string]string{"v": "uno", "w": "two"}, report.Variables)
}

func TestExecutor_ValidationErrors(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), nil, nil)
	assert.Nil(t, report)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	report, err = exec.Run(context.Background(), newWorkflow(false, false), nil)
	assert.Nil(t, report)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "no commands")

	assert.Empty(t, runner.Calls())
}

func TestExecutor_UnresolvedPassThrough(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(false, false, "echo ${missing} $HOME"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo ${missing} $HOME"}, runner.Calls())
	assert.Equal(t, schema.RunStatusSuccess, report.Status)
}

func TestExecutor_StrictRejectsUnresolved(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{Strict: true})

	wf := newWorkflow(false, false, "echo ${env}", "echo ${region} $HOME")
	wf.Variables = map[string]string{"env": "dev"}

	report, err := exec.Run(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Nil(t, report)

	var se *schema.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeValidation, se.Code)
	require.NotNil(t, se.Command)
	assert.Equal(t, 1, *se.Command)
	assert.Equal(t, []string{"region"}, se.Details["missing"])
	assert.Empty(t, runner.Calls())

	_, err = exec.Run(context.Background(), wf, map[string]string{"region": "eu"})
	require.NoError(t, err)
}

func TestExecutor_ErrorDetails(t *testing.T) {
	exec := NewExecutor(newFakeRunner(), nil, nil, Config{})

	report, err := exec.Run(context.Background(), newWorkflow(false, true, "exit2", "nolaunch", "panic"), nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, "exit status 2", report.Outcomes[0].ErrorDetail)
	assert.Equal(t, 2, report.Outcomes[0].ExitCode)

	assert.Equal(t, schema.OutcomeFailed, report.Outcomes[1].Status)
	assert.Equal(t, "launch /bin/sh: no such file", report.Outcomes[1].ErrorDetail)
	assert.Equal(t, -1, report.Outcomes[1].ExitCode)

	assert.Equal(t, schema.OutcomeFailed, report.Outcomes[2].Status)
	assert.Contains(t, report.Outcomes[2].ErrorDetail, "runner exploded")
	assert.Equal(t, schema.RunStatusFailed, report.Status)
}

func TestExecutor_SequentialCancellation(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	report, err := exec.Run(ctx, newWorkflow(false, true, "a", "block", "c"), nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeCancelled))
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, report)
	assert.Equal(t, schema.RunStateAborted, report.State)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, schema.OutcomeFailed, report.Outcomes[1].Status)
	assert.Equal(t, []string{"a", "block"}, runner.Calls())
}

func TestExecutor_ParallelCancellation(t *testing.T) {
	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := exec.Run(ctx, newWorkflow(true, false, "a", "block-1", "block-2"), nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeCancelled))
	require.NotNil(t, report)
	assert.Equal(t, schema.RunStateAborted, report.State)
	assert.Len(t, report.Outcomes, 3)
	assertIndexed(t, report)
}

func TestExecutor_LiveOutputSequentialOnly(t *testing.T) {
	var live bytes.Buffer

	runner := newFakeRunner()
	exec := NewExecutor(runner, nil, nil, Config{LiveOutput: &live})
	_, err := exec.Run(context.Background(), newWorkflow(false, false, "a", "b"), nil)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", live.String())

	live.Reset()
	runner = newFakeRunner()
	exec = NewExecutor(runner, nil, nil, Config{LiveOutput: &live})
	_, err = exec.Run(context.Background(), newWorkflow(true, false, "a", "b"), nil)
	require.NoError(t, err)
	assert.Empty(t, live.String())
	for _, tee := range runner.tees {
		assert.Nil(t, tee)
	}
}

func TestExecutor_PublishesEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.Filter{})
	require.NoError(t, err)
	defer cancel()

	exec := NewExecutor(newFakeRunner(), hub, nil, Config{})
	report, err := exec.Run(context.Background(), newWorkflow(false, false, "a", "fail-b"), nil)
	require.NoError(t, err)

	var types []string
	var indexes []int
	for len(types) < 6 {
		select {
		case ev := <-ch:
			assert.Equal(t, report.RunID, ev.RunID)
			assert.Equal(t, "wf", ev.Workflow)
			types = append(types, ev.Type)
			if ev.CommandIndex != nil {
				indexes = append(indexes, *ev.CommandIndex)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out after events %v", types)
		}
	}

	assert.Equal(t, []string{
		schema.EventRunStarted,
		schema.EventCommandStarted,
		schema.EventCommandSucceeded,
		schema.EventCommandStarted,
		schema.EventCommandFailed,
		schema.EventRunCompleted,
	}, types)
	assert.Equal(t, []int{0, 0, 1, 1}, indexes)
}

func TestExecutor_ConcurrentRunsAreIndependent(t *testing.T) {
	exec := NewExecutor(newFakeRunner(), nil, nil, Config{})
	wf := newWorkflow(true, false, "echo ${n}", "echo ${n}")

	var wg sync.WaitGroup
	reports := make([]*Report, 8)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := exec.Run(context.Background(), wf, map[string]string{"n": strings.Repeat("x", i+1)})
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, r := range reports {
		require.NotNil(t, r)
		ids[r.RunID] = true
		assert.Equal(t, "echo "+strings.Repeat("x", i+1), r.Outcomes[1].ResolvedCommand)
	}
	assert.Len(t, ids, len(reports))
}
