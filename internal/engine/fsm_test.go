package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cmdkit/pkg/schema"
)

func TestRunFSM_ValidPaths(t *testing.T) {
	for _, terminal := range []schema.RunState{
		schema.RunStateCompleted,
		schema.RunStateCompletedWithErrors,
		schema.RunStateAborted,
	} {
		t.Run(string(terminal), func(t *testing.T) {
			fsm := NewRunFSM("run-1")
			assert.Equal(t, schema.RunStateNotStarted, fsm.State())

			require.NoError(t, fsm.Transition(schema.RunStateRunning))
			require.NoError(t, fsm.Transition(terminal))
			assert.Equal(t, terminal, fsm.State())
			assert.True(t, IsTerminal(fsm.State()))
		})
	}
}

func TestRunFSM_InvalidTransition(t *testing.T) {
	fsm := NewRunFSM("run-1")

	err := fsm.Transition(schema.RunStateCompleted)
	require.Error(t, err)

	var se *schema.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeInvalidTransition, se.Code)
	assert.Contains(t, se.Message, "not_started")
	assert.Contains(t, se.Message, "completed")
	assert.Equal(t, "run-1", se.Details["run_id"])
	assert.Equal(t, schema.RunStateNotStarted, fsm.State())
}

func TestRunFSM_TerminalStatesRejectTransitions(t *testing.T) {
	fsm := NewRunFSM("run-1")
	require.NoError(t, fsm.Transition(schema.RunStateRunning))
	require.NoError(t, fsm.Transition(schema.RunStateAborted))

	for _, to := range []schema.RunState{schema.RunStateRunning, schema.RunStateCompleted, schema.RunStateNotStarted} {
		err := fsm.Transition(to)
		assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition), "to=%s", to)
	}
	assert.Equal(t, schema.RunStateAborted, fsm.State())
}

func TestRunFSM_NoPausedState(t *testing.T) {
	fsm := NewRunFSM("run-1")
	require.NoError(t, fsm.Transition(schema.RunStateRunning))
	assert.Error(t, fsm.Transition(schema.RunState("paused")))
	assert.Error(t, fsm.Transition(schema.RunStateRunning))
}

func TestRunFSM_Hooks(t *testing.T) {
	fsm := NewRunFSM("run-1")

	var seen []string
	fsm.OnTransition(func(from, to schema.RunState) error {
		seen = append(seen, string(from)+"->"+string(to))
		return nil
	})

	require.NoError(t, fsm.Transition(schema.RunStateRunning))
	require.NoError(t, fsm.Transition(schema.RunStateCompletedWithErrors))
	assert.Equal(t, []string{"not_started->running", "running->completed_with_errors"}, seen)
}

func TestRunFSM_HookErrorPropagates(t *testing.T) {
	fsm := NewRunFSM("run-1")
	fsm.OnTransition(func(_, _ schema.RunState) error { return errors.New("hook failed") })

	err := fsm.Transition(schema.RunStateRunning)
	require.EqualError(t, err, "hook failed")
	assert.Equal(t, schema.RunStateRunning, fsm.State())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(schema.RunStateNotStarted))
	assert.False(t, IsTerminal(schema.RunStateRunning))
	assert.False(t, IsTerminal(schema.RunState("unknown")))
	assert.True(t, IsTerminal(schema.RunStateCompleted))
}
