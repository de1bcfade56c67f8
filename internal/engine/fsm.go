package engine

import (
	"slices"
	"sync"

	"github.com/rendis/cmdkit/pkg/schema"
)

// TransitionHook is called after a run state transition has been applied.
type TransitionHook func(from, to schema.RunState) error

// ValidRunTransitions defines the allowed state transitions for a run.
// There is no paused state; a run goes straight from running to a terminal state.
var ValidRunTransitions = map[schema.RunState][]schema.RunState{
	schema.RunStateNotStarted:          {schema.RunStateRunning},
	schema.RunStateRunning:             {schema.RunStateCompleted, schema.RunStateCompletedWithErrors, schema.RunStateAborted},
	schema.RunStateCompleted:           {},
	schema.RunStateCompletedWithErrors: {},
	schema.RunStateAborted:             {},
}

// RunFSM tracks the lifecycle of one workflow run.
type RunFSM struct {
	mu    sync.Mutex
	runID string
	state schema.RunState
	hooks []TransitionHook
}

// NewRunFSM creates an FSM in the not_started state.
func NewRunFSM(runID string) *RunFSM {
	return &RunFSM{runID: runID, state: schema.RunStateNotStarted}
}

// State returns the current state.
func (f *RunFSM) State() schema.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnTransition registers a hook called after every successful transition.
func (f *RunFSM) OnTransition(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

// Transition moves the run to the given state. Illegal moves return an
// INVALID_TRANSITION error and leave the state untouched.
func (f *RunFSM) Transition(to schema.RunState) error {
	f.mu.Lock()
	from := f.state
	if !isValidRunTransition(from, to) {
		f.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": f.runID, "from": string(from), "to": string(to)})
	}
	f.state = to
	hooks := slices.Clone(f.hooks)
	f.mu.Unlock()

	for _, hook := range hooks {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s schema.RunState) bool {
	allowed, ok := ValidRunTransitions[s]
	return ok && len(allowed) == 0
}

func isValidRunTransition(from, to schema.RunState) bool {
	allowed, ok := ValidRunTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}
