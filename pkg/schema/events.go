package schema

// Event type constants published while a workflow runs.
const (
	EventRunStarted       = "run_started"
	EventRunCompleted     = "run_completed"
	EventRunAborted       = "run_aborted"
	EventCommandStarted   = "command_started"
	EventCommandSucceeded = "command_succeeded"
	EventCommandFailed    = "command_failed"
)

// RunState is the lifecycle state of a single workflow run.
type RunState string

const (
	RunStateNotStarted          RunState = "not_started"
	RunStateRunning             RunState = "running"
	RunStateCompleted           RunState = "completed"
	RunStateCompletedWithErrors RunState = "completed_with_errors"
	RunStateAborted             RunState = "aborted"
)

// RunStatus is the aggregate outcome of a workflow run.
type RunStatus string

const (
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialFailure RunStatus = "partial_failure"
	RunStatusFailed         RunStatus = "failed"
)

// OutcomeStatus is the result of a single command within a run.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// CommandOutcome records what happened to one command of a run.
type CommandOutcome struct {
	Index           int           `json:"index"`
	ResolvedCommand string        `json:"resolved_command"`
	Status          OutcomeStatus `json:"status"`
	Output          string        `json:"output,omitempty"`
	ErrorDetail     string        `json:"error_detail,omitempty"`
	ExitCode        int           `json:"exit_code"`
	DurationMs      int64         `json:"duration_ms"`
}

// Failed reports whether the command failed.
func (o CommandOutcome) Failed() bool {
	return o.Status == OutcomeFailed
}
