package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rendis/cmdkit/pkg/schema"
)

// Report is the aggregate result of one workflow run.
type Report struct {
	RunID       string                  `json:"run_id"`
	Workflow    string                  `json:"workflow"`
	Parallel    bool                    `json:"parallel"`
	Status      schema.RunStatus        `json:"status"`
	State       schema.RunState         `json:"state"`
	Outcomes    []schema.CommandOutcome `json:"outcomes"`
	HaltedEarly bool                    `json:"halted_early"`
	Variables   map[string]string       `json:"variables,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	DurationMs  int64                   `json:"duration_ms"`
}

// Counts returns the number of succeeded and failed outcomes.
func (r *Report) Counts() (succeeded, failed int) {
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}

// DeriveStatus computes the overall status of a run. A sequential run that
// halted on a failure is failed even when earlier commands succeeded.
func DeriveStatus(outcomes []schema.CommandOutcome, haltedEarly bool) schema.RunStatus {
	if haltedEarly || len(outcomes) == 0 {
		return schema.RunStatusFailed
	}
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	switch failed {
	case 0:
		return schema.RunStatusSuccess
	case len(outcomes):
		return schema.RunStatusFailed
	default:
		return schema.RunStatusPartialFailure
	}
}

// finalState maps a finished run to its terminal state.
func finalState(ctxErr error, status schema.RunStatus) schema.RunState {
	switch {
	case errors.Is(ctxErr, context.Canceled), errors.Is(ctxErr, context.DeadlineExceeded):
		return schema.RunStateAborted
	case status == schema.RunStatusSuccess:
		return schema.RunStateCompleted
	default:
		return schema.RunStateCompletedWithErrors
	}
}
