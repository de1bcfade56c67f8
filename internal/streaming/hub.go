package streaming

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rendis/cmdkit/pkg/schema"
)

// ErrHubClosed is returned by a hub after Close.
var ErrHubClosed = errors.New("event hub closed")

// RunEvent is a progress notification emitted while a workflow runs.
// Seq and At are stamped by the hub on publish.
type RunEvent struct {
	Seq          uint64    `json:"seq"`
	At           time.Time `json:"at"`
	RunID        string    `json:"run_id"`
	Workflow     string    `json:"workflow,omitempty"`
	CommandIndex *int      `json:"command_index,omitempty"`
	Type         string    `json:"type"`
	Payload      any       `json:"payload,omitempty"`
}

// Terminal reports whether e is the last event of its run.
func (e RunEvent) Terminal() bool {
	return e.Type == schema.EventRunCompleted || e.Type == schema.EventRunAborted
}

// Filter selects events for a subscriber. Zero fields match everything.
type Filter struct {
	RunID    string   `json:"run_id,omitempty"`
	Workflow string   `json:"workflow,omitempty"`
	Types    []string `json:"types,omitempty"`
}

func (f Filter) Match(e RunEvent) bool {
	switch {
	case f.RunID != "" && f.RunID != e.RunID:
		return false
	case f.Workflow != "" && f.Workflow != e.Workflow:
		return false
	case len(f.Types) > 0 && !slices.Contains(f.Types, e.Type):
		return false
	}
	return true
}

// Hub fans run events out to subscribers. The returned cancel func closes
// the subscription channel and may be called more than once.
type Hub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter Filter) (<-chan RunEvent, func(), error)
}
