// Package cleanup runs deferred one-shot teardown actions, such as deleting
// an ephemeral debug pod once its TTL expires.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rendis/cmdkit/pkg/schema"
)

// Func is a teardown action.
type Func func(ctx context.Context) error

// Pending describes a scheduled action that has not fired yet.
type Pending struct {
	ID  string    `json:"id"`
	Due time.Time `json:"due"`
}

type entry struct {
	timer *time.Timer
	due   time.Time
	fn    Func
}

// Timers holds one-shot actions keyed by id. Safe for concurrent use.
type Timers struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*entry
	closed  bool

	wg sync.WaitGroup
}

// New creates an empty Timers. logger may be nil.
func New(logger *slog.Logger) *Timers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Timers{logger: logger, pending: make(map[string]*entry)}
}

// Schedule arranges for fn to run once after delay. Scheduling an id that is
// already pending replaces the earlier action.
func (t *Timers) Schedule(id string, delay time.Duration, fn Func) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "cleanup id is required")
	}
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "cleanup %q has no action", id)
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "cleanup timers are closed; cannot schedule %q", id)
	}
	if old, ok := t.pending[id]; ok {
		old.timer.Stop()
	}

	e := &entry{due: time.Now().Add(delay), fn: fn}
	e.timer = time.AfterFunc(delay, func() { t.fire(id, e) })
	t.pending[id] = e

	t.logger.Debug("cleanup scheduled", "cleanup_id", id, "delay", delay)
	return nil
}

// fire runs e if it is still the pending action for id.
func (t *Timers) fire(id string, e *entry) {
	t.mu.Lock()
	if t.pending[id] != e {
		t.mu.Unlock()
		return
	}
	delete(t.pending, id)
	t.wg.Add(1)
	t.mu.Unlock()

	defer t.wg.Done()
	if err := t.run(context.Background(), id, e.fn); err != nil {
		t.logger.Error("cleanup failed", "cleanup_id", id, "error", err)
	}
}

func (t *Timers) run(ctx context.Context, id string, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup %q panicked: %v", id, r)
		}
	}()
	t.logger.Info("running cleanup", "cleanup_id", id)
	return fn(ctx)
}

// Cancel drops a pending action. It reports whether one was pending.
func (t *Timers) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.pending, id)
	return true
}

// Pending lists actions that have not fired, soonest first.
func (t *Timers) Pending() []Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Pending, 0, len(t.pending))
	for id, e := range t.pending {
		out = append(out, Pending{ID: id, Due: e.due})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Due.Equal(out[j].Due) {
			return out[i].ID < out[j].ID
		}
		return out[i].Due.Before(out[j].Due)
	})
	return out
}

// Flush runs every pending action now, in due order, and waits for actions
// already fired by their timers.
func (t *Timers) Flush(ctx context.Context) error {
	t.mu.Lock()
	due := make([]Pending, 0, len(t.pending))
	fns := make(map[string]Func, len(t.pending))
	for id, e := range t.pending {
		e.timer.Stop()
		due = append(due, Pending{ID: id, Due: e.due})
		fns[id] = e.fn
	}
	t.pending = make(map[string]*entry)
	t.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Due.Before(due[j].Due) })

	var errs []error
	for _, p := range due {
		if err := t.run(ctx, p.ID, fns[p.ID]); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %q: %w", p.ID, err))
		}
	}
	t.wg.Wait()
	return errors.Join(errs...)
}

// Close flushes pending actions and rejects further Schedule calls.
func (t *Timers) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.Flush(ctx)
}
