package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// SlotStats summarizes one parallel run's dispatch.
type SlotStats struct {
	Started int64 `json:"started"`
	Peak    int64 `json:"peak"`
	Panics  int64 `json:"panics"`
}

// Slots bounds how many commands of a parallel run are in flight.
// A Slots value serves a single run.
type Slots struct {
	sem chan struct{}
	wg  sync.WaitGroup

	inFlight atomic.Int64
	started  atomic.Int64
	peak     atomic.Int64
	panics   atomic.Int64
	onPanic  func(recovered any)
}

// NewSlots allows limit concurrent commands, at least one. onPanic may be nil.
func NewSlots(limit int, onPanic func(recovered any)) *Slots {
	if limit <= 0 {
		limit = 1
	}
	return &Slots{sem: make(chan struct{}, limit), onPanic: onPanic}
}

func (s *Slots) Limit() int { return cap(s.sem) }

// Go waits for a free slot and runs fn on its own goroutine. If ctx ends
// first fn never runs and ctx.Err() is returned.
func (s *Slots) Go(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.wg.Add(1)
	s.started.Add(1)
	s.trackPeak(s.inFlight.Add(1))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.panics.Add(1)
				if s.onPanic != nil {
					s.onPanic(r)
				}
			}
			s.inFlight.Add(-1)
			<-s.sem
			s.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Wait blocks until every started command has returned.
func (s *Slots) Wait() { s.wg.Wait() }

func (s *Slots) Stats() SlotStats {
	return SlotStats{
		Started: s.started.Load(),
		Peak:    s.peak.Load(),
		Panics:  s.panics.Load(),
	}
}

func (s *Slots) trackPeak(n int64) {
	for {
		cur := s.peak.Load()
		if n <= cur || s.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}
