package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

type subscription struct {
	ch     chan RunEvent
	filter Filter
	once   sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// MemoryHub is an in-process Hub. Publish never blocks: an event is dropped
// for any subscriber whose buffer is full, and counted in Dropped.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	closed bool
	buffer int

	ids     atomic.Uint64
	seq     atomic.Uint64
	dropped atomic.Uint64
	now     func() time.Time
}

// NewMemoryHub creates a hub. A non-positive buffer uses DefaultBuffer.
func NewMemoryHub(buffer ...int) *MemoryHub {
	size := DefaultBuffer
	if len(buffer) > 0 && buffer[0] > 0 {
		size = buffer[0]
	}
	return &MemoryHub{
		subs:   make(map[uint64]*subscription),
		buffer: size,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (h *MemoryHub) Publish(ctx context.Context, event RunEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}

	event.Seq = h.seq.Add(1)
	if event.At.IsZero() {
		event.At = h.now()
	}
	for _, sub := range h.subs {
		if !sub.filter.Match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan RunEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{ch: make(chan RunEvent, h.buffer), filter: filter}
	id := h.ids.Add(1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrHubClosed
	}
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for full buffers.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later Publish and Subscribe calls fail
// with ErrHubClosed.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
}

var _ Hub = (*MemoryHub)(nil)
