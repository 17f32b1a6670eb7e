// Package broadcast fans summaries out to any number of independent readers.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"aggregator/internal/model"
	"aggregator/pkg/exception"
)

// LaggedError reports that a subscriber fell behind and Skipped summaries were
// recycled before it could read them. The next Recv continues from the oldest
// retained summary.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, skipped %d summaries", e.Skipped)
}

// Hub keeps the last capacity summaries in a ring. Publishing never waits for
// readers.
type Hub struct {
	mu     sync.RWMutex
	ring   []model.Summary
	head   uint64
	notify chan struct{}
	closed bool

	subscribers atomic.Int64
}

// NewHub creates a hub retaining up to capacity unread summaries per reader.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 1
	}
	return &Hub{
		ring:   make([]model.Summary, capacity),
		notify: make(chan struct{}),
	}
}

// Publish appends a summary and wakes every waiting reader.
func (h *Hub) Publish(s model.Summary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return exception.ErrHubClosed
	}
	h.ring[h.head%uint64(len(h.ring))] = s
	h.head++
	close(h.notify)
	h.notify = make(chan struct{})

	return nil
}

// Close ends every stream. Readers still receive what they have not consumed
// yet, then ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.notify)
}

// Subscribers returns the number of active cursors.
func (h *Hub) Subscribers() int {
	return int(h.subscribers.Load())
}

// Subscribe creates a cursor positioned at the next published summary.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.RLock()
	next := h.head
	h.mu.RUnlock()

	h.subscribers.Add(1)
	return &Subscriber{
		ID:   uuid.New(),
		hub:  h,
		next: next,
	}
}

// Subscriber is one reader's cursor. It must be used by a single goroutine.
type Subscriber struct {
	ID uuid.UUID

	hub    *Hub
	next   uint64
	closed atomic.Bool
}

// Recv returns the next summary in publish order.
func (s *Subscriber) Recv(ctx context.Context) (model.Summary, error) {
	h := s.hub
	for {
		h.mu.RLock()
		if s.next < h.head {
			capacity := uint64(len(h.ring))
			if h.head-s.next > capacity {
				oldest := h.head - capacity
				skipped := oldest - s.next
				s.next = oldest
				h.mu.RUnlock()
				return model.Summary{}, &LaggedError{Skipped: skipped}
			}
			summary := h.ring[s.next%capacity]
			s.next++
			h.mu.RUnlock()
			return summary, nil
		}
		if h.closed {
			h.mu.RUnlock()
			return model.Summary{}, exception.ErrHubClosed
		}
		wait := h.notify
		h.mu.RUnlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return model.Summary{}, ctx.Err()
		}
	}
}

// Close retires the cursor.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.hub.subscribers.Add(-1)
	}
}
