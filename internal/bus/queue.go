package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"aggregator/internal/model"
	"aggregator/pkg/exception"
)

// Queue is a bounded many-producer, single-consumer snapshot queue.
// Producers block while it is full; nothing is ever dropped.
type Queue struct {
	ch chan model.Snapshot

	producers    atomic.Int64
	sendersGone  chan struct{}
	sendersOnce  sync.Once
	receiverGone chan struct{}
	receiverOnce sync.Once
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:           make(chan model.Snapshot, capacity),
		sendersGone:  make(chan struct{}),
		receiverGone: make(chan struct{}),
	}
}

// Len returns the number of buffered snapshots.
func (q *Queue) Len() int {
	return len(q.ch)
}

// NewProducer registers a writer. Register every producer before closing any of
// them: the queue is permanently closed once the producer count drops to zero.
func (q *Queue) NewProducer() *Producer {
	p := &Producer{q: q}
	select {
	case <-q.sendersGone:
		p.closed.Store(true)
	default:
		q.producers.Add(1)
	}
	return p
}

// Receive returns the next snapshot in FIFO order. It returns ErrQueueClosed
// after every producer closed and the buffer is drained.
func (q *Queue) Receive(ctx context.Context) (model.Snapshot, error) {
	select {
	case s := <-q.ch:
		return s, nil
	case <-ctx.Done():
		return model.Snapshot{}, ctx.Err()
	case <-q.sendersGone:
		select {
		case s := <-q.ch:
			return s, nil
		default:
			return model.Snapshot{}, exception.ErrQueueClosed
		}
	}
}

// CloseReceiver marks the consumer as gone. Pending and future publishes fail
// with ErrQueueClosed instead of blocking.
func (q *Queue) CloseReceiver() {
	q.receiverOnce.Do(func() {
		close(q.receiverGone)
	})
}

func (q *Queue) releaseProducer() {
	if q.producers.Add(-1) == 0 {
		q.sendersOnce.Do(func() {
			close(q.sendersGone)
		})
	}
}

// Producer is one writer's handle on the queue.
type Producer struct {
	q      *Queue
	closed atomic.Bool
}

// Publish enqueues a snapshot, blocking while the queue is full.
func (p *Producer) Publish(ctx context.Context, s model.Snapshot) error {
	if p.closed.Load() {
		return exception.ErrQueueClosed
	}
	select {
	case <-p.q.receiverGone:
		return exception.ErrQueueClosed
	default:
	}

	select {
	case p.q.ch <- s:
		return nil
	case <-p.q.receiverGone:
		return exception.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the producer. Safe to call more than once.
func (p *Producer) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.q.releaseProducer()
	}
}
