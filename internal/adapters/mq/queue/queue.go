// Package queue buffers raw samples between the transports and the ingest worker.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/pkg/metrics"
)

const defaultCapacity = 1024

// Item is one queued sample with its arrival time.
type Item struct {
	Sample     model.RawSample
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a sample. It never blocks; ErrFull and ErrClosed report rejection.
	Enqueue(ctx context.Context, s model.RawSample) error

	// Dequeue returns the channel consumers read from.
	// It is closed, after the remaining items, once the queue is closed.
	Dequeue() <-chan Item

	// Len returns the number of queued samples.
	Len() int

	// Cap returns the capacity.
	Cap() int

	// Close stops accepting samples.
	Close() error
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Item, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds a sample to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s model.RawSample) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.items <- Item{Sample: s, EnqueuedAt: time.Now()}:
		metrics.RecordQueueEnqueue()
		q.publish()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Item {
	return q.items
}

// Len returns the current number of queued samples.
func (q *InMemoryQueue) Len() int {
	return len(q.items)
}

// Cap returns the capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close stops the queue. Items already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Observe records a dequeue and refreshes size metrics.
func (q *InMemoryQueue) Observe(it Item) {
	metrics.RecordQueueDequeue()
	metrics.RecordQueueProcessingLatency(float64(time.Since(it.EnqueuedAt).Microseconds()) / 1000)
	q.publish()
}

func (q *InMemoryQueue) publish() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
