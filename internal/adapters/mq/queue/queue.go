// Package queue carries ledger follow-up tasks from the coordinator to the
// worker pool. Port calls are applied out-of-band so no per-session lock is
// ever held across a slow external call.
package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/metrics"
)

// defaultCapacity bounds the in-memory task queue.
const defaultCapacity = 10_000

// Kind names a ledger follow-up operation.
type Kind string

// Task kinds.
const (
	// KindRefund returns an initiator's stake after an expired session.
	KindRefund Kind = "refund"
)

// Task is one ledger follow-up. ID is the idempotency key; workers skip a
// task whose ID has already been applied.
type Task struct {
	ID        string
	Kind      Kind
	SessionID uuid.UUID
	Wallet    string
	Amount    model.Amount
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, t Task) bool

	// Dequeue returns a channel receiving tasks as they become available.
	// The channel is closed when the queue closes.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the current number of queued tasks.
	Len(ctx context.Context) int

	// Close shuts the queue down; no new tasks are accepted afterwards.
	Close() error
}

// ensure InMemoryQueue satisfies Queue.
var _ Queue = (*InMemoryQueue)(nil)

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory task queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.tasks = make(chan Task, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a task to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejection()
		return false
	}

	select {
	case q.tasks <- t:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.tasks))
		return true
	case <-ctx.Done():
		metrics.RecordQueueRejection()
		return false
	default:
		metrics.RecordQueueRejection()
		return false
	}
}

// Dequeue returns a channel receiving tasks as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for task := range q.tasks {
			select {
			case out <- task:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.tasks))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued tasks.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.tasks)
}

// Close shuts the queue down.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}
