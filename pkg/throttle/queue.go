package throttle

import (
	"context"
	"sync"

	"github.com/jzx17/gothrottle/pkg/types"
)

// TaskQueue is a FIFO buffer between any number of producers and one consumer.
// A zero capacity means unbounded.
type TaskQueue struct {
	items    []types.Task
	capacity int
	closed   bool

	// notify holds at most one pending wake-up for the consumer
	notify chan struct{}
	done   chan struct{}

	mu sync.Mutex
}

// NewTaskQueue creates a queue; capacity <= 0 means unbounded
func NewTaskQueue(capacity int) *TaskQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &TaskQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue appends task to the tail of the queue
func (q *TaskQueue) Enqueue(task types.Task) error {
	if task == nil {
		return types.ErrNilTask
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return types.ErrQueueClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return types.ErrQueueFull
	}
	q.items = append(q.items, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes and returns the head of the queue, blocking while it is empty.
// It returns ctx.Err() once ctx is done, even if items are available, and
// types.ErrQueueClosed when the queue is closed and empty.
func (q *TaskQueue) Dequeue(ctx context.Context) (types.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			task := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) == 0 {
				// release the backing array once drained
				q.items = nil
			}
			q.mu.Unlock()
			return task, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, types.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-q.done:
		}
	}
}

// Close stops the queue from accepting tasks. Queued tasks stay dequeueable.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Drain removes and returns every queued task in FIFO order
func (q *TaskQueue) Drain() []types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.items
	q.items = nil
	return drained
}

// Len returns the number of queued tasks
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the queue bound, zero when unbounded
func (q *TaskQueue) Capacity() int {
	return q.capacity
}

// IsClosed reports whether Close has been called
func (q *TaskQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
