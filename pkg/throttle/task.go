package throttle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jzx17/gothrottle/pkg/types"
)

// taskIDCounter is the global task ID counter
var taskIDCounter int64

// BasicTask is the basic implementation of Task interface
type BasicTask struct {
	id string
	fn func(ctx context.Context) error
}

// NewBasicTask creates a new basic task with a generated ID
func NewBasicTask(fn func(ctx context.Context) error) *BasicTask {
	id := atomic.AddInt64(&taskIDCounter, 1)
	return &BasicTask{
		id: fmt.Sprintf("task-%d", id),
		fn: fn,
	}
}

// NewBasicTaskWithID creates a basic task with custom ID
func NewBasicTaskWithID(id string, fn func(ctx context.Context) error) *BasicTask {
	return &BasicTask{
		id: id,
		fn: fn,
	}
}

// Execute executes the task
func (t *BasicTask) Execute(ctx context.Context) error {
	if t.fn == nil {
		return fmt.Errorf("task %s has no execution function", t.id)
	}
	return t.fn(ctx)
}

// ID returns the task ID
func (t *BasicTask) ID() string {
	return t.id
}

// TaskWithTimeout bounds the execution time of a wrapped task
type TaskWithTimeout struct {
	types.Task
	timeout time.Duration
}

// NewTaskWithTimeout wraps task so its context expires after timeout.
// A non-positive timeout leaves the task unbounded.
func NewTaskWithTimeout(task types.Task, timeout time.Duration) *TaskWithTimeout {
	return &TaskWithTimeout{
		Task:    task,
		timeout: timeout,
	}
}

// Execute executes the wrapped task with its deadline applied
func (tt *TaskWithTimeout) Execute(ctx context.Context) error {
	if tt.timeout <= 0 {
		return tt.Task.Execute(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, tt.timeout)
	defer cancel()

	return tt.Task.Execute(ctx)
}

// Timeout returns the configured timeout
func (tt *TaskWithTimeout) Timeout() time.Duration {
	return tt.timeout
}
