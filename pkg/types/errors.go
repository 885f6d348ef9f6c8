// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrInvalidConfig indicates the dispatcher configuration was rejected
	ErrInvalidConfig = errors.New("invalid config")

	// ErrClosed indicates the dispatcher no longer accepts tasks
	ErrClosed = errors.New("dispatcher is closed")

	// ErrQueueFull indicates a bounded task queue is at capacity
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed indicates the task queue is closed and has no more items
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrNilTask indicates a nil task was submitted
	ErrNilTask = errors.New("task cannot be nil")

	// ErrTimeout indicates operation timeout
	ErrTimeout = errors.New("operation timeout")
)

// TaskError represents a task that returned an error or panicked inside the worker
type TaskError struct {
	// TaskID identifies the failed task
	TaskID string

	// Cause is the underlying error
	Cause error

	// Panicked reports whether the task panicked rather than returning an error
	Panicked bool

	// Elapsed is how long the task ran before failing
	Elapsed time.Duration

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Cause)
	}
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewTaskError creates a new task error
func NewTaskError(taskID string, cause error) *TaskError {
	return &TaskError{
		TaskID:  taskID,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}

// IsTaskError reports whether err carries a TaskError and returns it
func IsTaskError(err error) (*TaskError, bool) {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr, true
	}
	return nil, false
}
