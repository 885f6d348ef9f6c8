// Package types defines core interfaces and types for the throttled dispatcher
package types

import (
	"context"
	"time"
)

// Task defines the task interface
type Task interface {
	// Execute executes the task
	Execute(ctx context.Context) error

	// ID returns the task ID (for log correlation)
	ID() string
}

// Submitter accepts tasks for asynchronous execution
type Submitter interface {
	// Submit enqueues a task and returns without running it
	Submit(task Task) error
}

// Dispatcher defines the bounded-rate dispatcher interface
type Dispatcher interface {
	Submitter

	// SubmitFunc wraps fn in a task and submits it
	SubmitFunc(fn func(ctx context.Context) error) error

	// Shutdown signals the worker to stop after the in-flight task
	Shutdown() error

	// Wait blocks until the worker has stopped
	Wait(ctx context.Context) error

	// Stats returns dispatcher statistics
	Stats() DispatcherStats
}

// WorkerState defines the state of the throttled worker
type WorkerState int32

const (
	// WorkerStateIdle worker is blocked waiting for a task
	WorkerStateIdle WorkerState = iota
	// WorkerStateRunning worker is executing a task
	WorkerStateRunning
	// WorkerStateThrottled worker is suspended until the rate window lapses
	WorkerStateThrottled
	// WorkerStateStopped worker has exited its loop
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateRunning:
		return "running"
	case WorkerStateThrottled:
		return "throttled"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WindowSnapshot is a point-in-time copy of the rate window
type WindowSnapshot struct {
	// Start is when the current window opened
	Start time.Time

	// Count is the number of executions recorded since Start
	Count int

	// Limit is the configured executions per interval
	Limit int

	// Interval is the configured window length
	Interval time.Duration
}

// Remaining returns how many executions the window admits before throttling
func (ws WindowSnapshot) Remaining() int {
	if ws.Count >= ws.Limit {
		return 0
	}
	return ws.Limit - ws.Count
}

// DispatcherStats defines dispatcher statistics
type DispatcherStats struct {
	// State is the current worker state
	State WorkerState

	// Submitted is the number of tasks accepted by Submit
	Submitted int64

	// Executed is the number of tasks the worker ran, failed ones included
	Executed int64

	// Failed is the number of tasks that returned an error or panicked
	Failed int64

	// Abandoned is the number of queued tasks dropped by shutdown
	Abandoned int64

	// Throttles is the number of times the worker suspended on a full window
	Throttles int64

	// ThrottledTime is the total time spent suspended
	ThrottledTime time.Duration

	// QueueLength is the current number of tasks in the queue
	QueueLength int

	// Window is the rate window at the time of the call
	Window WindowSnapshot
}

// TaskResult describes a finished task execution
type TaskResult struct {
	// TaskID identifies the task
	TaskID string

	// Error is nil on success, otherwise a *TaskError
	Error error

	// Duration is the execution time
	Duration time.Duration
}

// ErrorHandler defines an error handling function
type ErrorHandler func(error) error
