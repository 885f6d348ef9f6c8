package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/gothrottle/internal/errors"
	"github.com/jzx17/gothrottle/pkg/types"
)

// Worker is the single goroutine that drains the queue and applies the rate window
type Worker struct {
	queue  *TaskQueue
	window *RateWindow
	state  int32 // atomic types.WorkerState
	done   chan struct{}

	// statistics
	executed      int64
	failed        int64
	abandoned     int64
	throttles     int64
	throttledTime int64 // nanoseconds
	lastTaskTime  int64 // Unix nanosecond timestamp

	// error handling
	errorChain *errors.Chain

	// callbacks
	completionCallback func(types.TaskResult)
	abandonCallback    func(types.Task)

	// time operations
	clock  types.Clock
	logger *slog.Logger

	// synchronization
	mu sync.RWMutex
}

// NewWorker creates a worker consuming queue and throttled by window
func NewWorker(queue *TaskQueue, window *RateWindow, clock types.Clock, logger *slog.Logger) *Worker {
	if clock == nil {
		clock = types.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:      queue,
		window:     window,
		state:      int32(types.WorkerStateIdle),
		done:       make(chan struct{}),
		errorChain: errors.NewChain(logger, errors.NewLoggingHandler(logger)),
		clock:      clock,
		logger:     logger,
	}
}

// State returns the current Worker state
func (w *Worker) State() types.WorkerState {
	return types.WorkerState(atomic.LoadInt32(&w.state))
}

func (w *Worker) setState(state types.WorkerState) {
	atomic.StoreInt32(&w.state, int32(state))
}

// SetErrorHandler adds a callback that sees every task failure after it is logged
func (w *Worker) SetErrorHandler(handler types.ErrorHandler) error {
	if handler == nil {
		return nil
	}
	return w.errorChain.Add(errors.NewFuncHandler(handler))
}

// SetCompletionCallback sets the task completion callback
func (w *Worker) SetCompletionCallback(callback func(types.TaskResult)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completionCallback = callback
}

// SetAbandonCallback sets the callback invoked for every task dropped on stop
func (w *Worker) SetAbandonCallback(callback func(types.Task)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abandonCallback = callback
}

// Run executes the worker loop until ctx is done or the queue is closed and empty.
// On exit the queue is closed and any task still in it is abandoned.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(types.WorkerStateStopped)
	defer w.abandonRemaining()

	// tasks keep the dispatcher's context values but are never cancelled by shutdown
	taskCtx := context.WithoutCancel(ctx)

	w.logger.Debug("worker started",
		slog.Int("limit", w.window.Limit()),
		slog.Duration("interval", w.window.Interval()),
	)

	for {
		w.setState(types.WorkerStateIdle)

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Debug("worker stopping", slog.String("reason", err.Error()))
			return
		}
		if ctx.Err() != nil {
			// stopped while dequeuing: the task was never started
			w.abandon([]types.Task{task})
			w.logger.Debug("worker stopping", slog.String("reason", ctx.Err().Error()))
			return
		}

		w.processTask(taskCtx, task)

		wait := w.window.Record(w.clock.Now())
		if wait <= 0 {
			continue
		}

		// nothing will ever be dequeued again, no need to sit out the window
		if w.queue.IsClosed() && w.queue.Len() == 0 {
			w.logger.Debug("worker stopping", slog.String("reason", "queue drained"))
			return
		}

		if !w.throttle(ctx, wait) {
			w.logger.Debug("worker stopping", slog.String("reason", "interrupted while throttled"))
			return
		}
	}
}

// processTask processes a single task
func (w *Worker) processTask(ctx context.Context, task types.Task) {
	w.setState(types.WorkerStateRunning)

	// record start time
	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	// execute task
	err := w.executeTask(ctx, task)

	// calculate execution time
	executionTime := w.clock.Since(startTime)

	atomic.AddInt64(&w.executed, 1)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		err = w.handleError(ctx, err, task, executionTime)
	}

	w.mu.RLock()
	callback := w.completionCallback
	w.mu.RUnlock()

	if callback != nil {
		callback(types.TaskResult{
			TaskID:   task.ID(),
			Error:    err,
			Duration: executionTime,
		})
	}
}

// executeTask executes a task with panic recovery support
func (w *Worker) executeTask(ctx context.Context, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// record panic information
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			taskErr := types.NewTaskError(task.ID(), cause).
				WithContext("stack_trace", string(buf[:n]))
			taskErr.Panicked = true
			err = taskErr
		}
	}()

	return task.Execute(ctx)
}

// handleError wraps err as a TaskError and passes it through the error chain.
// A TaskError already describing this task is copied, never modified.
func (w *Worker) handleError(ctx context.Context, err error, task types.Task, elapsed time.Duration) error {
	taskErr := types.NewTaskError(task.ID(), err)
	if inner, ok := types.IsTaskError(err); ok && inner.TaskID == task.ID() {
		taskErr.Cause = inner.Cause
		taskErr.Panicked = inner.Panicked
		for k, v := range inner.Context {
			taskErr.Context[k] = v
		}
	}
	taskErr.Elapsed = elapsed

	w.errorChain.Handle(ctx, errors.NewErrorContext(taskErr, w.clock.Now()))
	return taskErr
}

// throttle suspends the worker for wait. It returns false if ctx ended the wait.
func (w *Worker) throttle(ctx context.Context, wait time.Duration) bool {
	start := w.clock.Now()
	timer := w.clock.NewTimer(wait)
	defer timer.Stop()

	// counted only once the timer exists so observers can advance a mock clock safely
	atomic.AddInt64(&w.throttles, 1)
	w.setState(types.WorkerStateThrottled)
	w.logger.Debug("rate window exhausted, throttling",
		slog.Duration("wait", wait),
		slog.Int("queued", w.queue.Len()),
	)

	select {
	case <-timer.C():
		atomic.AddInt64(&w.throttledTime, int64(w.clock.Since(start)))
		return true
	case <-ctx.Done():
		atomic.AddInt64(&w.throttledTime, int64(w.clock.Since(start)))
		return false
	}
}

// abandonRemaining closes the queue and accounts for every task left in it
func (w *Worker) abandonRemaining() {
	w.queue.Close()
	w.abandon(w.queue.Drain())
}

// abandon counts, logs and reports tasks that will never run
func (w *Worker) abandon(remaining []types.Task) {
	if len(remaining) == 0 {
		return
	}

	atomic.AddInt64(&w.abandoned, int64(len(remaining)))
	w.logger.Warn("abandoning queued tasks", slog.Int("count", len(remaining)))

	w.mu.RLock()
	callback := w.abandonCallback
	w.mu.RUnlock()

	for _, task := range remaining {
		w.logger.Debug("task abandoned", slog.String("task_id", task.ID()))
		if callback != nil {
			callback(task)
		}
	}
}

// Done returns a channel closed once Run has returned
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		State:         w.State(),
		Executed:      atomic.LoadInt64(&w.executed),
		Failed:        atomic.LoadInt64(&w.failed),
		Abandoned:     atomic.LoadInt64(&w.abandoned),
		Throttles:     atomic.LoadInt64(&w.throttles),
		ThrottledTime: time.Duration(atomic.LoadInt64(&w.throttledTime)),
		LastTaskTime:  time.Unix(0, atomic.LoadInt64(&w.lastTaskTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	State         types.WorkerState
	Executed      int64
	Failed        int64
	Abandoned     int64
	Throttles     int64
	ThrottledTime time.Duration
	LastTaskTime  time.Time
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	if ws.Executed == 0 {
		return 0
	}
	return float64(ws.Executed-ws.Failed) / float64(ws.Executed)
}
