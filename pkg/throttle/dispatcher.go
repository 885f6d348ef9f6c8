package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/gothrottle/pkg/types"
)

// ShutdownPolicy decides what happens to queued tasks when Shutdown is called
type ShutdownPolicy int

const (
	// ShutdownAbandon stops after the in-flight task; queued tasks are abandoned
	ShutdownAbandon ShutdownPolicy = iota
	// ShutdownDrain stops accepting tasks but runs every queued one first
	ShutdownDrain
)

// String returns the string representation of ShutdownPolicy
func (p ShutdownPolicy) String() string {
	switch p {
	case ShutdownAbandon:
		return "abandon"
	case ShutdownDrain:
		return "drain"
	default:
		return "unknown"
	}
}

// Config defines configuration for the dispatcher
type Config struct {
	// Limit is the number of executions allowed per Interval
	Limit int

	// Interval is the length of the rate window
	Interval time.Duration

	// QueueCapacity bounds the task queue, zero means unbounded
	QueueCapacity int

	// ShutdownPolicy decides the fate of queued tasks on Shutdown
	ShutdownPolicy ShutdownPolicy

	// StopTimeout bounds how long Close waits for the worker
	StopTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger receives structured logs (optional, defaults to slog.Default())
	Logger *slog.Logger

	// ErrorHandler sees every task failure after it has been logged
	ErrorHandler types.ErrorHandler

	// CompletionCallback is called after every task execution
	CompletionCallback func(types.TaskResult)

	// OnAbandon is called for each queued task dropped by shutdown
	OnAbandon func(types.Task)
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Limit:          10,
		Interval:       time.Second,
		ShutdownPolicy: ShutdownAbandon,
		StopTimeout:    10 * time.Second,
		Clock:          types.NewRealClock(),
		Logger:         slog.Default(),
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", types.ErrInvalidConfig, c.Limit)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", types.ErrInvalidConfig, c.Interval)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("%w: queue capacity cannot be negative, got %d", types.ErrInvalidConfig, c.QueueCapacity)
	}
	if c.ShutdownPolicy != ShutdownAbandon && c.ShutdownPolicy != ShutdownDrain {
		return fmt.Errorf("%w: unknown shutdown policy %d", types.ErrInvalidConfig, c.ShutdownPolicy)
	}
	return nil
}

// Dispatcher accepts tasks from any goroutine and runs them one at a time,
// in submission order, at no more than Limit executions per Interval.
type Dispatcher struct {
	config *Config
	queue  *TaskQueue
	window *RateWindow
	worker *Worker
	logger *slog.Logger

	submitted int64

	// state management
	closed       int32
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

var _ types.Dispatcher = (*Dispatcher)(nil)

// New creates a dispatcher and starts its worker.
// Cancelling ctx stops the worker as an abandoning shutdown would.
func New(ctx context.Context, config *Config) (*Dispatcher, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// parameter validation
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// work on a copy so defaults never leak into the caller's struct
	cfg := *config
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	window, err := NewRateWindow(cfg.Limit, cfg.Interval, cfg.Clock.Now())
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With(slog.String("component", "throttle"))
	queue := NewTaskQueue(cfg.QueueCapacity)

	worker := NewWorker(queue, window, cfg.Clock, logger)
	if err := worker.SetErrorHandler(cfg.ErrorHandler); err != nil {
		return nil, err
	}
	worker.SetCompletionCallback(cfg.CompletionCallback)
	worker.SetAbandonCallback(cfg.OnAbandon)

	workerCtx, cancel := context.WithCancel(ctx)

	d := &Dispatcher{
		config: &cfg,
		queue:  queue,
		window: window,
		worker: worker,
		logger: logger,
		cancel: cancel,
	}

	go worker.Run(workerCtx)

	return d, nil
}

// NewWithLimit creates a dispatcher allowing limit executions per interval
func NewWithLimit(ctx context.Context, limit int, interval time.Duration) (*Dispatcher, error) {
	config := DefaultConfig()
	config.Limit = limit
	config.Interval = interval
	return New(ctx, config)
}

// NewPerUnit creates a dispatcher allowing limit executions per one unit of time,
// e.g. NewPerUnit(ctx, time.Second, 10) for ten per second.
func NewPerUnit(ctx context.Context, unit time.Duration, limit int) (*Dispatcher, error) {
	return NewWithLimit(ctx, limit, unit)
}

// Submit enqueues task for execution and returns immediately
func (d *Dispatcher) Submit(task types.Task) error {
	if task == nil {
		return types.ErrNilTask
	}
	if atomic.LoadInt32(&d.closed) == 1 {
		return types.ErrClosed
	}

	if err := d.queue.Enqueue(task); err != nil {
		if errors.Is(err, types.ErrQueueClosed) {
			// the worker stopped on its own (context cancelled)
			return types.ErrClosed
		}
		return err
	}

	atomic.AddInt64(&d.submitted, 1)
	return nil
}

// SubmitFunc wraps fn in a task and submits it
func (d *Dispatcher) SubmitFunc(fn func(ctx context.Context) error) error {
	if fn == nil {
		return types.ErrNilTask
	}
	return d.Submit(NewBasicTask(fn))
}

// Shutdown stops accepting tasks and signals the worker to stop.
// It does not wait; use Wait or Close for that. Calling it again is a no-op.
func (d *Dispatcher) Shutdown() error {
	d.shutdownOnce.Do(func() {
		atomic.StoreInt32(&d.closed, 1)
		queued := d.queue.Len()

		// the worker must see the cancellation before it can dequeue again
		if d.config.ShutdownPolicy == ShutdownAbandon {
			d.cancel()
		}
		d.queue.Close()

		d.logger.Info("dispatcher shutting down",
			slog.String("policy", d.config.ShutdownPolicy.String()),
			slog.Int("queued", queued),
		)
	})
	return nil
}

// Wait blocks until the worker has stopped or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.worker.Done():
		// release the worker context once it is no longer needed
		d.cancel()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the dispatcher down and waits up to StopTimeout for the worker
func (d *Dispatcher) Close() error {
	if err := d.Shutdown(); err != nil {
		return err
	}

	select {
	case <-d.worker.Done():
		d.cancel()
		return nil
	case <-d.config.Clock.After(d.config.StopTimeout):
		return fmt.Errorf("%w: worker did not stop within %v", types.ErrTimeout, d.config.StopTimeout)
	}
}

// Stopped returns a channel closed once the worker has stopped
func (d *Dispatcher) Stopped() <-chan struct{} {
	return d.worker.Done()
}

// IsClosed reports whether the dispatcher rejects new tasks
func (d *Dispatcher) IsClosed() bool {
	return atomic.LoadInt32(&d.closed) == 1 || d.queue.IsClosed()
}

// State returns the current worker state
func (d *Dispatcher) State() types.WorkerState {
	return d.worker.State()
}

// Window returns a snapshot of the rate window
func (d *Dispatcher) Window() types.WindowSnapshot {
	return d.window.Snapshot()
}

// QueueLength gets the current queue length
func (d *Dispatcher) QueueLength() int {
	return d.queue.Len()
}

// Stats gets dispatcher statistics
func (d *Dispatcher) Stats() types.DispatcherStats {
	ws := d.worker.Stats()
	return types.DispatcherStats{
		State:         ws.State,
		Submitted:     atomic.LoadInt64(&d.submitted),
		Executed:      ws.Executed,
		Failed:        ws.Failed,
		Abandoned:     ws.Abandoned,
		Throttles:     ws.Throttles,
		ThrottledTime: ws.ThrottledTime,
		QueueLength:   d.queue.Len(),
		Window:        d.window.Snapshot(),
	}
}
