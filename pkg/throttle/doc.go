/*
Package throttle provides a bounded-rate asynchronous task dispatcher.

Producers on any goroutine submit tasks; one worker goroutine runs them
strictly in submission order and never starts more than Limit tasks per
Interval.

# Core Components

## Dispatcher

Entry point. Submit enqueues and returns at once, it never runs the task
on the caller's goroutine. Shutdown stops intake; what happens to tasks
still queued depends on the ShutdownPolicy:
- ShutdownAbandon: the worker finishes the in-flight task and exits, queued
  tasks are counted as abandoned and handed to Config.OnAbandon
- ShutdownDrain: the worker keeps going, still throttled, until the queue
  is empty

Cancelling the context given to New always behaves like ShutdownAbandon.

## TaskQueue

Unbounded FIFO buffer by default. Ordering across producers is the order in
which their Enqueue calls completed. Setting Config.QueueCapacity bounds it;
a full queue makes Submit fail with types.ErrQueueFull.

## RateWindow

Fixed window counter. The worker calls Record after every task, failed or
not. A lapsed window is reopened at the completion time and that execution
counts as the first of the new window; once the count reaches Limit the
worker sleeps until the window ends.

The check runs after the task, so the task that fills a window has already
executed when throttling starts. A sliding interval that straddles the
boundary between two windows can therefore see Limit+1 executions.

## Worker

State machine: idle (waiting on the queue) -> running -> throttled ->
idle, and stopped once the loop exits. Task errors and panics are wrapped
in *types.TaskError, logged, passed to Config.ErrorHandler and otherwise
ignored; they never stop the loop.

# Usage Examples

	d, err := throttle.NewWithLimit(ctx, 10, time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	err = d.SubmitFunc(func(ctx context.Context) error {
		return callUpstream(ctx)
	})
	if errors.Is(err, types.ErrClosed) {
		// dispatcher already shut down
	}

Full configuration:

	d, err := throttle.New(ctx, &throttle.Config{
		Limit:          5,
		Interval:       time.Minute,
		ShutdownPolicy: throttle.ShutdownDrain,
		Logger:         slog.Default(),
		ErrorHandler: func(err error) error {
			failures.Add(1)
			return nil
		},
	})
*/
package throttle
