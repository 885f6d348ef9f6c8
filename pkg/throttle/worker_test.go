package throttle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/gothrottle/internal/testutils"
	"github.com/jzx17/gothrottle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lockedBuffer lets the worker goroutine and the test share a log buffer
type lockedBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestWorker(t *testing.T, limit int, interval time.Duration) (*Worker, *TaskQueue) {
	t.Helper()
	window, err := NewRateWindow(limit, interval, time.Now())
	require.NoError(t, err)
	queue := NewTaskQueue(0)
	return NewWorker(queue, window, nil, discardLogger()), queue
}

func TestNewWorker(t *testing.T) {
	worker, _ := newTestWorker(t, 1, time.Second)

	assert.Equal(t, types.WorkerStateIdle, worker.State())
	stats := worker.Stats()
	assert.Zero(t, stats.Executed)
	assert.Zero(t, stats.GetSuccessRate())
}

func TestWorker_RunExecutesInOrder(t *testing.T) {
	worker, queue := newTestWorker(t, 100, time.Second)
	rec := testutils.NewRecorder(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Enqueue(NewBasicTaskWithID(id, rec.Func(id, nil))))
	}

	assert.Eventually(t, func() bool { return rec.Len() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, rec.IDs())

	cancel()
	select {
	case <-worker.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, types.WorkerStateStopped, worker.State())
	assert.Equal(t, int64(3), worker.Stats().Executed)
}

func TestWorker_TaskErrorDoesNotStopLoop(t *testing.T) {
	window, err := NewRateWindow(100, time.Second, time.Now())
	require.NoError(t, err)
	queue := NewTaskQueue(0)

	logs := &lockedBuffer{}
	worker := NewWorker(queue, window, nil, slog.New(slog.NewTextHandler(logs, nil)))

	var handled []error
	var mu sync.Mutex
	require.NoError(t, worker.SetErrorHandler(func(err error) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, err)
		return nil
	}))

	var results []types.TaskResult
	worker.SetCompletionCallback(func(r types.TaskResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	cause := errors.New("upstream returned 503")
	require.NoError(t, queue.Enqueue(NewBasicTaskWithID("bad", func(ctx context.Context) error { return cause })))
	require.NoError(t, queue.Enqueue(NewBasicTaskWithID("good", func(ctx context.Context) error { return nil })))

	assert.Eventually(t, func() bool { return worker.Stats().Executed == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, handled, 1)
	taskErr, ok := types.IsTaskError(handled[0])
	require.True(t, ok)
	assert.Equal(t, "bad", taskErr.TaskID)
	assert.ErrorIs(t, handled[0], cause)
	assert.False(t, taskErr.Panicked)

	require.Len(t, results, 2)
	assert.Error(t, results[0].Error)
	assert.NoError(t, results[1].Error)
	assert.Equal(t, "good", results[1].TaskID)

	assert.Equal(t, int64(1), worker.Stats().Failed)
	assert.InDelta(t, 0.5, worker.Stats().GetSuccessRate(), 0.001)
	assert.Contains(t, logs.String(), "task failed")
	assert.Contains(t, logs.String(), "task_id=bad")
}

func TestWorker_TaskPanic(t *testing.T) {
	worker, queue := newTestWorker(t, 100, time.Second)

	panicked := make(chan error, 1)
	require.NoError(t, worker.SetErrorHandler(func(err error) error {
		panicked <- err
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	require.NoError(t, queue.Enqueue(NewBasicTaskWithID("boom", func(ctx context.Context) error {
		panic("test panic")
	})))

	var ran int32
	require.NoError(t, queue.Enqueue(NewBasicTask(func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})))

	select {
	case err := <-panicked:
		taskErr, ok := types.IsTaskError(err)
		require.True(t, ok)
		assert.True(t, taskErr.Panicked)
		assert.Contains(t, err.Error(), "test panic")
		assert.NotEmpty(t, taskErr.Context["stack_trace"])
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&ran) == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorker_FailuresCountTowardsWindow(t *testing.T) {
	worker, queue := newTestWorker(t, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Enqueue(NewBasicTask(func(ctx context.Context) error {
			return errors.New("nope")
		})))
	}

	assert.Eventually(t, func() bool { return worker.Stats().Executed == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, worker.window.Snapshot().Count)
}

func TestWorker_TaskContextSurvivesStop(t *testing.T) {
	worker, queue := newTestWorker(t, 100, time.Second)

	type ctxKey struct{}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	taskErr := make(chan error, 1)
	require.NoError(t, queue.Enqueue(NewBasicTask(func(taskCtx context.Context) error {
		close(started)
		<-release
		if taskCtx.Value(ctxKey{}) != "v" {
			taskErr <- errors.New("context value lost")
			return nil
		}
		taskErr <- taskCtx.Err()
		return nil
	})))

	go worker.Run(ctx)
	<-started
	cancel()
	close(release)

	select {
	case err := <-taskErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("task did not finish")
	}
	<-worker.Done()
}

func TestWorker_StopAbandonsQueuedTasks(t *testing.T) {
	worker, queue := newTestWorker(t, 1, time.Hour)

	var abandoned []string
	var mu sync.Mutex
	worker.SetAbandonCallback(func(task types.Task) {
		mu.Lock()
		defer mu.Unlock()
		abandoned = append(abandoned, task.ID())
	})

	rec := testutils.NewRecorder(nil)
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, queue.Enqueue(NewBasicTaskWithID(id, rec.Func(id, nil))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	// limit 1 per hour: the worker runs "first" and then throttles
	assert.Eventually(t, func() bool {
		return worker.State() == types.WorkerStateThrottled
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-worker.Done()

	assert.Equal(t, []string{"first"}, rec.IDs())
	mu.Lock()
	assert.Equal(t, []string{"second", "third"}, abandoned)
	mu.Unlock()

	stats := worker.Stats()
	assert.Equal(t, int64(2), stats.Abandoned)
	assert.Equal(t, int64(1), stats.Throttles)
	assert.True(t, queue.IsClosed())
	assert.ErrorIs(t, queue.Enqueue(noopTask("late")), types.ErrQueueClosed)
}

func TestWorker_ExitsWhenClosedQueueDrained(t *testing.T) {
	worker, queue := newTestWorker(t, 1, time.Hour)
	rec := testutils.NewRecorder(nil)

	require.NoError(t, queue.Enqueue(NewBasicTaskWithID("only", rec.Func("only", nil))))
	queue.Close()

	go worker.Run(context.Background())

	select {
	case <-worker.Done():
	case <-time.After(time.Second):
		t.Fatal("worker sat out the window with nothing left to run")
	}
	assert.Equal(t, []string{"only"}, rec.IDs())
	assert.Zero(t, worker.Stats().Throttles)
}

func TestWorker_TaskErrorValueNotModified(t *testing.T) {
	worker, queue := newTestWorker(t, 100, time.Second)

	handled := make(chan error, 2)
	require.NoError(t, worker.SetErrorHandler(func(err error) error {
		handled <- err
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	// a task reporting its own failure as a TaskError
	own := types.NewTaskError("own", errors.New("quota exceeded")).WithContext("attempt", 1)
	require.NoError(t, queue.Enqueue(NewBasicTaskWithID("own", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return own
	})))

	// a task relaying a failure that belongs to another task
	foreign := types.NewTaskError("upstream-7", errors.New("timeout"))
	require.NoError(t, queue.Enqueue(NewBasicTaskWithID("relay", func(ctx context.Context) error {
		return fmt.Errorf("relay: %w", foreign)
	})))

	var got []error
	for len(got) < 2 {
		select {
		case err := <-handled:
			got = append(got, err)
		case <-time.After(time.Second):
			t.Fatal("failure was not reported")
		}
	}

	ownErr, ok := types.IsTaskError(got[0])
	require.True(t, ok)
	assert.NotSame(t, own, ownErr)
	assert.Equal(t, "own", ownErr.TaskID)
	assert.Equal(t, 1, ownErr.Context["attempt"])
	assert.GreaterOrEqual(t, ownErr.Elapsed, 5*time.Millisecond)
	assert.Zero(t, own.Elapsed, "the task's own error value must stay untouched")

	relayErr, ok := types.IsTaskError(got[1])
	require.True(t, ok)
	assert.Equal(t, "relay", relayErr.TaskID)
	assert.ErrorIs(t, got[1], foreign)
	assert.Zero(t, foreign.Elapsed)
}
