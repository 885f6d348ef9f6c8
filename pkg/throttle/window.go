package throttle

import (
	"fmt"
	"sync"
	"time"

	"github.com/jzx17/gothrottle/pkg/types"
)

// RateWindow counts executions inside a fixed-length time window.
//
// The window is only written by the worker, after each task completes. The
// mutex makes Snapshot safe to call from other goroutines.
type RateWindow struct {
	start    time.Time
	count    int
	limit    int
	interval time.Duration

	mu sync.Mutex
}

// NewRateWindow creates a window opened at now with no recorded executions
func NewRateWindow(limit int, interval time.Duration, now time.Time) (*RateWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", types.ErrInvalidConfig, limit)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %v", types.ErrInvalidConfig, interval)
	}

	return &RateWindow{
		start:    now,
		limit:    limit,
		interval: interval,
	}, nil
}

// Record accounts for one finished execution at now and returns how long the
// worker must wait before running the next task. Zero means no wait.
//
// If the current window has lapsed a new one is opened at now and this
// execution is its first. Otherwise the count grows by one. Once the count
// reaches the limit the wait runs to the end of the current window.
func (w *RateWindow) Record(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Sub(w.start) >= w.interval {
		w.start = now
		w.count = 1
	} else {
		w.count++
	}

	if w.count < w.limit {
		return 0
	}

	wait := w.start.Add(w.interval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Snapshot returns a copy of the window state
func (w *RateWindow) Snapshot() types.WindowSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	return types.WindowSnapshot{
		Start:    w.start,
		Count:    w.count,
		Limit:    w.limit,
		Interval: w.interval,
	}
}

// Limit returns the configured executions per interval
func (w *RateWindow) Limit() int {
	return w.limit
}

// Interval returns the configured window length
func (w *RateWindow) Interval() time.Duration {
	return w.interval
}
