// Package testutils provides helpers shared by the dispatcher tests
package testutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jzx17/gothrottle/pkg/types"
)

// Context returns a context that is cancelled when the test ends or the timeout passes
func Context(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Execution is a single recorded task run
type Execution struct {
	ID string
	At time.Time
}

// Recorder records task executions in the order the worker ran them
type Recorder struct {
	clock types.Clock
	runs  []Execution
	mu    sync.Mutex
}

// NewRecorder creates a recorder stamping executions with clock
func NewRecorder(clock types.Clock) *Recorder {
	if clock == nil {
		clock = types.NewRealClock()
	}
	return &Recorder{clock: clock}
}

// Record appends an execution for id
func (r *Recorder) Record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, Execution{ID: id, At: r.clock.Now()})
}

// Func returns a task body that records id and returns err
func (r *Recorder) Func(id string, err error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		r.Record(id)
		return err
	}
}

// Executions returns a copy of the recorded executions
func (r *Recorder) Executions() []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Execution, len(r.runs))
	copy(out, r.runs)
	return out
}

// IDs returns the recorded task ids in execution order
func (r *Recorder) IDs() []string {
	runs := r.Executions()
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}
	return ids
}

// Len returns the number of recorded executions
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
