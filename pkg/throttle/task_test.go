package throttle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBasicTask(t *testing.T) {
	called := false
	fn := func(ctx context.Context) error {
		called = true
		return nil
	}

	task := NewBasicTask(fn)

	assert.NotEmpty(t, task.ID())

	// Execute task
	err := task.Execute(context.Background())
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestNewBasicTask_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewBasicTask(nil).ID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewBasicTaskWithID(t *testing.T) {
	customID := "invoice-2024-001"
	task := NewBasicTaskWithID(customID, func(ctx context.Context) error { return nil })

	assert.Equal(t, customID, task.ID())
}

func TestBasicTask_Execute(t *testing.T) {
	tests := []struct {
		name        string
		fn          func(ctx context.Context) error
		expectError bool
	}{
		{
			name: "successful execution",
			fn: func(ctx context.Context) error {
				return nil
			},
			expectError: false,
		},
		{
			name: "failed execution",
			fn: func(ctx context.Context) error {
				return fmt.Errorf("task failed")
			},
			expectError: true,
		},
		{
			name:        "nil function",
			fn:          nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewBasicTaskWithID("t", tt.fn)
			err := task.Execute(context.Background())

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskWithTimeout(t *testing.T) {
	inner := NewBasicTaskWithID("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	task := NewTaskWithTimeout(inner, 20*time.Millisecond)
	assert.Equal(t, "slow", task.ID())
	assert.Equal(t, 20*time.Millisecond, task.Timeout())

	start := time.Now()
	err := task.Execute(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTaskWithTimeout_NoTimeout(t *testing.T) {
	var hasDeadline bool
	inner := NewBasicTask(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	task := NewTaskWithTimeout(inner, 0)
	assert.NoError(t, task.Execute(context.Background()))
	assert.False(t, hasDeadline)
}
