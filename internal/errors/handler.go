// Package errors provides the task failure handling chain used by the worker
package errors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jzx17/gothrottle/pkg/types"
)

// ErrorHandler handles a task failure reported by the worker
type ErrorHandler interface {
	// HandleError handles the error, returns processed error or nil if handled
	HandleError(ctx context.Context, errCtx *ErrorContext) error

	// Name returns the name of the error handler
	Name() string
}

// ErrorContext defines context information when a task fails
type ErrorContext struct {
	// Error that occurred
	Error error

	// TaskID identifies the failed task
	TaskID string

	// Panicked reports whether the task panicked
	Panicked bool

	// Elapsed is how long the task ran
	Elapsed time.Duration

	// Timestamp when the failure was observed
	Timestamp time.Time

	// Metadata contains additional metadata information
	Metadata map[string]interface{}
}

// NewErrorContext creates a new error context from a task error
func NewErrorContext(err error, timestamp time.Time) *ErrorContext {
	errCtx := &ErrorContext{
		Error:     err,
		Timestamp: timestamp,
		Metadata:  make(map[string]interface{}),
	}

	if taskErr, ok := types.IsTaskError(err); ok {
		errCtx.TaskID = taskErr.TaskID
		errCtx.Panicked = taskErr.Panicked
		errCtx.Elapsed = taskErr.Elapsed
		for k, v := range taskErr.Context {
			errCtx.Metadata[k] = v
		}
	}

	return errCtx
}

// LoggingHandler logs every failure it sees and reports it as handled
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a logging handler, nil logger means slog.Default()
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{logger: logger}
}

// HandleError implements the ErrorHandler interface
func (h *LoggingHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	attrs := []slog.Attr{
		slog.String("task_id", errCtx.TaskID),
		slog.Duration("elapsed", errCtx.Elapsed),
		slog.String("error", errCtx.Error.Error()),
	}

	if errCtx.Panicked {
		if stack, ok := errCtx.Metadata["stack_trace"].(string); ok {
			attrs = append(attrs, slog.String("stack", stack))
		}
		h.logger.LogAttrs(ctx, slog.LevelError, "task panicked", attrs...)
		return nil
	}

	h.logger.LogAttrs(ctx, slog.LevelError, "task failed", attrs...)
	return nil
}

// Name returns the handler name
func (h *LoggingHandler) Name() string {
	return "Logging"
}

// FuncHandler adapts a plain types.ErrorHandler callback
type FuncHandler struct {
	fn types.ErrorHandler
}

// NewFuncHandler creates a handler around fn
func NewFuncHandler(fn types.ErrorHandler) *FuncHandler {
	return &FuncHandler{fn: fn}
}

// HandleError implements the ErrorHandler interface
func (h *FuncHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	if h.fn == nil {
		return nil
	}
	return h.fn(errCtx.Error)
}

// Name returns the handler name
func (h *FuncHandler) Name() string {
	return "Func"
}

// Chain runs every registered handler in order.
// Handlers cannot stop the worker; errors they return are collected and logged.
type Chain struct {
	handlers []ErrorHandler
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewChain creates a handler chain
func NewChain(logger *slog.Logger, handlers ...ErrorHandler) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger}
	for _, h := range handlers {
		if h != nil {
			c.handlers = append(c.handlers, h)
		}
	}
	return c
}

// Add appends a handler to the chain
func (c *Chain) Add(handler ErrorHandler) error {
	if handler == nil {
		return fmt.Errorf("cannot register nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.handlers {
		if h.Name() == handler.Name() {
			return fmt.Errorf("handler with name %s already exists", handler.Name())
		}
	}
	c.handlers = append(c.handlers, handler)
	return nil
}

// Handle passes errCtx to every handler and returns how many of them rejected it
func (c *Chain) Handle(ctx context.Context, errCtx *ErrorContext) int {
	c.mu.RLock()
	handlers := make([]ErrorHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	rejected := 0
	for _, h := range handlers {
		if err := c.safeHandle(ctx, h, errCtx); err != nil {
			rejected++
			c.logger.Warn("error handler returned error",
				slog.String("handler", h.Name()),
				slog.String("task_id", errCtx.TaskID),
				slog.String("error", err.Error()),
			)
		}
	}
	return rejected
}

// safeHandle keeps a panicking handler from taking the worker down
func (c *Chain) safeHandle(ctx context.Context, h ErrorHandler, errCtx *ErrorContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), r)
		}
	}()
	return h.HandleError(ctx, errCtx)
}

// ListHandlers lists the handler names in execution order
func (c *Chain) ListHandlers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.handlers))
	for _, h := range c.handlers {
		names = append(names, h.Name())
	}
	return names
}
