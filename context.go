package abi

import (
	"log/slog"

	"github.com/wnxd/microdbg/debugger"
)

// Context identifies the task on whose behalf a syscall runs.
type Context interface {
	Task() uint64
	Logger() *slog.Logger
}

type context struct {
	task   uint64
	logger *slog.Logger
}

// NewContext returns a Context for task. A nil logger means slog.Default.
func NewContext(task uint64, logger *slog.Logger) Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &context{task, logger.With("task", task)}
}

func (ctx *context) Task() uint64 {
	return ctx.task
}

func (ctx *context) Logger() *slog.Logger {
	return ctx.logger
}

// DebuggerContext is the Context of an emulated guest task.
type DebuggerContext struct {
	debugger.Context
	logger *slog.Logger
}

func NewDebuggerContext(ctx debugger.Context, logger *slog.Logger) *DebuggerContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebuggerContext{ctx, logger}
}

func (ctx *DebuggerContext) Task() uint64 {
	return uint64(ctx.TaskID())
}

func (ctx *DebuggerContext) Logger() *slog.Logger {
	return ctx.logger.With("task", ctx.Task())
}
