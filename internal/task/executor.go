package task

import (
	"context"
)

// Handler is the business logic invoked for a task type. Handlers must be
// idempotent: the engine guarantees at-least-once execution, not
// exactly-once.
type Handler func(ctx context.Context, t *Task) (any, error)

// Executor runs one execution attempt of a task using a particular
// strategy. Exactly one implementation exists per strategy.
type Executor interface {
	Execute(ctx context.Context, t *Task, h Handler) (any, error)
}

// inProcessExecutor calls the registered handler directly in this process.
type inProcessExecutor struct{}

func (inProcessExecutor) Execute(ctx context.Context, t *Task, h Handler) (any, error) {
	if h == nil {
		return nil, ErrNoHandler
	}
	return h(ctx, t)
}
