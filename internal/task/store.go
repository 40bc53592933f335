package task

import (
	"context"
	"time"
)

// Store persists task records so they survive restarts and remain
// inspectable after completion. The orchestrator works without one (nil
// store means memory-only records); persistence failures are logged and
// never block dispatch.
type Store interface {
	// SaveTask inserts a new task record.
	SaveTask(ctx context.Context, t *Task) error

	// UpdateTask writes the task's mutable fields (status, attempts,
	// timestamps, result, error) back to the record.
	UpdateTask(ctx context.Context, t *Task) error

	// GetTask fetches one record by ID, store.ErrTaskNotFound style
	// sentinel when absent.
	GetTask(ctx context.Context, id string) (*Task, error)

	// ListByStatus returns all records with the given status, oldest first.
	ListByStatus(ctx context.Context, status Status) ([]*Task, error)

	// DeleteTerminalBefore purges completed/failed records whose
	// completion predates cutoff, returning how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
