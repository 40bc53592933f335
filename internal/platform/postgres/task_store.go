package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/logger"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/store"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

// TaskStore implements task.Store over PostgreSQL. Payload, options and
// result are stored as JSONB alongside the flat lifecycle columns.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// SaveTask inserts a new task record.
func (s *TaskStore) SaveTask(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	payload, options, result, err := marshalTaskJSON(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, type, payload, options, status, created_at,
			scheduled_at, started_at, completed_at, attempts, result, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.Type,
		payload,
		options,
		t.Status,
		t.CreatedAt,
		t.ScheduledAt,
		t.StartedAt,
		t.CompletedAt,
		t.Attempts,
		result,
		t.Error,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID,
			"task_type", t.Type,
			"error", err)
		return MapError(fmt.Errorf("failed to save task: %w", err))
	}
	return nil
}

// UpdateTask rewrites the mutable columns of an existing record.
func (s *TaskStore) UpdateTask(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	payload, options, result, err := marshalTaskJSON(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET payload = $2, options = $3, status = $4, scheduled_at = $5,
			started_at = $6, completed_at = $7, attempts = $8, result = $9,
			error_message = $10
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		t.ID,
		payload,
		options,
		t.Status,
		t.ScheduledAt,
		t.StartedAt,
		t.CompletedAt,
		t.Attempts,
		result,
		t.Error,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", t.ID,
			"status", t.Status,
			"error", err)
		return MapError(fmt.Errorf("failed to update task: %w", err))
	}
	return CheckRowsAffected(res, store.ErrTaskNotFound)
}

// GetTask fetches one task record by ID.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	taskID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", id, err)
	}

	query := selectTaskColumns + ` WHERE id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		return nil, MapError(err)
	}
	return t, nil
}

// ListByStatus returns all task records in the given status, oldest
// scheduled first.
func (s *TaskStore) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	log := logger.FromContext(ctx)

	query := selectTaskColumns + ` WHERE status = $1 ORDER BY scheduled_at ASC`
	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		log.Error("failed to query tasks by status", "status", status, "error", err)
		return nil, MapError(fmt.Errorf("failed to query tasks by status: %w", err))
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, MapError(fmt.Errorf("failed to scan task row: %w", err))
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(fmt.Errorf("error iterating task rows: %w", err))
	}
	return tasks, nil
}

// DeleteTerminalBefore purges completed and failed records whose
// completion predates the cutoff. It returns the number of rows removed.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ($1, $2) AND completed_at IS NOT NULL AND completed_at < $3
	`
	res, err := s.db.ExecContext(ctx, query, task.StatusCompleted, task.StatusFailed, cutoff)
	if err != nil {
		return 0, MapError(fmt.Errorf("failed to purge terminal tasks: %w", err))
	}
	return res.RowsAffected()
}

const selectTaskColumns = `
	SELECT id, type, payload, options, status, created_at, scheduled_at,
		started_at, completed_at, attempts, result, error_message
	FROM tasks`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t            task.Task
		payload      []byte
		options      []byte
		result       []byte
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		errorMessage sql.NullString
	)
	if err := row.Scan(
		&t.ID,
		&t.Type,
		&payload,
		&options,
		&t.Status,
		&t.CreatedAt,
		&t.ScheduledAt,
		&startedAt,
		&completedAt,
		&t.Attempts,
		&result,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode task payload: %w", err)
		}
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &t.Options); err != nil {
			return nil, fmt.Errorf("failed to decode task options: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &t.Result); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	t.Error = errorMessage.String
	return &t, nil
}

// marshalTaskJSON encodes the JSONB columns. nil maps and results become
// SQL NULLs rather than the JSON literal "null".
func marshalTaskJSON(t *task.Task) (payload, options, result []byte, err error) {
	if t.Payload != nil {
		if payload, err = json.Marshal(t.Payload); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode task payload: %w", err)
		}
	}
	if options, err = json.Marshal(t.Options); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode task options: %w", err)
	}
	if t.Result != nil {
		if result, err = json.Marshal(t.Result); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode task result: %w", err)
		}
	}
	return payload, options, result, nil
}
