package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

// ScheduleTaskRequest is the body of POST /api/tasks. Durations are Go
// duration strings ("30s", "5m"). Absent retry_limit falls back to the
// orchestrator default; an explicit 0 disables retries.
type ScheduleTaskRequest struct {
	Type         string         `json:"type"          validate:"required"`
	Payload      map[string]any `json:"payload"`
	Priority     int            `json:"priority"`
	Impact       string         `json:"impact"        validate:"omitempty,oneof=low medium high"`
	LockKey      string         `json:"lock_key"`
	Delay        string         `json:"delay"`
	Timeout      string         `json:"timeout"`
	ExecutorMode string         `json:"executor_mode" validate:"omitempty,oneof=in-process subprocess remote"`
	RetryLimit   *int           `json:"retry_limit"`
	RetryDelay   string         `json:"retry_delay"`
}

// Options converts the request to task scheduling options.
func (r *ScheduleTaskRequest) Options() (task.Options, error) {
	opts := task.Options{
		Priority:     r.Priority,
		Impact:       task.Impact(r.Impact),
		LockKey:      r.LockKey,
		ExecutorMode: task.ExecutorMode(r.ExecutorMode),
		RetryLimit:   -1,
	}
	if r.RetryLimit != nil {
		if *r.RetryLimit < 0 {
			return task.Options{}, task.ErrNegativeRetryLimit
		}
		opts.RetryLimit = *r.RetryLimit
	}

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"delay", r.Delay, &opts.Delay},
		{"timeout", r.Timeout, &opts.Timeout},
		{"retry_delay", r.RetryDelay, &opts.RetryDelay},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return task.Options{}, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed < 0 {
			return task.Options{}, fmt.Errorf("invalid %s: must not be negative", d.name)
		}
		*d.dst = parsed
	}
	return opts, nil
}

// ScheduledTaskResponse acknowledges an accepted job.
type ScheduledTaskResponse struct {
	TaskID      uuid.UUID   `json:"task_id"`
	Status      task.Status `json:"status"`
	ScheduledAt time.Time   `json:"scheduled_at"`
}
