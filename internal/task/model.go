package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task. Terminal statuses
// (completed, failed) are immutable once set.
type Status string

// Possible task status values.
const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExecutorMode selects where a task's handler runs. It is resolved once at
// schedule time and stored immutably on the task.
type ExecutorMode string

// Available executor strategies.
const (
	ExecutorInProcess  ExecutorMode = "in-process"
	ExecutorSubprocess ExecutorMode = "subprocess"
	ExecutorRemote     ExecutorMode = "remote"
)

// Impact is an advisory resource-cost classification. It is recorded on
// the task and surfaced through the status API but does not gate
// scheduling; only priority orders the queue.
type Impact string

// Impact classifications.
const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Common validation errors for Task.
var (
	ErrEmptyTaskType      = errors.New("task type cannot be empty")
	ErrInvalidExecutor    = errors.New("invalid executor mode")
	ErrNegativeRetryLimit = errors.New("retry limit cannot be negative")
)

// Options holds the per-task scheduling parameters. Zero values are
// replaced with orchestrator defaults at schedule time.
type Options struct {
	// Priority orders pending tasks; higher dispatches first. Equal
	// priorities break by earlier scheduled time.
	Priority int `json:"priority"`

	// Impact is advisory metadata, see the Impact type.
	Impact Impact `json:"impact,omitempty"`

	// LockKey names the mutual-exclusion domain. Defaults to the task
	// type, i.e. one running instance per job type system-wide.
	LockKey string `json:"lock_key"`

	// Delay postpones the first dispatch.
	Delay time.Duration `json:"delay,omitempty"`

	// Timeout bounds one execution attempt. The subprocess executor
	// enforces it by killing the worker; the other strategies pass it to
	// the handler through the context.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ExecutorMode selects the execution strategy.
	ExecutorMode ExecutorMode `json:"executor_mode"`

	// RetryLimit caps retries after the first attempt; attempts never
	// exceed RetryLimit+1.
	RetryLimit int `json:"retry_limit"`

	// RetryDelay is the base backoff, doubled on every subsequent attempt.
	RetryDelay time.Duration `json:"retry_delay"`
}

// Task is a unit of maintenance work owned by the orchestrator. Callers
// create it via Schedule; all later mutations happen inside the
// orchestrator, and the record is retained for a bounded TTL after
// reaching a terminal state.
type Task struct {
	ID          uuid.UUID      `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Options     Options        `json:"options"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Attempts    int            `json:"attempts"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Clone returns a copy safe to hand to API consumers while the
// orchestrator keeps mutating the original.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.CompletedAt != nil {
		s := *t.CompletedAt
		c.CompletedAt = &s
	}
	if t.Payload != nil {
		c.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// validExecutorMode checks the mode against the known strategies.
func validExecutorMode(m ExecutorMode) bool {
	switch m {
	case ExecutorInProcess, ExecutorSubprocess, ExecutorRemote:
		return true
	default:
		return false
	}
}
