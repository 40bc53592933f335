package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/api/shared"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

// TaskService is the orchestrator surface the handlers need.
type TaskService interface {
	Schedule(ctx context.Context, taskType string, payload map[string]any, opts task.Options) (*task.Task, error)
	GetTaskStatus(id uuid.UUID) (*task.Task, error)
	GetActiveTasks() []*task.Task
	GetMetrics() task.Snapshot
}

// TaskHandler serves the task scheduling and status endpoints.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With("component", "task_handler"),
	}
}

// ScheduleTask handles POST /api/tasks.
func (h *TaskHandler) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	var req ScheduleTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	opts, err := req.Options()
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.tasks.Schedule(r.Context(), req.Type, req.Payload, opts)
	if err != nil {
		h.respondScheduleError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ScheduledTaskResponse{
		TaskID:      t.ID,
		Status:      t.Status,
		ScheduledAt: t.ScheduledAt,
	})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	t, err := h.tasks.GetTaskStatus(id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to load task", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// ListActiveTasks handles GET /api/tasks/active.
func (h *TaskHandler) ListActiveTasks(w http.ResponseWriter, r *http.Request) {
	active := h.tasks.GetActiveTasks()
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"count": len(active),
		"tasks": active,
	})
}

// GetTaskMetrics handles GET /api/tasks/metrics.
func (h *TaskHandler) GetTaskMetrics(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.tasks.GetMetrics())
}

func (h *TaskHandler) respondScheduleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, task.ErrEmptyTaskType),
		errors.Is(err, task.ErrInvalidExecutor),
		errors.Is(err, task.ErrNoHandler):
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, task.ErrShuttingDown):
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Service is shutting down")
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to schedule task", err)
	}
}
