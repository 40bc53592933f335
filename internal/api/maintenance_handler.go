package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/api/shared"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/retention"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

// RetentionService is the retention surface served synchronously. The
// bulk jobs (mark, delete) are not here: those go through the
// orchestrator so they get locking, retries and resource throttling.
type RetentionService interface {
	RecoverTeamData(ctx context.Context, tenantID uuid.UUID) (*retention.RecoveryResult, error)
	CheckDataRetentionStatus(ctx context.Context, tenantID uuid.UUID) (*retention.StatusReport, error)
}

// MaintenanceHandler serves the retention maintenance endpoints.
type MaintenanceHandler struct {
	tasks     TaskService
	retention RetentionService
	logger    *slog.Logger
}

// NewMaintenanceHandler creates a MaintenanceHandler.
func NewMaintenanceHandler(tasks TaskService, ret RetentionService, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		tasks:     tasks,
		retention: ret,
		logger:    logger.With("component", "maintenance_handler"),
	}
}

// MarkExpired handles POST /api/maintenance/retention/mark by scheduling
// the mark job as an orchestrator task.
func (h *MaintenanceHandler) MarkExpired(w http.ResponseWriter, r *http.Request) {
	h.scheduleJob(w, r, retention.TaskTypeMark, task.ImpactMedium)
}

// DeleteExpired handles POST /api/maintenance/retention/delete.
func (h *MaintenanceHandler) DeleteExpired(w http.ResponseWriter, r *http.Request) {
	h.scheduleJob(w, r, retention.TaskTypeDelete, task.ImpactHigh)
}

func (h *MaintenanceHandler) scheduleJob(w http.ResponseWriter, r *http.Request, jobType string, impact task.Impact) {
	t, err := h.tasks.Schedule(r.Context(), jobType, nil, task.Options{
		Impact:     impact,
		RetryLimit: -1,
	})
	if err != nil {
		if errors.Is(err, task.ErrShuttingDown) {
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Service is shutting down")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to schedule maintenance job", err)
		return
	}

	h.logger.Info("maintenance job scheduled",
		"job", jobType,
		"task_id", t.ID,
		"caller", shared.GetCaller(r.Context()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, ScheduledTaskResponse{
		TaskID:      t.ID,
		Status:      t.Status,
		ScheduledAt: t.ScheduledAt,
	})
}

// RecoverTenant handles POST /api/maintenance/retention/recover/{tenantID}.
// Recovery touches a single row, so it runs synchronously and the caller
// gets the outcome in the response.
func (h *MaintenanceHandler) RecoverTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	res, err := h.retention.RecoverTeamData(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, retention.ErrTenantNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Tenant not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to recover tenant data", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, res)
}

// RetentionStatus handles GET /api/maintenance/retention/status/{tenantID}.
func (h *MaintenanceHandler) RetentionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	report, err := h.retention.CheckDataRetentionStatus(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, retention.ErrTenantNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Tenant not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to check retention status", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

func (h *MaintenanceHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid tenant ID")
		return uuid.Nil, false
	}
	return id, true
}
