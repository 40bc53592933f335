package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/retention"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

type fakeRetentionService struct {
	recoverResult *retention.RecoveryResult
	recoverErr    error
	statusResult  *retention.StatusReport
	statusErr     error
	lastTenantID  uuid.UUID
}

func (f *fakeRetentionService) RecoverTeamData(ctx context.Context, tenantID uuid.UUID) (*retention.RecoveryResult, error) {
	f.lastTenantID = tenantID
	return f.recoverResult, f.recoverErr
}

func (f *fakeRetentionService) CheckDataRetentionStatus(ctx context.Context, tenantID uuid.UUID) (*retention.StatusReport, error) {
	f.lastTenantID = tenantID
	return f.statusResult, f.statusErr
}

func maintenanceRouter(tasks TaskService, ret RetentionService) http.Handler {
	h := NewMaintenanceHandler(tasks, ret, testLogger())
	r := chi.NewRouter()
	r.Post("/api/maintenance/retention/mark", h.MarkExpired)
	r.Post("/api/maintenance/retention/delete", h.DeleteExpired)
	r.Post("/api/maintenance/retention/recover/{tenantID}", h.RecoverTenant)
	r.Get("/api/maintenance/retention/status/{tenantID}", h.RetentionStatus)
	return r
}

func TestMaintenanceJobsAreScheduled(t *testing.T) {
	cases := []struct {
		path       string
		wantType   string
		wantImpact task.Impact
	}{
		{"/api/maintenance/retention/mark", retention.TaskTypeMark, task.ImpactMedium},
		{"/api/maintenance/retention/delete", retention.TaskTypeDelete, task.ImpactHigh},
	}

	for _, tc := range cases {
		t.Run(tc.wantType, func(t *testing.T) {
			svc := &fakeTaskService{}
			router := maintenanceRouter(svc, &fakeRetentionService{})

			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusAccepted, rec.Code)
			assert.Equal(t, tc.wantType, svc.lastType)
			assert.Equal(t, tc.wantImpact, svc.lastOpts.Impact)

			var resp ScheduledTaskResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEqual(t, uuid.Nil, resp.TaskID)
		})
	}
}

func TestMaintenanceJobDuringShutdown(t *testing.T) {
	router := maintenanceRouter(&fakeTaskService{scheduleErr: task.ErrShuttingDown}, &fakeRetentionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/maintenance/retention/mark", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoverTenant(t *testing.T) {
	tenantID := uuid.New()

	t.Run("recovered", func(t *testing.T) {
		ret := &fakeRetentionService{recoverResult: &retention.RecoveryResult{
			Success:  true,
			TenantID: tenantID,
			Status:   retention.StatusActive,
		}}
		router := maintenanceRouter(&fakeTaskService{}, ret)

		req := httptest.NewRequest(http.MethodPost, "/api/maintenance/retention/recover/"+tenantID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tenantID, ret.lastTenantID)

		var resp retention.RecoveryResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("unrecoverable is still 200", func(t *testing.T) {
		ret := &fakeRetentionService{recoverResult: &retention.RecoveryResult{
			Success: false,
			Status:  retention.StatusDeleted,
			Message: "backup retention window has passed, data is unrecoverable",
		}}
		router := maintenanceRouter(&fakeTaskService{}, ret)

		req := httptest.NewRequest(http.MethodPost, "/api/maintenance/retention/recover/"+tenantID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp retention.RecoveryResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		ret := &fakeRetentionService{recoverErr: retention.ErrTenantNotFound}
		router := maintenanceRouter(&fakeTaskService{}, ret)

		req := httptest.NewRequest(http.MethodPost, "/api/maintenance/retention/recover/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid tenant id", func(t *testing.T) {
		router := maintenanceRouter(&fakeTaskService{}, &fakeRetentionService{})
		req := httptest.NewRequest(http.MethodPost, "/api/maintenance/retention/recover/nope", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRetentionStatus(t *testing.T) {
	tenantID := uuid.New()
	ret := &fakeRetentionService{statusResult: &retention.StatusReport{
		TenantID: tenantID,
		Status:   retention.StatusGracePeriod,
	}}
	router := maintenanceRouter(&fakeTaskService{}, ret)

	req := httptest.NewRequest(http.MethodGet, "/api/maintenance/retention/status/"+tenantID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp retention.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, retention.StatusGracePeriod, resp.Status)
	assert.Equal(t, tenantID, resp.TenantID)
}
