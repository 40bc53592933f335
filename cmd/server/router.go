package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/api"
	apimiddleware "github.com/cryptique-io-codehub/cryptique-sub007/internal/api/middleware"
)

// setupRouter assembles the HTTP surface: the task API and maintenance
// endpoints behind service-token auth, plus the unauthenticated health
// and prometheus endpoints.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.orchestrator, app.logger)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.tokens)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.ScheduleTask)
		r.Get("/tasks/active", taskHandler.ListActiveTasks)
		r.Get("/tasks/metrics", taskHandler.GetTaskMetrics)
		r.Get("/tasks/{id}", taskHandler.GetTask)

		// Maintenance endpoints need the database-backed retention
		// service; without a database they are simply not mounted.
		if app.retention != nil {
			maintenanceHandler := api.NewMaintenanceHandler(app.orchestrator, app.retention, app.logger)
			r.Post("/maintenance/retention/mark", maintenanceHandler.MarkExpired)
			r.Post("/maintenance/retention/delete", maintenanceHandler.DeleteExpired)
			r.Post("/maintenance/retention/recover/{tenantID}", maintenanceHandler.RecoverTenant)
			r.Get("/maintenance/retention/status/{tenantID}", maintenanceHandler.RetentionStatus)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
