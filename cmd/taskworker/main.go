// Command taskworker runs a single maintenance task in an isolated
// process. The orchestrator's subprocess executor launches it with the
// task identity and payload in the environment and reads the final JSON
// line on stdout as the result.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/batch"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/postgres"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/resource"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/retention"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

func main() {
	// Stdout carries the result protocol, so all logging goes to stderr.
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	result, err := run(context.Background(), log)
	if err != nil {
		log.Error("worker failed", "error", err)
		writeResult(task.WorkerResult{Error: err.Error()})
		os.Exit(1)
	}
	writeResult(task.WorkerResult{Result: result})
}

func run(ctx context.Context, log *slog.Logger) (any, error) {
	taskType := os.Getenv(task.EnvTaskType)
	if taskType == "" {
		return nil, fmt.Errorf("%s is not set", task.EnvTaskType)
	}
	log = log.With("task_id", os.Getenv(task.EnvTaskID), "task_type", taskType)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("maintenance tasks require a configured database")
	}

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	// No resource monitor here: a short-lived worker runs on the static
	// tunables rather than sampling its own load.
	svc := retention.NewService(
		cfg.Retention,
		postgres.NewTenantStore(db),
		postgres.NewBackupStore(db),
		batch.New(clock),
		resource.NewTunables(cfg.Batch),
		nil,
		clock,
		log,
	)

	switch taskType {
	case retention.TaskTypeMark:
		return svc.MarkExpiredDataForDeletion(ctx)
	case retention.TaskTypeDelete:
		return svc.DeleteExpiredData(ctx)
	case retention.TaskTypeRecover:
		id, err := tenantIDFromPayload()
		if err != nil {
			return nil, err
		}
		return svc.RecoverTeamData(ctx, id)
	default:
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func tenantIDFromPayload() (uuid.UUID, error) {
	var payload struct {
		TenantID string `json:"tenant_id"`
	}
	raw := os.Getenv(task.EnvTaskPayload)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return uuid.Nil, fmt.Errorf("invalid task payload: %w", err)
		}
	}
	id, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant_id in payload: %w", err)
	}
	return id, nil
}

func writeResult(res task.WorkerResult) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
		os.Exit(1)
	}
}
