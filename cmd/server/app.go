package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/batch"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/lock"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/logger"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/postgres"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/resource"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/retention"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/service/auth"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

// application holds the wired dependencies for the server process.
type application struct {
	config *config.Config
	logger *slog.Logger

	db           *sql.DB
	etcdClient   *clientv3.Client
	locks        lock.Manager
	monitor      *resource.Monitor
	orchestrator *task.Orchestrator
	retention    *retention.Service
	tokens       auth.TokenService
}

// newApplication loads configuration and builds the dependency graph:
// logger, database, coordination store, orchestrator, retention service
// and the auth token service.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"executor_mode", cfg.Orchestrator.ExecutorMode,
		"database_configured", cfg.Database.URL != "",
		"etcd_endpoints", len(cfg.Etcd.Endpoints))

	app := &application{config: cfg, logger: log}
	clock := clockwork.NewRealClock()

	if cfg.Database.URL != "" {
		db, err := setupDatabase(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		app.db = db
	} else {
		log.Warn("no database configured, task records are memory-only and maintenance jobs are disabled")
	}

	if err := app.setupLocks(ctx, clock); err != nil {
		app.cleanup()
		return nil, err
	}

	tunables := resource.NewTunables(cfg.Batch)
	app.monitor = resource.NewMonitor(cfg.Resource, tunables, resource.NewHostSampler(), clock, log)

	metrics := task.NewMetrics(prometheus.DefaultRegisterer)
	var taskStore task.Store
	if app.db != nil {
		taskStore = postgres.NewTaskStore(app.db)
	}
	app.orchestrator = task.New(
		cfg.Orchestrator,
		app.locks,
		taskStore,
		metrics,
		clock,
		log,
		task.WithThrottle(app.monitor),
	)

	if app.db != nil {
		app.retention = retention.NewService(
			cfg.Retention,
			postgres.NewTenantStore(app.db),
			postgres.NewBackupStore(app.db),
			batch.New(clock),
			tunables,
			app.monitor,
			clock,
			log,
		)
		app.retention.RegisterHandlers(app.orchestrator)
	}

	app.tokens, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to set up token service: %w", err)
	}

	return app, nil
}

// setupLocks connects to etcd when endpoints are configured, otherwise
// falls back to in-process locking for single-instance deployments.
func (app *application) setupLocks(ctx context.Context, clock clockwork.Clock) error {
	if len(app.config.Etcd.Endpoints) == 0 {
		app.logger.Warn("no etcd endpoints configured, using in-process locks (single-instance mode)")
		app.locks = lock.NewMemoryManager(clock)
		return nil
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   app.config.Etcd.Endpoints,
		DialTimeout: app.config.Etcd.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create etcd client: %w", err)
	}
	app.etcdClient = client
	app.locks = lock.NewEtcdManager(client, app.logger)
	app.logger.Info("etcd lock manager ready", "endpoints", app.config.Etcd.Endpoints)
	return nil
}

// run starts the orchestrator and serves HTTP until a shutdown signal.
func (app *application) run(ctx context.Context) error {
	if err := app.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer app.orchestrator.Stop()

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup closes the external connections. Safe to call on a partially
// initialized application.
func (app *application) cleanup() {
	if app.monitor != nil {
		app.monitor.Stop()
	}
	if app.etcdClient != nil {
		if err := app.etcdClient.Close(); err != nil {
			app.logger.Warn("failed to close etcd client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn("failed to close database connection", "error", err)
		}
	}
}
