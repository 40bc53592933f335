package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The auth secret has no default, so every test must provide one.
const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CRYPTIQUE_AUTH_SERVICE_TOKEN_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "in-process", cfg.Orchestrator.ExecutorMode)
	assert.Equal(t, 5, cfg.Orchestrator.MaxConcurrentTasks)
	assert.Equal(t, 3, cfg.Orchestrator.RetryLimit)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.Orchestrator.LockTTL)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 5, cfg.Batch.SizeMin)
	assert.Equal(t, 200, cfg.Batch.SizeMax)
	assert.Equal(t, time.Second, cfg.Batch.Delay)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 80.0, cfg.Resource.CPUThreshold)
	assert.Equal(t, 30, cfg.Retention.GracePeriodDays)
	assert.Empty(t, cfg.Etcd.Endpoints)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRYPTIQUE_AUTH_SERVICE_TOKEN_SECRET", testSecret)
	t.Setenv("CRYPTIQUE_SERVER_PORT", "9090")
	t.Setenv("CRYPTIQUE_ORCHESTRATOR_MAX_CONCURRENT_TASKS", "12")
	t.Setenv("CRYPTIQUE_ORCHESTRATOR_RETRY_DELAY", "250ms")
	t.Setenv("CRYPTIQUE_BATCH_SIZE", "25")
	t.Setenv("CRYPTIQUE_RESOURCE_MEMORY_THRESHOLD", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Orchestrator.MaxConcurrentTasks)
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.RetryDelay)
	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, 60.0, cfg.Resource.MemoryThreshold)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing auth secret",
			env:  map[string]string{},
		},
		{
			name: "secret too short",
			env: map[string]string{
				"CRYPTIQUE_AUTH_SERVICE_TOKEN_SECRET": "short",
			},
		},
		{
			name: "invalid executor mode",
			env: map[string]string{
				"CRYPTIQUE_AUTH_SERVICE_TOKEN_SECRET": testSecret,
				"CRYPTIQUE_ORCHESTRATOR_EXECUTOR_MODE": "carrier-pigeon",
			},
		},
		{
			name: "invalid log level",
			env: map[string]string{
				"CRYPTIQUE_AUTH_SERVICE_TOKEN_SECRET": testSecret,
				"CRYPTIQUE_SERVER_LOG_LEVEL":          "verbose",
			},
		},
		{
			name: "batch size below minimum bound",
			env: map[string]string{
				"CRYPTIQUE_AUTH_SERVICE_TOKEN_SECRET": testSecret,
				"CRYPTIQUE_BATCH_SIZE":                "2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
