package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values,
// which take precedence over defaults. Returns a populated Config struct
// or an error if loading or validation fails.
//
// Environment variables use the CRYPTIQUE_ prefix with underscores for
// nesting, e.g. CRYPTIQUE_ORCHESTRATOR_MAX_CONCURRENT_TASKS=10.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CRYPTIQUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default value for every setting so the
// service starts with no configuration at all (aside from the auth secret).
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	// No usable default exists for the secret; the empty default is still
	// required so viper binds the environment variable during Unmarshal.
	v.SetDefault("auth.service_token_secret", "")

	v.SetDefault("etcd.endpoints", []string{})
	v.SetDefault("etcd.dial_timeout", "5s")

	v.SetDefault("orchestrator.executor_mode", "in-process")
	v.SetDefault("orchestrator.max_concurrent_tasks", 5)
	v.SetDefault("orchestrator.retry_limit", 3)
	v.SetDefault("orchestrator.retry_delay", "5s")
	v.SetDefault("orchestrator.lock_ttl", "60s")
	v.SetDefault("orchestrator.task_ttl", "1h")
	v.SetDefault("orchestrator.worker_command", "cryptique-taskworker")

	v.SetDefault("resource.sample_interval", "10s")
	v.SetDefault("resource.cpu_threshold", 80.0)
	v.SetDefault("resource.memory_threshold", 75.0)

	v.SetDefault("batch.size", 50)
	v.SetDefault("batch.size_min", 5)
	v.SetDefault("batch.size_max", 200)
	v.SetDefault("batch.delay", "1s")
	v.SetDefault("batch.delay_min", "100ms")
	v.SetDefault("batch.delay_max", "10s")
	v.SetDefault("batch.concurrency", 4)

	v.SetDefault("retention.grace_period_days", 30)
	v.SetDefault("retention.retention_period_days", 60)
	v.SetDefault("retention.backup_retention_days", 90)
	v.SetDefault("retention.page_size", 500)
}
