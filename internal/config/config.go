package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Etcd         EtcdConfig         `mapstructure:"etcd"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" validate:"required"`
	Resource     ResourceConfig     `mapstructure:"resource" validate:"required"`
	Batch        BatchConfig        `mapstructure:"batch" validate:"required"`
	Retention    RetentionConfig    `mapstructure:"retention" validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the durable task/tenant store settings.
// An empty URL disables persistence: the orchestrator then keeps task
// records in memory only and the maintenance jobs cannot run.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// EtcdConfig contains the coordination store settings. With no endpoints
// configured the lock manager falls back to in-process locking, which is
// only safe when a single instance is running.
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"required"`
}

// AuthConfig contains the admin API authentication settings.
type AuthConfig struct {
	ServiceTokenSecret string `mapstructure:"service_token_secret" validate:"required,min=32"`
}

// OrchestratorConfig contains task lifecycle settings.
type OrchestratorConfig struct {
	ExecutorMode       string        `mapstructure:"executor_mode" validate:"required,oneof=in-process subprocess remote"`
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" validate:"required,gt=0"`
	RetryLimit         int           `mapstructure:"retry_limit" validate:"gte=0"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" validate:"required,gt=0"`
	LockTTL            time.Duration `mapstructure:"lock_ttl" validate:"required,gt=0"`
	TaskTTL            time.Duration `mapstructure:"task_ttl" validate:"required,gt=0"`
	WorkerCommand      string        `mapstructure:"worker_command" validate:"required"`
}

// ResourceConfig contains the resource monitor settings. Thresholds are
// utilization percentages in (0, 100].
type ResourceConfig struct {
	SampleInterval  time.Duration `mapstructure:"sample_interval" validate:"required,gt=0"`
	CPUThreshold    float64       `mapstructure:"cpu_threshold" validate:"required,gt=0,lte=100"`
	MemoryThreshold float64       `mapstructure:"memory_threshold" validate:"required,gt=0,lte=100"`
}

// BatchConfig contains the initial batch tunables and their hard bounds.
type BatchConfig struct {
	Size        int           `mapstructure:"size" validate:"required,gt=0"`
	SizeMin     int           `mapstructure:"size_min" validate:"required,gt=0,ltefield=Size"`
	SizeMax     int           `mapstructure:"size_max" validate:"required,gtefield=Size"`
	Delay       time.Duration `mapstructure:"delay" validate:"gte=0"`
	DelayMin    time.Duration `mapstructure:"delay_min" validate:"gte=0,ltefield=Delay"`
	DelayMax    time.Duration `mapstructure:"delay_max" validate:"gtefield=Delay"`
	Concurrency int           `mapstructure:"concurrency" validate:"required,gt=0"`
}

// RetentionConfig contains the data retention lifecycle windows.
type RetentionConfig struct {
	GracePeriodDays     int `mapstructure:"grace_period_days" validate:"required,gt=0"`
	RetentionPeriodDays int `mapstructure:"retention_period_days" validate:"required,gt=0"`
	BackupRetentionDays int `mapstructure:"backup_retention_days" validate:"required,gt=0"`
	PageSize            int `mapstructure:"page_size" validate:"required,gt=0"`
}
