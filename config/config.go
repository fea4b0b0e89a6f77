// Package config provides pipewheel configuration loading and hot reload.
package config

// Config represents the pipewheel service configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json"` // JSON structured output instead of console
}

// SchedulerConfig configures the schedule ticker
type SchedulerConfig struct {
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"` // How often to check for due schedules (default: 1)
}

// QueueConfig configures the job queue worker pool
type QueueConfig struct {
	Workers             int `mapstructure:"workers"`               // Number of concurrent job workers (default: 1)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"` // How often workers poll for jobs (default: 5)
	MaxRetries          int `mapstructure:"max_retries"`           // Retry attempts for failed jobs (default: 2)
}

// EngineConfig configures the workflow execution engine client
type EngineConfig struct {
	Endpoint       string `mapstructure:"endpoint"`         // Engine HTTP endpoint (e.g. "http://localhost:9410")
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`  // Request timeout (default: 3600)
	UseFileHistory bool   `mapstructure:"use_file_history"` // Skip already-processed files on scheduled runs (default: true)
}

// EntitlementConfig configures the execution gate oracle.
// When Enabled is false (or Endpoint is empty) the gate is open and every
// organization is entitled.
type EntitlementConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Endpoint           string `mapstructure:"endpoint"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`      // Oracle request timeout (default: 10)
	MaxChecksPerMinute int    `mapstructure:"max_checks_per_minute"` // Rate limit on oracle calls (default: 60)
}
