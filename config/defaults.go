package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "pipewheel.db")

	// Log defaults
	v.SetDefault("log.json", false)

	// Scheduler defaults
	v.SetDefault("scheduler.ticker_interval_seconds", 1)

	// Queue defaults
	v.SetDefault("queue.workers", 1)
	v.SetDefault("queue.poll_interval_seconds", 5)
	v.SetDefault("queue.max_retries", 2)

	// Engine defaults
	v.SetDefault("engine.endpoint", "http://localhost:9410")
	v.SetDefault("engine.timeout_seconds", 3600)
	v.SetDefault("engine.use_file_history", true)

	// Entitlement gate defaults (open by default)
	v.SetDefault("entitlement.enabled", false)
	v.SetDefault("entitlement.timeout_seconds", 10)
	v.SetDefault("entitlement.max_checks_per_minute", 60)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "PIPEWHEEL_DATABASE_PATH")
	v.BindEnv("engine.endpoint", "PIPEWHEEL_ENGINE_ENDPOINT")
	v.BindEnv("entitlement.endpoint", "PIPEWHEEL_ENTITLEMENT_ENDPOINT")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "pipewheel.db" // Fallback default
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Queue: {Workers: %d}, Entitlement: {Enabled: %t}}",
		c.Database.Path, c.Queue.Workers, c.Entitlement.Enabled)
}
