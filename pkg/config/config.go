// Package config provides configuration for nebula-sql connectors and pipelines.
//
// Every connector config embeds BaseConfig, which groups the settings shared
// by all connectors:
//   - Performance: stream buffer sizes
//   - Timeouts: connection and per-statement timeouts
//   - Reliability: retry policy for acquiring connections
//   - Observability: metrics, tracing and log level
//
// Connector-specific settings live in SelectConfig and InsertOrUpdateConfig.
// Configs are built with their New* constructors, or loaded from YAML and then
// completed with ApplyDefaults. Validate must pass before a config is used.
//
//	cfg := config.NewSelectConfig("SELECT * FROM users")
//	cfg.PageSize = 500
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// BaseConfig is the configuration shared by all connectors. Connectors embed
// it with the yaml inline tag.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Type is the registry name of the connector (e.g. "sql_select")
	Type string `yaml:"type" json:"type" mapstructure:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version" mapstructure:"version"`

	Performance   PerformanceConfig   `yaml:"performance" json:"performance" mapstructure:"performance"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts" mapstructure:"timeouts"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability" mapstructure:"reliability"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// PerformanceConfig contains throughput settings.
type PerformanceConfig struct {
	// BufferSize is the capacity of the record channel a connector produces
	BufferSize int `yaml:"buffer_size" json:"buffer_size" mapstructure:"buffer_size"`
}

// TimeoutConfig contains timeout settings. Zero disables a timeout.
type TimeoutConfig struct {
	// Connection bounds acquiring a connection from the engine
	Connection time.Duration `yaml:"connection" json:"connection" mapstructure:"connection"`
	// Statement bounds a single page query or a single flush
	Statement time.Duration `yaml:"statement" json:"statement" mapstructure:"statement"`
}

// ReliabilityConfig controls retries. Retries only ever apply to acquiring a
// connection; query execution failures are never retried.
type ReliabilityConfig struct {
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	RetryMultiplier float64       `yaml:"retry_multiplier" json:"retry_multiplier" mapstructure:"retry_multiplier"`
	MaxRetryDelay   time.Duration `yaml:"max_retry_delay" json:"max_retry_delay" mapstructure:"max_retry_delay"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	LogLevel      string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
}

// NewBaseConfig creates a BaseConfig with defaults.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	cfg := &BaseConfig{Name: name, Type: connectorType}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *BaseConfig) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	if c.Performance.BufferSize == 0 {
		c.Performance.BufferSize = 1000
	}
	if c.Timeouts.Connection == 0 {
		c.Timeouts.Connection = 30 * time.Second
	}
	if c.Reliability.RetryAttempts == 0 {
		c.Reliability.RetryAttempts = 3
	}
	if c.Reliability.RetryDelay == 0 {
		c.Reliability.RetryDelay = time.Second
	}
	if c.Reliability.RetryMultiplier == 0 {
		c.Reliability.RetryMultiplier = 2.0
	}
	if c.Reliability.MaxRetryDelay == 0 {
		c.Reliability.MaxRetryDelay = 30 * time.Second
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

// Validate checks the shared settings.
func (c *BaseConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Performance.BufferSize < 0 {
		return fmt.Errorf("performance.buffer_size must not be negative")
	}
	if c.Timeouts.Connection < 0 || c.Timeouts.Statement < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts must not be negative")
	}
	if c.Reliability.RetryMultiplier < 1 {
		return fmt.Errorf("reliability.retry_multiplier must be at least 1")
	}

	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	return nil
}
