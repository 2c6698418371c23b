package config

import (
	"time"

	"github.com/vietddude/resilience/internal/infra/postgres"
	"github.com/vietddude/resilience/internal/infra/redisclient"
	"github.com/vietddude/resilience/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Retry    RetryConfig        `yaml:"retry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetryConfig lets a deployment override retry policy fields across the
// whole process. Zero values keep the per-resource preset defaults.
type RetryConfig struct {
	MaxRetries    int  `yaml:"max_retries"`
	BaseDelayMS   int  `yaml:"base_delay_ms"`
	MaxDelayMS    int  `yaml:"max_delay_ms"`
	DisableJitter bool `yaml:"disable_jitter"`
}

// Options translates the overrides into retry options.
func (c RetryConfig) Options() []retry.Option {
	var opts []retry.Option
	if c.MaxRetries > 0 {
		opts = append(opts, retry.WithMaxRetries(c.MaxRetries))
	}
	if c.BaseDelayMS > 0 {
		opts = append(opts, retry.WithBaseDelay(time.Duration(c.BaseDelayMS)*time.Millisecond))
	}
	if c.MaxDelayMS > 0 {
		opts = append(opts, retry.WithMaxDelay(time.Duration(c.MaxDelayMS)*time.Millisecond))
	}
	if c.DisableJitter {
		opts = append(opts, retry.WithJitter(false))
	}
	return opts
}
