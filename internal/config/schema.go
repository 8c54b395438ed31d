// Package config handles the data directory layout and the optional
// config.yaml that tunes the daemon.
package config

import (
	"log/slog"
	"time"

	"github.com/flemzord/cronr/internal/logrotate"
)

// Defaults for the tunable daemon settings.
const (
	DefaultReloadInterval = 30 * time.Second
	DefaultIdlePause      = 100 * time.Millisecond
	DefaultHistoryKeep    = 100
	DefaultHTTPShutdown   = 5 * time.Second
)

// Config is the top-level configuration structure.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// ReloadInterval is how often the daemon reloads jobs.json.
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// IdlePause is the short pause between two cycles of a job task.
	IdlePause time.Duration `yaml:"idle_pause"`

	// LogRotation controls rotation of the per-job stdout/stderr files.
	LogRotation RotationConfig `yaml:"log_rotation"`

	// Watch enables filesystem notifications on jobs.json so edits are
	// picked up before the next reload tick. Defaults to true.
	Watch *bool `yaml:"watch,omitempty"`

	// History configures the SQLite run history.
	History HistoryConfig `yaml:"history"`

	// HTTP configures the optional status endpoint.
	HTTP HTTPConfig `yaml:"http"`
}

// RotationConfig mirrors logrotate.Rotator.
type RotationConfig struct {
	MaxSize  int64 `yaml:"max_size"`
	MaxFiles int   `yaml:"max_files"`
}

// HistoryConfig configures run history retention.
type HistoryConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Keep is the number of runs retained per job.
	Keep int `yaml:"keep"`
}

// HTTPConfig configures the status endpoint. An empty Bind disables it.
type HTTPConfig struct {
	Bind            string        `yaml:"bind"`
	BearerToken     string        `yaml:"bearer_token"`
	BasicUser       string        `yaml:"basic_user"`
	BasicPass       string        `yaml:"basic_pass"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = DefaultReloadInterval
	}
	if c.IdlePause <= 0 {
		c.IdlePause = DefaultIdlePause
	}
	if c.LogRotation.MaxSize <= 0 {
		c.LogRotation.MaxSize = logrotate.DefaultMaxSize
	}
	if c.LogRotation.MaxFiles <= 0 {
		c.LogRotation.MaxFiles = logrotate.DefaultMaxFiles
	}
	if c.Watch == nil {
		c.Watch = boolPtr(true)
	}
	if c.History.Enabled == nil {
		c.History.Enabled = boolPtr(true)
	}
	if c.History.Keep <= 0 {
		c.History.Keep = DefaultHistoryKeep
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = DefaultHTTPShutdown
	}
}

// WatchEnabled reports whether jobs.json notifications are enabled.
func (c *Config) WatchEnabled() bool { return c.Watch == nil || *c.Watch }

// HistoryEnabled reports whether run history is recorded.
func (c *Config) HistoryEnabled() bool { return c.History.Enabled == nil || *c.History.Enabled }

// Rotator builds the log rotator for job output.
func (c *Config) Rotator() *logrotate.Rotator {
	return logrotate.New(c.LogRotation.MaxSize, c.LogRotation.MaxFiles)
}

// Level converts LogLevel to a slog level. Unknown values map to info;
// Validate rejects them beforehand.
func (c *Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func boolPtr(b bool) *bool { return &b }
