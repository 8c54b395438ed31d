package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string
	Auth            AuthConfig
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// StaleAfter marks /health degraded when the last successful reload
	// is older than this. Zero disables the check.
	StaleAfter time.Duration

	// AuthRate and AuthBurst bound authentication attempts per second
	// across all clients.
	AuthRate  float64
	AuthBurst int
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.AuthRate <= 0 {
		c.AuthRate = 5
	}
	if c.AuthBurst <= 0 {
		c.AuthBurst = 10
	}
}

// AuthConfig configures authentication for /status and /metrics.
type AuthConfig struct {
	BearerToken string
	BasicUser   string
	BasicPass   string
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
