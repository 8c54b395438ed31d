package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Validate checks the semantic validity of a Config and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if cfg.ReloadInterval < time.Second {
		errs = append(errs, fmt.Errorf("config: reload_interval must be at least 1s, got %s", cfg.ReloadInterval))
	}
	if cfg.IdlePause > cfg.ReloadInterval {
		errs = append(errs, fmt.Errorf("config: idle_pause %s exceeds reload_interval %s", cfg.IdlePause, cfg.ReloadInterval))
	}

	if cfg.LogRotation.MaxSize < 1024 {
		errs = append(errs, fmt.Errorf("config: log_rotation.max_size must be at least 1024 bytes, got %d", cfg.LogRotation.MaxSize))
	}
	if cfg.LogRotation.MaxFiles > 100 {
		errs = append(errs, fmt.Errorf("config: log_rotation.max_files must be at most 100, got %d", cfg.LogRotation.MaxFiles))
	}

	if cfg.HTTP.Bind != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.HTTP.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: http.bind: %w", err))
		}
	} else if cfg.HTTP.BearerToken != "" || cfg.HTTP.BasicUser != "" {
		errs = append(errs, errors.New("config: http credentials are set but http.bind is empty"))
	}
	if (cfg.HTTP.BasicUser == "") != (cfg.HTTP.BasicPass == "") {
		errs = append(errs, errors.New("config: http.basic_user and http.basic_pass must be set together"))
	}

	return errors.Join(errs...)
}
