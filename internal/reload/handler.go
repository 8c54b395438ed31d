package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/cronr/internal/config"
)

// Handler re-reads config.yaml on demand (SIGHUP) and applies the settings
// that can change without a restart. Today that is the log level.
type Handler struct {
	level  *slog.LevelVar
	logger *slog.Logger
	path   string
}

// NewHandler creates a reload handler for the config file at path.
func NewHandler(level *slog.LevelVar, logger *slog.Logger, path string) *Handler {
	return &Handler{
		level:  level,
		logger: logger,
		path:   path,
	}
}

// HandleReload loads a fresh config from disk, validates it and applies it.
// An invalid file leaves the running settings untouched.
func (h *Handler) HandleReload(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before reload: %w", err)
	}

	cfg, err := config.Load(h.path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	h.level.Set(cfg.Level())
	h.logger.Info("reload: configuration reloaded", "log_level", cfg.Level().String())
	return cfg, nil
}
