package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/cron"
	"github.com/flemzord/cronr/internal/gateway"
	"github.com/flemzord/cronr/internal/history"
	"github.com/flemzord/cronr/internal/metrics"
	"github.com/flemzord/cronr/internal/reload"
	"github.com/flemzord/cronr/internal/store"
)

// components holds everything the daemon starts, in start order.
type components struct {
	scheduler *cron.Scheduler
	history   *history.Store
	gateway   *gateway.Gateway
	watcher   *reload.Watcher
	logger    *slog.Logger
}

// wireDaemon builds the scheduler and its optional collaborators: run
// history, the jobs.json watcher and the HTTP gateway. A history database
// that cannot be opened is skipped; a gateway that cannot bind is fatal.
func wireDaemon(ctx context.Context, cfg *config.Config, s *store.Store, logger *slog.Logger, version string) (*components, error) {
	paths := config.Paths{DataDir: s.Dir()}
	m := metrics.New()
	c := &components{logger: logger}

	taskCfg := cron.TaskConfig{
		Paths:       paths,
		Rotator:     cfg.Rotator(),
		HistoryKeep: cfg.History.Keep,
		IdlePause:   cfg.IdlePause,
		Logger:      logger.With("component", "task"),
	}

	if cfg.HistoryEnabled() {
		h, err := history.Open(ctx, paths.HistoryDB())
		if err != nil {
			logger.Warn("daemon: run history disabled", "error", err)
		} else {
			c.history = h
			taskCfg.History = h
		}
	}

	var changes <-chan reload.Event
	if cfg.WatchEnabled() {
		c.watcher = reload.NewWatcher(reload.WatcherConfig{
			Path:   s.Path(),
			Logger: logger.With("component", "watcher"),
		})
		c.watcher.Start(ctx)
		changes = c.watcher.Events()
	}

	c.scheduler = cron.NewScheduler(cron.SchedulerConfig{
		Store:    s,
		Task:     taskCfg,
		Interval: cfg.ReloadInterval,
		Changes:  changes,
		Metrics:  m,
		Logger:   logger.With("component", "scheduler"),
	})

	if cfg.HTTP.Bind != "" {
		gw := gateway.New(gateway.Config{
			Bind: cfg.HTTP.Bind,
			Auth: gateway.AuthConfig{
				BearerToken: cfg.HTTP.BearerToken,
				BasicUser:   cfg.HTTP.BasicUser,
				BasicPass:   cfg.HTTP.BasicPass,
			},
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			StaleAfter:      3 * cfg.ReloadInterval,
		}, c.scheduler, m, version, logger.With("component", "gateway"))
		if err := gw.Start(ctx); err != nil {
			c.close()
			return nil, err
		}
		c.gateway = gw
	}

	return c, nil
}

// close stops the components in reverse start order.
func (c *components) close() {
	if c.gateway != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.gateway.Stop(stopCtx); err != nil {
			c.logger.Warn("daemon: gateway shutdown failed", "error", err)
		}
		cancel()
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			c.logger.Warn("daemon: closing history failed", "error", err)
		}
	}
}
