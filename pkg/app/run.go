// Package app provides the daemon entry point shared by the CLI's hidden
// daemon-internal command and the service manager integration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/reload"
	"github.com/flemzord/cronr/internal/security"
	"github.com/flemzord/cronr/internal/store"
	"github.com/flemzord/cronr/internal/supervisor"
)

// RunParams configures the daemon.
type RunParams struct {
	// DataDir is the resolved data directory. Required.
	DataDir string

	// LogLevel overrides log_level from config.yaml when non-empty.
	LogLevel string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives the daemon log. Defaults to os.Stderr, which the
	// supervisor points at daemon.log.
	LogOutput io.Writer
}

// RunDaemon loads the store and configuration, claims the PID file and
// runs the reconciliation loop until ctx is cancelled or SIGINT/SIGTERM
// is received. SIGHUP re-reads config.yaml.
func RunDaemon(ctx context.Context, params RunParams) error {
	paths := config.Paths{DataDir: params.DataDir}

	cfg, err := config.Load(paths.ConfigFile())
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Level())
	if params.LogLevel != "" {
		lvl, err := config.ParseLevel(params.LogLevel)
		if err != nil {
			return err
		}
		level.Set(lvl)
	}
	logger := newLogger(params.LogOutput, level, cfg.HTTP.BearerToken, cfg.HTTP.BasicPass)

	s, err := store.Open(params.DataDir)
	if err != nil {
		return err
	}

	sup := supervisor.New(params.DataDir, supervisor.Options{Logger: logger})
	pid := os.Getpid()
	if err := sup.Claim(pid); err != nil {
		return err
	}
	defer sup.Release(pid)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := wireDaemon(ctx, cfg, s, logger, params.Version)
	if err != nil {
		return err
	}
	defer d.close()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	go handleHangup(ctx, hupCh, reload.NewHandler(level, logger, paths.ConfigFile()), logger)

	logger.Info("daemon: started",
		"pid", pid,
		"data_dir", params.DataDir,
		"version", params.Version,
		"jobs", len(s.List()),
	)
	notifySystemd(logger, daemon.SdNotifyReady)

	err = d.scheduler.Run(ctx)

	notifySystemd(logger, daemon.SdNotifyStopping)
	if err != nil {
		logger.Error("daemon: reconciliation aborted", "error", err)
		return fmt.Errorf("daemon: %w", err)
	}
	logger.Info("daemon: shutdown complete")
	return nil
}

// newLogger builds the daemon logger. Secrets and credential-looking
// values in job commands are redacted.
func newLogger(out io.Writer, level slog.Leveler, secrets ...string) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	for _, s := range secrets {
		redactor.AddLiteral(s)
	}
	inner := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

func handleHangup(ctx context.Context, hupCh <-chan os.Signal, h *reload.Handler, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			logger.Info("daemon: SIGHUP received, reloading configuration")
			if _, err := h.HandleReload(ctx); err != nil {
				logger.Error("daemon: reload failed", "error", err)
			}
		}
	}
}

// notifySystemd is a no-op outside a systemd unit with Type=notify.
func notifySystemd(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("daemon: sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("daemon: sd_notify sent", "state", state)
	}
}

// ResolveDataDir returns the data directory for the given --data-dir flag.
func ResolveDataDir(flag string) (string, error) {
	return config.ResolveDataDir(flag)
}
