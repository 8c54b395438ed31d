// Package control implements the operations behind the CLI commands on
// top of the job store, the run history and the process supervisor.
package control

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/history"
	"github.com/flemzord/cronr/internal/job"
	"github.com/flemzord/cronr/internal/store"
	"github.com/flemzord/cronr/internal/supervisor"
)

// Daemon is the subset of supervisor.Supervisor the controller drives.
type Daemon interface {
	Start() (int, error)
	Stop() error
	IsRunning() bool
}

var _ Daemon = (*supervisor.Supervisor)(nil)

// Options configures a Controller.
type Options struct {
	DataDir string
	Version string
	Logger  *slog.Logger

	// Daemon defaults to a supervisor for DataDir.
	Daemon Daemon
}

// Controller executes CLI operations against one data directory.
type Controller struct {
	paths   config.Paths
	version string
	daemon  Daemon
	logger  *slog.Logger
}

// New creates a Controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := opts.Daemon
	if d == nil {
		d = supervisor.New(opts.DataDir, supervisor.Options{Logger: logger})
	}
	return &Controller{
		paths:   config.Paths{DataDir: opts.DataDir},
		version: opts.Version,
		daemon:  d,
		logger:  logger,
	}
}

// Row is one line of the job listing.
type Row struct {
	ID           uint64     `json:"id"`
	Command      string     `json:"command"`
	Schedule     string     `json:"schedule"`
	Enabled      bool       `json:"enabled"`
	LastExecuted *time.Time `json:"last_executed,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// Status summarizes the installation.
type Status struct {
	Version       string `json:"version"`
	ActiveJobs    int    `json:"active_jobs"`
	DaemonRunning bool   `json:"daemon_running"`
}

// Create initializes the store if needed, adds a job and starts the daemon
// when it is not running. started reports whether a daemon was spawned.
func (c *Controller) Create(command, schedule string) (id uint64, started bool, err error) {
	s, err := store.Init(c.paths.DataDir)
	if err != nil {
		return 0, false, err
	}
	id, err = s.Add(command, schedule)
	if err != nil {
		return 0, false, err
	}
	c.logger.Debug("control: job created", "job", id, "schedule", schedule)

	if c.daemon.IsRunning() {
		return id, false, nil
	}
	if _, err := c.daemon.Start(); err != nil {
		return id, false, err
	}
	return id, true, nil
}

// List returns every job ordered by id.
func (c *Controller) List() ([]Row, error) {
	s, err := store.Open(c.paths.DataDir)
	if err != nil {
		return nil, err
	}
	jobs := s.List()
	rows := make([]Row, 0, len(jobs))
	for id, j := range jobs {
		rows = append(rows, Row{
			ID:           id,
			Command:      j.Command,
			Schedule:     j.Schedule,
			Enabled:      j.Enabled,
			LastExecuted: j.LastExecuted,
			NextRun:      j.NextRun,
		})
	}
	slices.SortFunc(rows, func(a, b Row) int { return cmp.Compare(a.ID, b.ID) })
	return rows, nil
}

// Stop removes a job and its run history. The daemon cancels the job's
// task on its next reload.
func (c *Controller) Stop(ctx context.Context, id uint64) (job.Job, error) {
	s, err := store.Open(c.paths.DataDir)
	if err != nil {
		return job.Job{}, err
	}
	removed, err := s.Remove(id)
	if err != nil {
		return job.Job{}, err
	}

	err = c.withHistory(ctx, func(h *history.Store) error {
		return h.Purge(ctx, id)
	})
	if err != nil {
		c.logger.Warn("control: history purge failed", "job", id, "error", err)
	}
	return removed, nil
}

// Pause disables a job without removing it.
func (c *Controller) Pause(id uint64) (job.Job, error) {
	return c.setEnabled(id, false)
}

// Resume re-enables a paused job and schedules it from now.
func (c *Controller) Resume(id uint64) (job.Job, error) {
	return c.setEnabled(id, true)
}

func (c *Controller) setEnabled(id uint64, enabled bool) (job.Job, error) {
	s, err := store.Open(c.paths.DataDir)
	if err != nil {
		return job.Job{}, err
	}
	return s.SetEnabled(id, enabled)
}

// Status reports the version, the number of jobs and whether the daemon
// is alive. A missing data directory is initialized.
func (c *Controller) Status() (Status, error) {
	s, err := store.Open(c.paths.DataDir)
	if errors.Is(err, store.ErrUninitialized) {
		s, err = store.Init(c.paths.DataDir)
	}
	if err != nil {
		return Status{}, err
	}
	return Status{
		Version:       c.version,
		ActiveJobs:    len(s.List()),
		DaemonRunning: c.daemon.IsRunning(),
	}, nil
}

// History returns up to n recent runs of a job, oldest first.
func (c *Controller) History(ctx context.Context, id uint64, n int) ([]history.Run, error) {
	s, err := store.Open(c.paths.DataDir)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	var runs []history.Run
	err = c.withHistory(ctx, func(h *history.Store) error {
		var err error
		runs, err = h.Recent(ctx, id, n)
		return err
	})
	return runs, err
}

// StartDaemon starts the daemon. It reports false when one is already
// running.
func (c *Controller) StartDaemon() (bool, error) {
	if !c.paths.Exists() {
		return false, store.ErrUninitialized
	}
	if _, err := c.daemon.Start(); err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StopDaemon stops the daemon. It reports false when none was running.
func (c *Controller) StopDaemon() (bool, error) {
	if !c.paths.Exists() {
		return false, store.ErrUninitialized
	}
	if err := c.daemon.Stop(); err != nil {
		if errors.Is(err, supervisor.ErrNotRunning) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// withHistory runs fn against history.db when it exists.
func (c *Controller) withHistory(ctx context.Context, fn func(*history.Store) error) error {
	path := c.paths.HistoryDB()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	h, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()
	return fn(h)
}
