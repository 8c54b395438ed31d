// Package cron runs the daemon side of cronr: a reconciliation loop that
// keeps one execution task alive per enabled job in the store.
package cron

import (
	"context"
	"errors"
	"time"

	"github.com/flemzord/cronr/internal/history"
	"github.com/flemzord/cronr/internal/job"
)

// ErrCommandExecution indicates a job's command could not be parsed or
// started.
var ErrCommandExecution = errors.New("cron: command execution failed")

// JobSource is the view of the job store the scheduler reconciles against.
type JobSource interface {
	// Load re-reads the store from disk.
	Load() error

	// List returns a snapshot of every job keyed by id.
	List() map[uint64]job.Job
}

// RunStore persists execution timestamps. Removed jobs must be ignored.
type RunStore interface {
	RecordRun(id uint64, last time.Time, next *time.Time) error
}

// Store is the job store as used by the daemon.
type Store interface {
	JobSource
	RunStore
}

// RunRecorder keeps the execution history.
type RunRecorder interface {
	Append(ctx context.Context, r history.Run) error
	Prune(ctx context.Context, jobID uint64, keep int) (int64, error)
}
