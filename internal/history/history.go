package history

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ExitSpawnFailed is recorded when the command could not be started.
const ExitSpawnFailed = -1

// Run is one execution of a job.
type Run struct {
	JobID      uint64
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Error      string
}

// Duration returns how long the command ran.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Succeeded reports a zero exit status without error.
func (r Run) Succeeded() bool { return r.ExitCode == 0 && r.Error == "" }

// Append records a run.
func (s *Store) Append(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (job_id, started_at, finished_at, exit_code, error)
		VALUES (?, ?, ?, ?, ?)`,
		int64(r.JobID),
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.ExitCode,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("history: append run: %w", err)
	}
	return nil
}

// Recent returns the n most recent runs of a job in chronological order.
func (s *Store) Recent(ctx context.Context, jobID uint64, n int) ([]Run, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, started_at, finished_at, exit_code, error
		FROM runs
		WHERE job_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		int64(jobID), n,
	)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			id                int64
			started, finished string
		)
		if err := rows.Scan(&id, &started, &finished, &r.ExitCode, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.JobID = uint64(id)
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("history: parse started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("history: parse finished_at: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}

	slices.Reverse(runs)
	return runs, nil
}

// Prune keeps the newest keep runs of a job and returns how many were
// deleted.
func (s *Store) Prune(ctx context.Context, jobID uint64, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE job_id = ?
		AND id NOT IN (SELECT id FROM runs WHERE job_id = ? ORDER BY id DESC LIMIT ?)`,
		int64(jobID), int64(jobID), max(keep, 0),
	)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: prune rows affected: %w", err)
	}
	return n, nil
}

// Purge removes every run of a job.
func (s *Store) Purge(ctx context.Context, jobID uint64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE job_id = ?", int64(jobID)); err != nil {
		return fmt.Errorf("history: purge: %w", err)
	}
	return nil
}

// Count returns the number of runs stored for a job.
func (s *Store) Count(ctx context.Context, jobID uint64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM runs WHERE job_id = ?", int64(jobID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("history: count runs: %w", err)
	}
	return count, nil
}
