// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/cronr/internal/cron"
	"github.com/flemzord/cronr/internal/history"
	"github.com/flemzord/cronr/internal/job"
)

// Compile-time interface checks.
var (
	_ cron.Store       = (*MemoryStore)(nil)
	_ cron.RunRecorder = (*Recorder)(nil)
)

// RunRecord is one RecordRun call.
type RunRecord struct {
	ID   uint64
	Last time.Time
	Next *time.Time
}

// MemoryStore is an in-memory cron.Store. Mutations made with Put and
// Delete are visible immediately, the way an out-of-band CLI write is
// visible after the next reload.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[uint64]job.Job
	loadErr error
	records []RunRecord

	loads atomic.Int32
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uint64]job.Job)}
}

// Put inserts or replaces a job.
func (m *MemoryStore) Put(id uint64, j job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = j.Clone()
}

// Delete removes a job.
func (m *MemoryStore) Delete(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// Get returns a copy of a job.
func (m *MemoryStore) Get(id uint64) (job.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j.Clone(), ok
}

// SetLoadError makes subsequent Load calls fail with err.
func (m *MemoryStore) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// Load implements cron.JobSource.
func (m *MemoryStore) Load() error {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

// Loads returns the number of Load calls.
func (m *MemoryStore) Loads() int { return int(m.loads.Load()) }

// List implements cron.JobSource.
func (m *MemoryStore) List() map[uint64]job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]job.Job, len(m.jobs))
	for id, j := range m.jobs {
		out[id] = j.Clone()
	}
	return out
}

// RecordRun implements cron.RunStore.
func (m *MemoryStore) RecordRun(id uint64, last time.Time, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, RunRecord{ID: id, Last: last, Next: next})

	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	j.LastExecuted = &last
	j.NextRun = next
	m.jobs[id] = j
	return nil
}

// Records returns every RecordRun call for id.
func (m *MemoryStore) Records(id uint64) []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunRecord
	for _, r := range m.records {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}

// Recorder is an in-memory cron.RunRecorder.
type Recorder struct {
	mu     sync.Mutex
	runs   []history.Run
	prunes int
}

// Append implements cron.RunRecorder.
func (r *Recorder) Append(_ context.Context, run history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

// Prune implements cron.RunRecorder.
func (r *Recorder) Prune(_ context.Context, jobID uint64, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prunes++

	var kept []history.Run
	count := 0
	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if run.JobID == jobID {
			if count >= keep {
				continue
			}
			count++
		}
		kept = append(kept, run)
	}
	deleted := int64(len(r.runs) - len(kept))
	slices.Reverse(kept)
	r.runs = kept
	return deleted, nil
}

// Runs returns the recorded runs of a job.
func (r *Recorder) Runs(jobID uint64) []history.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Run
	for _, run := range r.runs {
		if run.JobID == jobID {
			out = append(out, run)
		}
	}
	return out
}

// Prunes returns the number of Prune calls.
func (r *Recorder) Prunes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prunes
}
