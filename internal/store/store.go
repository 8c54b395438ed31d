// Package store persists job records in jobs.json.
//
// Every mutation re-reads the file, applies the change and writes the
// result back through a temporary file renamed over the original, so
// concurrent readers never see a torn document. Writers in different
// processes are not coordinated: the last rename wins.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/job"
)

// Store owns the id to job mapping and the id counter.
type Store struct {
	mu     sync.Mutex
	paths  config.Paths
	jobs   map[uint64]job.Job
	nextID uint64

	// now is overridden in tests.
	now func() time.Time
}

// Init creates the data directory layout if needed and loads the store.
// A missing jobs.json yields an empty store.
func Init(dir string) (*Store, error) {
	paths := config.Paths{DataDir: dir}
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	return Open(dir)
}

// Open loads the store of an existing data directory. It fails with
// ErrUninitialized when the directory does not exist.
func Open(dir string) (*Store, error) {
	s := &Store{
		paths: config.Paths{DataDir: dir},
		jobs:  make(map[uint64]job.Job),
		now:   time.Now,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the data directory backing the store.
func (s *Store) Dir() string { return s.paths.DataDir }

// Path returns the jobs.json path.
func (s *Store) Path() string { return s.paths.JobsFile() }

// Load replaces the in-memory state with the on-disk document.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload()
}

// Add validates the schedule, captures the environment allowlist and
// stores a new enabled job. It returns the allocated id.
func (s *Store) Add(command, schedule string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := job.New(command, schedule, s.now())
	if err != nil {
		return 0, err
	}
	if err := s.reload(); err != nil {
		return 0, err
	}

	id := s.nextID
	s.jobs[id] = j
	s.nextID++

	if err := s.persist(); err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id uint64) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, &UnknownJobError{ID: id}
	}
	return j.Clone(), nil
}

// Remove deletes a job and returns the removed record. The id is never
// handed out again.
func (s *Store) Remove(id uint64) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return job.Job{}, err
	}
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, &UnknownJobError{ID: id}
	}
	delete(s.jobs, id)

	if err := s.persist(); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// List returns a snapshot of every job keyed by id.
func (s *Store) List() map[uint64]job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uint64]job.Job, len(s.jobs))
	for id, j := range s.jobs {
		out[id] = j.Clone()
	}
	return out
}

// SetEnabled pauses or resumes a job. Resuming recomputes NextRun from now.
func (s *Store) SetEnabled(id uint64, enabled bool) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return job.Job{}, err
	}
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, &UnknownJobError{ID: id}
	}

	if enabled {
		if err := j.Enable(s.now()); err != nil {
			return job.Job{}, err
		}
	} else {
		j.Disable()
	}
	s.jobs[id] = j

	if err := s.persist(); err != nil {
		return job.Job{}, err
	}
	return j.Clone(), nil
}

// RecordRun stores the outcome of an execution. A nil next clears NextRun.
// Jobs removed in the meantime are ignored.
func (s *Store) RecordRun(id uint64, last time.Time, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return err
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}

	at := last.UTC()
	j.LastExecuted = &at
	j.NextRun = nil
	if next != nil {
		n := next.UTC()
		j.NextRun = &n
	}
	s.jobs[id] = j

	return s.persist()
}

// reload reads jobs.json into memory. The caller holds s.mu.
func (s *Store) reload() error {
	if !s.paths.Exists() {
		return fmt.Errorf("%w: %s", ErrUninitialized, s.paths.DataDir)
	}

	raw, err := os.ReadFile(s.paths.JobsFile())
	if errors.Is(err, fs.ErrNotExist) {
		s.jobs = make(map[uint64]job.Job)
		s.nextID = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", config.ErrConfig, s.paths.JobsFile(), err)
	}

	jobs, nextID, err := decode(raw)
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %w", config.ErrConfig, s.paths.JobsFile(), err)
	}
	s.jobs = jobs
	s.nextID = nextID
	return nil
}

// persist writes the in-memory state to disk. The caller holds s.mu.
func (s *Store) persist() error {
	raw, err := encode(s.jobs, s.nextID)
	if err != nil {
		return fmt.Errorf("%w: encoding jobs: %w", config.ErrConfig, err)
	}
	if err := writeAtomic(s.paths.JobsFile(), raw); err != nil {
		return fmt.Errorf("%w: writing %s: %w", config.ErrConfig, s.paths.JobsFile(), err)
	}
	return nil
}
