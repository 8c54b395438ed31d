package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/flemzord/cronr/internal/job"
)

// document is the on-disk layout of jobs.json.
type document struct {
	NextID *uint64            `json:"next_id"`
	Jobs   map[uint64]job.Job `json:"jobs"`
}

// decode parses both the current document and the legacy layout, which is
// the id to job map without a wrapper.
func decode(raw []byte) (map[uint64]job.Job, uint64, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return make(map[uint64]job.Job), 0, nil
	}

	// Legacy keys are numeric, so either wrapper key selects the current
	// layout even when its value is null.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, 0, err
	}
	_, hasJobs := keys["jobs"]
	_, hasNextID := keys["next_id"]

	if !hasJobs && !hasNextID {
		var legacy map[uint64]job.Job
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, 0, err
		}
		if legacy == nil {
			legacy = make(map[uint64]job.Job)
		}
		return legacy, derivedNextID(legacy), nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, err
	}
	jobs := doc.Jobs
	if jobs == nil {
		jobs = make(map[uint64]job.Job)
	}
	next := derivedNextID(jobs)
	if doc.NextID != nil && *doc.NextID > next {
		next = *doc.NextID
	}
	return jobs, next, nil
}

// derivedNextID returns one past the largest id, or 0 for an empty map.
func derivedNextID(jobs map[uint64]job.Job) uint64 {
	var next uint64
	for id := range jobs {
		if id+1 > next {
			next = id + 1
		}
	}
	return next
}

func encode(jobs map[uint64]job.Job, nextID uint64) ([]byte, error) {
	doc := document{NextID: &nextID, Jobs: jobs}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

// writeAtomic writes data to a temporary file next to path, flushes it and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	err = os.Rename(tmpName, path)
	return err
}
