// Package logrotate appends captured command output to a log file and
// rotates it into numbered backups once it grows past a size threshold.
package logrotate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Defaults applied to job output logs.
const (
	DefaultMaxSize  int64 = 5 * 1024 * 1024
	DefaultMaxFiles       = 5
)

// ErrRotation wraps every failure raised while rotating or appending.
var ErrRotation = errors.New("logrotate: rotation failed")

// Rotator holds the rotation policy. The zero value uses the defaults.
//
// Rotation is checked lazily before each write: a live file may exceed
// MaxSize by at most one write until the next Write call rotates it.
type Rotator struct {
	// MaxSize is the size in bytes at or above which the live file is rotated.
	MaxSize int64

	// MaxFiles is the number of rotated generations kept (<path>.1 … <path>.N).
	MaxFiles int
}

// New returns a Rotator with the given policy. Non-positive values fall
// back to the defaults.
func New(maxSize int64, maxFiles int) *Rotator {
	r := &Rotator{MaxSize: maxSize, MaxFiles: maxFiles}
	r.defaults()
	return r
}

func (r *Rotator) defaults() {
	if r.MaxSize <= 0 {
		r.MaxSize = DefaultMaxSize
	}
	if r.MaxFiles <= 0 {
		r.MaxFiles = DefaultMaxFiles
	}
}

// Write rotates path if needed and then appends data to it, creating the
// file when absent.
func (r *Rotator) Write(path string, data []byte) error {
	if err := r.Check(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrRotation, path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrRotation, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrRotation, path, err)
	}
	return nil
}

// Check rotates path when it exists and its size is at or above MaxSize.
func (r *Rotator) Check(path string) error {
	cp := *r
	cp.defaults()

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrRotation, path, err)
	}
	if info.Size() < cp.MaxSize {
		return nil
	}
	return cp.rotate(path)
}

func (r *Rotator) rotate(path string) error {
	oldest := Generation(path, r.MaxFiles)
	if err := os.Remove(oldest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrRotation, oldest, err)
	}

	for k := r.MaxFiles - 1; k >= 1; k-- {
		src := Generation(path, k)
		dst := Generation(path, k+1)
		if err := os.Rename(src, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: shift %s: %w", ErrRotation, src, err)
		}
	}

	if err := os.Rename(path, Generation(path, 1)); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrRotation, path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: recreate %s: %w", ErrRotation, path, err)
	}
	return f.Close()
}

// Generation returns the path of the n-th rotated backup of path.
func Generation(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}
