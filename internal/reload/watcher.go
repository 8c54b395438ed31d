// Package reload notifies the daemon when jobs.json or config.yaml change.
package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Path is the file to watch. Its parent directory is watched so
	// atomic replacements (rename over the file) are observed.
	Path string

	// PollInterval is used only when filesystem notifications are
	// unavailable. Defaults to 5 seconds if zero.
	PollInterval time.Duration

	Logger *slog.Logger
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the file was written, created or replaced.
	EventModified EventType = "modified"

	// EventRemoved indicates the file was deleted.
	EventRemoved EventType = "removed"
)

// Event represents a file change notification.
type Event struct {
	Type EventType
	Path string
}

// Watcher reports changes to a single file. Bursts are coalesced: the
// events channel holds at most one pending event.
type Watcher struct {
	cfg     WatcherConfig
	logger  *slog.Logger
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins watching. When fsnotify cannot watch the directory the
// watcher falls back to polling the file's modification time. Safe to call
// multiple times; only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)

		fsw, err := w.newNotifier()
		if err != nil {
			w.logger.Warn("reload: file notifications unavailable, polling instead",
				"path", w.cfg.Path,
				"error", err,
			)
			go w.poll(ctx)
			return
		}
		go w.notify(ctx, fsw)
	})
}

// Events returns the channel of file change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) newNotifier() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.cfg.Path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return fsw, nil
}

func (w *Watcher) notify(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.stopped)
	defer fsw.Close()

	target := filepath.Clean(w.cfg.Path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.emit(EventModified)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.emit(EventRemoved)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("reload: watcher error", "path", w.cfg.Path, "error", err)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	lastMod := w.statModTime()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.statModTime()
			if current.IsZero() {
				continue
			}
			if current.After(lastMod) {
				lastMod = current
				w.emit(EventModified)
			}
		}
	}
}

// emit drops the event when one is already pending.
func (w *Watcher) emit(t EventType) {
	select {
	case w.events <- Event{Type: t, Path: w.cfg.Path}:
	default:
	}
}

func (w *Watcher) statModTime() time.Time {
	info, err := os.Stat(w.cfg.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
