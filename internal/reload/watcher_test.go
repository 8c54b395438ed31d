package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case evt := <-w.Events():
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file change event")
		return Event{}
	}
}

func TestWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing initial file: %v", err)
	}

	w := NewWatcher(WatcherConfig{Path: path, PollInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{"next_id": 0, "jobs": {}}`), 0o644); err != nil {
		t.Fatalf("writing modified file: %v", err)
	}

	evt := waitEvent(t, w)
	if evt.Type != EventModified {
		t.Errorf("got event type %q, want %q", evt.Type, EventModified)
	}
	if evt.Path != path {
		t.Errorf("got path %q, want %q", evt.Path, path)
	}
}

func TestWatcher_DetectsAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing initial file: %v", err)
	}

	w := NewWatcher(WatcherConfig{Path: path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	tmp := filepath.Join(dir, ".jobs.json.123.tmp")
	if err := os.WriteFile(tmp, []byte(`{"next_id": 1, "jobs": {}}`), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if evt := waitEvent(t, w); evt.Type != EventModified {
		t.Errorf("got event type %q, want %q", evt.Type, EventModified)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	w := NewWatcher(WatcherConfig{Path: path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "daemon.log"), []byte("noise"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_Coalesces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	w := NewWatcher(WatcherConfig{Path: path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	for i := range 10 {
		if err := os.WriteFile(path, []byte{byte('0' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitEvent(t, w)
	if n := len(w.events); n > 1 {
		t.Errorf("pending events = %d, want at most 1", n)
	}
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	w := NewWatcher(WatcherConfig{Path: path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}

func TestWatcher_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	w := NewWatcher(WatcherConfig{Path: path})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	w := NewWatcher(WatcherConfig{Path: "/any/path"})

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop before Start deadlocked")
	}
}

func TestWatcher_MissingDirectoryFallsBackToPolling(t *testing.T) {
	w := NewWatcher(WatcherConfig{
		Path:         "/nonexistent/jobs.json",
		PollInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-ctx.Done():
	}
}
