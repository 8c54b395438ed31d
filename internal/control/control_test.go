package control

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/cronr/internal/history"
	"github.com/flemzord/cronr/internal/job"
	"github.com/flemzord/cronr/internal/store"
	"github.com/flemzord/cronr/internal/supervisor"
)

type fakeDaemon struct {
	running  bool
	starts   int
	stops    int
	startErr error
}

func (f *fakeDaemon) Start() (int, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	if f.running {
		return 0, supervisor.ErrAlreadyRunning
	}
	f.running = true
	f.starts++
	return 4242, nil
}

func (f *fakeDaemon) Stop() error {
	if !f.running {
		return supervisor.ErrNotRunning
	}
	f.running = false
	f.stops++
	return nil
}

func (f *fakeDaemon) IsRunning() bool { return f.running }

func newController(t *testing.T) (*Controller, *fakeDaemon, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	d := &fakeDaemon{}
	return New(Options{DataDir: dir, Version: "1.0.0", Daemon: d}), d, dir
}

func TestCreate_InitializesAndStartsDaemon(t *testing.T) {
	t.Parallel()

	c, d, dir := newController(t)

	id, started, err := c.Create("echo hi", "0 * * * * *")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 1 || !started {
		t.Errorf("Create = (%d, %v), want (1, true)", id, started)
	}
	if d.starts != 1 {
		t.Errorf("daemon starts = %d, want 1", d.starts)
	}

	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if _, err := s.Get(1); err != nil {
		t.Errorf("Get(1): %v", err)
	}

	id, started, err = c.Create("echo again", "0 0 * * * *")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if id != 2 || started {
		t.Errorf("second Create = (%d, %v), want (2, false)", id, started)
	}
	if d.starts != 1 {
		t.Errorf("daemon starts = %d, want 1", d.starts)
	}
}

func TestCreate_InvalidScheduleDoesNotStartDaemon(t *testing.T) {
	t.Parallel()

	c, d, _ := newController(t)

	_, _, err := c.Create("echo hi", "not a schedule")
	if !errors.Is(err, job.ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
	if d.starts != 0 {
		t.Errorf("daemon starts = %d, want 0", d.starts)
	}
}

func TestCreate_DaemonStartFailureKeepsJob(t *testing.T) {
	t.Parallel()

	c, d, _ := newController(t)
	d.startErr = supervisor.ErrStartFailed

	id, started, err := c.Create("echo hi", "0 * * * * *")
	if !errors.Is(err, supervisor.ErrStartFailed) {
		t.Fatalf("err = %v, want ErrStartFailed", err)
	}
	if id != 1 || started {
		t.Errorf("Create = (%d, %v), want (1, false)", id, started)
	}

	rows, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestList_OrderedByID(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(t)
	for _, cmd := range []string{"echo a", "echo b", "echo c"} {
		if _, _, err := c.Create(cmd, "0 * * * * *"); err != nil {
			t.Fatalf("Create(%q): %v", cmd, err)
		}
	}
	if _, err := c.Stop(context.Background(), 2); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rows, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].ID != 3 {
		t.Fatalf("rows = %+v, want ids 1 and 3", rows)
	}
	if rows[1].Command != "echo c" || rows[1].Schedule != "0 * * * * *" || !rows[1].Enabled {
		t.Errorf("row = %+v", rows[1])
	}
	if rows[0].NextRun == nil {
		t.Error("NextRun = nil, want computed next run")
	}
}

func TestUninitialized(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(t)
	ctx := context.Background()

	if _, err := c.List(); !errors.Is(err, store.ErrUninitialized) {
		t.Errorf("List err = %v, want ErrUninitialized", err)
	}
	if _, err := c.Stop(ctx, 1); !errors.Is(err, store.ErrUninitialized) {
		t.Errorf("Stop err = %v, want ErrUninitialized", err)
	}
	if _, err := c.StartDaemon(); !errors.Is(err, store.ErrUninitialized) {
		t.Errorf("StartDaemon err = %v, want ErrUninitialized", err)
	}
	if _, err := c.StopDaemon(); !errors.Is(err, store.ErrUninitialized) {
		t.Errorf("StopDaemon err = %v, want ErrUninitialized", err)
	}
}

func TestStop_UnknownJob(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(t)
	if _, _, err := c.Create("echo hi", "0 * * * * *"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := c.Stop(context.Background(), 999)
	var unknown *store.UnknownJobError
	if !errors.As(err, &unknown) || unknown.ID != 999 {
		t.Fatalf("err = %v, want UnknownJobError{999}", err)
	}
}

func TestStop_PurgesHistory(t *testing.T) {
	t.Parallel()

	c, _, dir := newController(t)
	ctx := context.Background()
	if _, _, err := c.Create("echo hi", "0 * * * * *"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	h, err := history.Open(ctx, filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	now := time.Now().UTC()
	if err := h.Append(ctx, history.Run{JobID: 1, StartedAt: now, FinishedAt: now}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = h.Close()

	runs, err := c.History(ctx, 1, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}

	removed, err := c.Stop(ctx, 1)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if removed.Command != "echo hi" {
		t.Errorf("removed command = %q, want %q", removed.Command, "echo hi")
	}

	h, err = history.Open(ctx, filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer func() { _ = h.Close() }()
	n, err := h.Count(ctx, 1)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("history count = %d, want 0", n)
	}
}

func TestHistory_NoDatabase(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(t)
	if _, _, err := c.Create("echo hi", "0 * * * * *"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	runs, err := c.History(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %v, want none", runs)
	}

	if _, err := c.History(context.Background(), 7, 10); !errors.Is(err, store.ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(t)
	if _, _, err := c.Create("echo hi", "0 * * * * *"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	j, err := c.Pause(1)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if j.Enabled {
		t.Error("Pause: job still enabled")
	}

	j, err = c.Resume(1)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !j.Enabled || j.NextRun == nil {
		t.Errorf("Resume: job = %+v, want enabled with next run", j)
	}

	if _, err := c.Pause(5); !errors.Is(err, store.ErrUnknownJob) {
		t.Errorf("Pause(5) err = %v, want ErrUnknownJob", err)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	c, d, dir := newController(t)

	st, err := c.Status()
	if err != nil {
		t.Fatalf("Status on fresh dir: %v", err)
	}
	if st.Version != "1.0.0" || st.ActiveJobs != 0 || st.DaemonRunning {
		t.Errorf("Status = %+v, want empty", st)
	}
	if _, err := store.Open(dir); err != nil {
		t.Errorf("Status did not initialize the data dir: %v", err)
	}

	if _, _, err := c.Create("echo hi", "0 * * * * *"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	st, err = c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.ActiveJobs != 1 || !st.DaemonRunning {
		t.Errorf("Status = %+v, want 1 job and a running daemon", st)
	}
	if !d.running {
		t.Error("fake daemon not running")
	}
}

func TestDaemonControl(t *testing.T) {
	t.Parallel()

	c, d, _ := newController(t)
	if _, err := c.Status(); err != nil {
		t.Fatalf("Status: %v", err)
	}

	started, err := c.StartDaemon()
	if err != nil || !started {
		t.Fatalf("StartDaemon = (%v, %v), want (true, nil)", started, err)
	}
	started, err = c.StartDaemon()
	if err != nil || started {
		t.Fatalf("second StartDaemon = (%v, %v), want (false, nil)", started, err)
	}

	stopped, err := c.StopDaemon()
	if err != nil || !stopped {
		t.Fatalf("StopDaemon = (%v, %v), want (true, nil)", stopped, err)
	}
	stopped, err = c.StopDaemon()
	if err != nil || stopped {
		t.Fatalf("second StopDaemon = (%v, %v), want (false, nil)", stopped, err)
	}
	if d.starts != 1 || d.stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", d.starts, d.stops)
	}
}
