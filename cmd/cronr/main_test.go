package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/cronr/internal/control"
	"github.com/flemzord/cronr/internal/supervisor"
)

type fakeDaemon struct{ running bool }

func (f *fakeDaemon) Start() (int, error) {
	if f.running {
		return 0, supervisor.ErrAlreadyRunning
	}
	f.running = true
	return 1234, nil
}

func (f *fakeDaemon) Stop() error {
	if !f.running {
		return supervisor.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeDaemon) IsRunning() bool { return f.running }

func useFakeDaemon(t *testing.T) string {
	t.Helper()
	d := &fakeDaemon{}
	orig := newController
	newController = func(dataDir string, logger *slog.Logger) *control.Controller {
		return control.New(control.Options{DataDir: dataDir, Version: version, Logger: logger, Daemon: d})
	}
	t.Cleanup(func() { newController = orig })
	return filepath.Join(t.TempDir(), "data")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "cronr "+version) {
		t.Errorf("output = %q, want version", out)
	}

	out, err = run(t, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if strings.TrimSpace(out) != "cronr "+version {
		t.Errorf("--version output = %q", out)
	}
}

func TestCreateListStop(t *testing.T) {
	dir := useFakeDaemon(t)

	out, err := run(t, "--data-dir", dir, "create", "echo test", "0 * * * * *")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, want := range []string{"Added job 1", "Command: echo test", "Started daemon"} {
		if !strings.Contains(out, want) {
			t.Errorf("create output = %q, want %q", out, want)
		}
	}

	out, err = run(t, "--data-dir", dir, "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, "echo test") || !strings.Contains(out, "0 * * * * *") {
		t.Errorf("ls output = %q", out)
	}

	out, err = run(t, "--data-dir", dir, "stop", "1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "Stopped job 1") {
		t.Errorf("stop output = %q", out)
	}

	out, err = run(t, "--data-dir", dir, "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, "No cron jobs found.") {
		t.Errorf("ls output = %q, want empty listing", out)
	}
}

func TestCreate_InvalidSchedule(t *testing.T) {
	dir := useFakeDaemon(t)

	if _, err := run(t, "--data-dir", dir, "create", "echo test", "invalid"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStop_Errors(t *testing.T) {
	dir := useFakeDaemon(t)

	if _, err := run(t, "--data-dir", dir, "stop", "abc"); err == nil || !strings.Contains(err.Error(), "invalid job id") {
		t.Errorf("stop abc err = %v, want invalid job id", err)
	}
	if _, err := run(t, "--data-dir", dir, "create", "echo test", "0 * * * * *"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := run(t, "--data-dir", dir, "stop", "999"); err == nil || !strings.Contains(err.Error(), "999") {
		t.Errorf("stop 999 err = %v, want unknown job", err)
	}
}

func TestPauseResume(t *testing.T) {
	dir := useFakeDaemon(t)

	if _, err := run(t, "--data-dir", dir, "create", "echo test", "@hourly"); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := run(t, "--data-dir", dir, "pause", "1")
	if err != nil || !strings.Contains(out, "Paused job 1") {
		t.Fatalf("pause = %q, %v", out, err)
	}
	out, _ = run(t, "--data-dir", dir, "ls")
	if !strings.Contains(out, "paused") {
		t.Errorf("ls output = %q, want paused state", out)
	}
	out, err = run(t, "--data-dir", dir, "resume", "1")
	if err != nil || !strings.Contains(out, "Resumed job 1") {
		t.Fatalf("resume = %q, %v", out, err)
	}
}

func TestStatus(t *testing.T) {
	dir := useFakeDaemon(t)

	out, err := run(t, "--data-dir", dir, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"cronr version: " + version, "Active jobs: 0", "Daemon is not running."} {
		if !strings.Contains(out, want) {
			t.Errorf("status output = %q, want %q", out, want)
		}
	}
}

func TestDaemonStartStop(t *testing.T) {
	dir := useFakeDaemon(t)

	if _, err := run(t, "--data-dir", dir, "start"); err == nil {
		t.Fatal("start on uninitialized dir succeeded")
	}
	if _, err := run(t, "--data-dir", dir, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}

	out, err := run(t, "--data-dir", dir, "start")
	if err != nil || !strings.Contains(out, "Started daemon.") {
		t.Fatalf("start = %q, %v", out, err)
	}
	out, err = run(t, "--data-dir", dir, "start")
	if err != nil || !strings.Contains(out, "already running") {
		t.Fatalf("second start = %q, %v", out, err)
	}
	out, err = run(t, "--data-dir", dir, "daemon-stop")
	if err != nil || !strings.Contains(out, "Stopped daemon.") {
		t.Fatalf("daemon-stop = %q, %v", out, err)
	}
	out, err = run(t, "--data-dir", dir, "daemon-stop")
	if err != nil || !strings.Contains(out, "not running") {
		t.Fatalf("second daemon-stop = %q, %v", out, err)
	}
}

func TestHistory_Empty(t *testing.T) {
	dir := useFakeDaemon(t)

	if _, err := run(t, "--data-dir", dir, "create", "echo test", "@daily"); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := run(t, "--data-dir", dir, "history", "1", "-n", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No runs recorded for job 1.") {
		t.Errorf("history output = %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	dir := useFakeDaemon(t)

	if _, err := run(t, "--data-dir", dir, "--log-level", "loud", "status"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}
