//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestProcessAlive(t *testing.T) {
	t.Parallel()

	if !processAlive(os.Getpid()) {
		t.Error("own process should be alive")
	}
}

func TestStartStop_RealProcess(t *testing.T) {
	t.Parallel()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	s := New(dir, Options{Executable: sh, Args: []string{"-c", "echo started; exec sleep 30"}})

	pid, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}
	if got, ok := s.running(); !ok || got != pid {
		t.Fatalf("running() = %d, %v; want %d", got, ok, pid)
	}

	if _, err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start: err = %v, want ErrAlreadyRunning", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		raw, _ := os.ReadFile(s.paths.DaemonLog())
		if string(raw) == "started\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon.log = %q, want child output", raw)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if pidFileExists(s) {
		t.Error("pid file should be removed after Stop")
	}
}
