// Package supervisor starts, probes and stops the background daemon
// through the PID file kept in the data directory.
package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/flemzord/cronr/internal/config"
)

// Sentinel errors for daemon lifecycle operations.
var (
	ErrAlreadyRunning = errors.New("supervisor: daemon already running")
	ErrNotRunning     = errors.New("supervisor: daemon not running")
	ErrStartFailed    = errors.New("supervisor: failed to start daemon")
)

// DaemonCommand is the hidden subcommand the detached child runs.
const DaemonCommand = "daemon-internal"

// Options configures a Supervisor. Zero values use the running executable
// and the daemon subcommand.
type Options struct {
	Executable string
	Args       []string
	Logger     *slog.Logger

	// Probe reports whether pid refers to a live process.
	Probe func(pid int) bool

	// Terminate asks pid to exit.
	Terminate func(pid int) error
}

// Supervisor manages the daemon process recorded in cronr.pid.
// PID reuse by an unrelated process is not detected.
type Supervisor struct {
	paths      config.Paths
	executable string
	args       []string
	logger     *slog.Logger
	probe      func(pid int) bool
	terminate  func(pid int) error
}

// New creates a Supervisor for the given data directory.
func New(dataDir string, opts Options) *Supervisor {
	s := &Supervisor{
		paths:      config.Paths{DataDir: dataDir},
		executable: opts.Executable,
		args:       opts.Args,
		logger:     opts.Logger,
		probe:      opts.Probe,
		terminate:  opts.Terminate,
	}
	if s.args == nil {
		s.args = []string{DaemonCommand, "--data-dir", dataDir}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.probe == nil {
		s.probe = processAlive
	}
	if s.terminate == nil {
		s.terminate = terminateProcess
	}
	return s
}

// PIDFile returns the path of the PID file.
func (s *Supervisor) PIDFile() string { return s.paths.PIDFile() }

// Start launches the daemon detached from the calling terminal and records
// its PID. The child's stdout and stderr are appended to daemon.log.
func (s *Supervisor) Start() (int, error) {
	if pid, ok := s.running(); ok {
		return pid, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	exe := s.executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("%w: locating executable: %w", ErrStartFailed, err)
		}
		exe = self
	}

	if err := s.paths.Ensure(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	logFile, err := os.OpenFile(s.paths.DaemonLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: opening daemon log: %w", ErrStartFailed, err)
	}
	defer logFile.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %w", ErrStartFailed, os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, s.args...)
	cmd.Dir = s.paths.DataDir
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	pid := cmd.Process.Pid

	if err := writePID(s.paths.PIDFile(), pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Process.Release()
		return 0, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if err := cmd.Process.Release(); err != nil {
		s.logger.Warn("supervisor: releasing child failed", "pid", pid, "error", err)
	}

	s.logger.Debug("supervisor: daemon started", "pid", pid, "executable", exe)
	return pid, nil
}

// Stop sends a termination request to the recorded daemon and removes the
// PID file. It does not wait for the process to exit.
func (s *Supervisor) Stop() error {
	pid, ok := s.running()
	if !ok {
		return ErrNotRunning
	}
	if err := s.terminate(pid); err != nil {
		return fmt.Errorf("supervisor: terminating pid %d: %w", pid, err)
	}
	s.removePIDFile()
	s.logger.Debug("supervisor: daemon stopped", "pid", pid)
	return nil
}

// IsRunning reports whether the PID file names a live process. Stale or
// unparsable PID files are deleted.
func (s *Supervisor) IsRunning() bool {
	_, ok := s.running()
	return ok
}

// Claim records pid as the daemon. It is used by the daemon itself so the
// PID file is correct when a service manager started it.
func (s *Supervisor) Claim(pid int) error {
	if current, ok := s.running(); ok && current != pid {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, current)
	}
	return writePID(s.paths.PIDFile(), pid)
}

// Release removes the PID file if it still names pid.
func (s *Supervisor) Release(pid int) {
	current, err := readPID(s.paths.PIDFile())
	if err != nil || current != pid {
		return
	}
	s.removePIDFile()
}

// running reads and probes the PID file, cleaning it up when stale.
func (s *Supervisor) running() (int, bool) {
	pid, err := readPID(s.paths.PIDFile())
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false
	}
	if err != nil {
		s.logger.Debug("supervisor: removing invalid pid file", "error", err)
		s.removePIDFile()
		return 0, false
	}
	if !s.probe(pid) {
		s.logger.Debug("supervisor: removing stale pid file", "pid", pid)
		s.removePIDFile()
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) removePIDFile() {
	if err := os.Remove(s.paths.PIDFile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("supervisor: failed to remove pid file", "path", s.paths.PIDFile(), "error", err)
	}
}

func readPID(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("supervisor: invalid pid file content %q", raw)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("supervisor: invalid pid %d", pid)
	}
	return pid, nil
}

func writePID(path string, pid int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("supervisor: writing pid file: %w", err)
	}
	return nil
}
