package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// File and directory names inside the data directory.
const (
	JobsFileName   = "jobs.json"
	PIDFileName    = "cronr.pid"
	DaemonLogName  = "daemon.log"
	LogsDirName    = "logs"
	HistoryDBName  = "history.db"
	ConfigFileName = "config.yaml"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "CRONR_HOME"

// Paths resolves every file cronr keeps under its data directory.
type Paths struct {
	DataDir string
}

// ResolveDataDir picks the data directory.
// Search order: explicit flag → $CRONR_HOME → ~/.cronr
func ResolveDataDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if dir, ok := os.LookupEnv(DataDirEnv); ok && dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: could not find home directory: %w", ErrConfig, err)
	}
	return filepath.Join(home, ".cronr"), nil
}

// JobsFile returns the job store path.
func (p Paths) JobsFile() string { return filepath.Join(p.DataDir, JobsFileName) }

// PIDFile returns the daemon PID file path.
func (p Paths) PIDFile() string { return filepath.Join(p.DataDir, PIDFileName) }

// DaemonLog returns the file receiving the daemon's stdout and stderr.
func (p Paths) DaemonLog() string { return filepath.Join(p.DataDir, DaemonLogName) }

// LogsDir returns the directory holding per-job output.
func (p Paths) LogsDir() string { return filepath.Join(p.DataDir, LogsDirName) }

// StdoutLog returns the stdout log of a job.
func (p Paths) StdoutLog(id uint64) string {
	return filepath.Join(p.LogsDir(), strconv.FormatUint(id, 10)+".out.log")
}

// StderrLog returns the stderr log of a job.
func (p Paths) StderrLog(id uint64) string {
	return filepath.Join(p.LogsDir(), strconv.FormatUint(id, 10)+".err.log")
}

// HistoryDB returns the run history database path.
func (p Paths) HistoryDB() string { return filepath.Join(p.DataDir, HistoryDBName) }

// ConfigFile returns the optional configuration file path.
func (p Paths) ConfigFile() string { return filepath.Join(p.DataDir, ConfigFileName) }

// Ensure creates the data directory and its logs directory.
func (p Paths) Ensure() error {
	if err := os.MkdirAll(p.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrConfig, p.LogsDir(), err)
	}
	return nil
}

// Exists reports whether the data directory has been initialized.
func (p Paths) Exists() bool {
	info, err := os.Stat(p.DataDir)
	return err == nil && info.IsDir()
}
