package cron

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/history"
	"github.com/flemzord/cronr/internal/job"
	"github.com/flemzord/cronr/internal/logrotate"
	"github.com/flemzord/cronr/internal/metrics"
)

const historyTimeout = 5 * time.Second

// TaskConfig is the execution environment shared by every task of a
// daemon. Only Paths and Store are required.
type TaskConfig struct {
	Paths   config.Paths
	Store   RunStore
	Rotator *logrotate.Rotator

	// History and Metrics are optional.
	History     RunRecorder
	HistoryKeep int
	Metrics     *metrics.Metrics

	// IdlePause separates two cycles of a task. Defaults to 100ms.
	IdlePause time.Duration

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c TaskConfig) withDefaults() TaskConfig {
	if c.Rotator == nil {
		c.Rotator = logrotate.New(0, 0)
	}
	if c.IdlePause <= 0 {
		c.IdlePause = config.DefaultIdlePause
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Task is the execution loop of one job: sleep until due, run the command,
// record the run, reschedule. It owns a private copy of the job record.
type Task struct {
	id     uint64
	job    job.Job
	cfg    TaskConfig
	logger *slog.Logger
}

// NewTask creates the task for job id.
func NewTask(id uint64, j job.Job, cfg TaskConfig) *Task {
	cfg = cfg.withDefaults()
	return &Task{
		id:     id,
		job:    j.Clone(),
		cfg:    cfg,
		logger: cfg.Logger.With("job", id),
	}
}

// Run executes the job on schedule until ctx is cancelled, in which case
// it returns nil. A command that is running when ctx is cancelled is left
// to finish. Run returns job.ErrScheduleExhausted once the schedule has no
// further occurrence.
func (t *Task) Run(ctx context.Context) error {
	if t.job.NextRun == nil {
		next, err := t.job.NextAfter(t.cfg.Now())
		if err != nil {
			return err
		}
		t.job.NextRun = &next
	}
	t.logger.Info("cron: job scheduled", "next_run", t.job.NextRun.Format(time.RFC3339))

	for {
		if ctx.Err() != nil {
			return nil
		}

		next := *t.job.NextRun
		if wait := next.Sub(t.cfg.Now()); wait > 0 {
			t.logger.Debug("cron: job sleeping", "duration", wait.Round(time.Millisecond))
			if !sleep(ctx, wait) {
				t.logger.Info("cron: job cancelled")
				return nil
			}
		}

		if t.job.IsDue(t.cfg.Now()) {
			if err := t.cycle(ctx); err != nil {
				return err
			}
		}

		if !sleep(ctx, t.cfg.IdlePause) {
			t.logger.Info("cron: job cancelled")
			return nil
		}
	}
}

// cycle runs the command once and moves the record to its next occurrence.
func (t *Task) cycle(ctx context.Context) error {
	t.logger.Info("cron: job started", "command", t.job.Command)
	run := t.execute()

	attrs := []any{
		"exit_code", run.ExitCode,
		"duration", run.Duration().Round(time.Millisecond),
	}
	if run.Succeeded() {
		t.logger.Info("cron: job completed", attrs...)
	} else {
		if run.Error != "" {
			attrs = append(attrs, "error", run.Error)
		}
		t.logger.Error("cron: job failed", attrs...)
	}

	schedErr := t.job.MarkRun(run.FinishedAt)
	if err := t.cfg.Store.RecordRun(t.id, *t.job.LastExecuted, t.job.NextRun); err != nil {
		t.logger.Error("cron: recording run failed", "error", err)
	}
	t.record(ctx, run)

	if schedErr != nil {
		t.logger.Warn("cron: job has no further occurrence", "error", schedErr)
		return schedErr
	}
	t.logger.Debug("cron: job rescheduled", "next_run", t.job.NextRun.Format(time.RFC3339))
	return nil
}

// execute runs the command to completion and writes its output through
// the rotator. Failures are reported in the returned Run.
func (t *Task) execute() history.Run {
	run := history.Run{JobID: t.id, StartedAt: t.cfg.Now()}
	var errs []error

	args, err := splitCommand(t.job.Command)
	if err != nil {
		run.ExitCode = history.ExitSpawnFailed
		run.Error = err.Error()
		run.FinishedAt = t.cfg.Now()
		return run
	}

	cmd := exec.Command(resolveProgram(args[0], t.job.Env["PATH"]), args[1:]...)
	cmd.Env = t.job.Environ(os.Environ())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	run.FinishedAt = t.cfg.Now()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		run.ExitCode = exitErr.ExitCode()
	default:
		run.ExitCode = history.ExitSpawnFailed
		errs = append(errs, fmt.Errorf("%w: %w", ErrCommandExecution, err))
	}

	if err := t.cfg.Rotator.Write(t.cfg.Paths.StdoutLog(t.id), stdout.Bytes()); err != nil {
		errs = append(errs, err)
	}
	if err := t.cfg.Rotator.Write(t.cfg.Paths.StderrLog(t.id), stderr.Bytes()); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		run.Error = err.Error()
	}
	return run
}

func (t *Task) record(ctx context.Context, run history.Run) {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordRun(t.id, run.Duration(), run.Succeeded())
	}
	if t.cfg.History == nil {
		return
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	if err := t.cfg.History.Append(hctx, run); err != nil {
		t.logger.Warn("cron: appending history failed", "error", err)
		return
	}
	if t.cfg.HistoryKeep > 0 {
		if _, err := t.cfg.History.Prune(hctx, t.id, t.cfg.HistoryKeep); err != nil {
			t.logger.Warn("cron: pruning history failed", "error", err)
		}
	}
}

// splitCommand splits a command line with shell quoting rules. No shell
// is involved: an unquoted ; & | < or > is an ordinary character of the
// word it appears in, so "echo a&b" runs echo with the argument "a&b".
func splitCommand(command string) ([]string, error) {
	line := command
	for {
		parser := shellwords.NewParser()
		args, err := parser.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %q: %w", ErrCommandExecution, command, err)
		}
		if parser.Position < 0 {
			if len(args) == 0 {
				return nil, fmt.Errorf("%w: empty command", ErrCommandExecution)
			}
			return args, nil
		}

		escaped, ok := escapeOperator(line, parser.Position)
		if !ok {
			return nil, fmt.Errorf("%w: parsing %q: no operator at offset %d", ErrCommandExecution, command, parser.Position)
		}
		line = escaped
	}
}

const shellOperators = ";&|<>"

// escapeOperator backslash-escapes the first operator at or after the
// rune index pos, where the parser stopped.
func escapeOperator(line string, pos int) (string, bool) {
	i := 0
	for off, r := range line {
		if i >= pos && strings.ContainsRune(shellOperators, r) {
			return line[:off] + `\` + line[off:], true
		}
		i++
	}
	return line, false
}

// resolveProgram looks a bare program name up in the job's captured PATH
// so the daemon's own PATH does not decide which binary runs.
func resolveProgram(name, path string) string {
	if path == "" || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved
		}
	}
	return name
}

// sleep waits for d or ctx cancellation. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
