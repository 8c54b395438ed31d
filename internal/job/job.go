// Package job defines the persisted job record and its schedule arithmetic.
package job

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Sentinel errors for schedule handling.
var (
	// ErrInvalidSchedule indicates the cron expression could not be parsed.
	ErrInvalidSchedule = errors.New("job: invalid cron expression")

	// ErrScheduleExhausted indicates the expression has no future occurrence.
	ErrScheduleExhausted = errors.New("job: schedule has no future occurrence")
)

// CapturedEnv lists the variables snapshotted when a job is created so
// execution does not depend on the daemon's own environment.
var CapturedEnv = []string{"PATH", "HOME", "USER", "SHELL", "LANG", "LC_ALL"}

// parser accepts six-field expressions (seconds first) and descriptors
// such as @hourly.
var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is a scheduled command as stored in jobs.json.
type Job struct {
	Command      string            `json:"command"`
	Schedule     string            `json:"cron_expression"`
	Enabled      bool              `json:"enabled"`
	LastExecuted *time.Time        `json:"last_executed"`
	NextRun      *time.Time        `json:"next_run"`
	Env          map[string]string `json:"env"`
}

// New validates the expression, computes the first occurrence strictly
// after now and captures the process environment allowlist.
func New(command, schedule string, now time.Time) (Job, error) {
	j := Job{
		Command:  command,
		Schedule: schedule,
		Enabled:  true,
		Env:      CaptureEnv(os.LookupEnv),
	}

	next, err := j.NextAfter(now)
	if err != nil {
		return Job{}, err
	}
	j.NextRun = &next
	return j, nil
}

// ParseSchedule parses a six-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// NextAfter returns the earliest occurrence of the job's schedule strictly
// after t. Expressions are evaluated in UTC unless they carry a TZ= prefix.
// The expression is re-parsed on every call.
func (j Job) NextAfter(t time.Time) (time.Time, error) {
	sched, err := ParseSchedule(j.Schedule)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(t.UTC())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrScheduleExhausted, j.Schedule)
	}
	return next.UTC(), nil
}

// MarkRun records a completed execution at t and moves NextRun to the
// following occurrence. LastExecuted is updated even when the schedule is
// exhausted; NextRun is cleared in that case.
func (j *Job) MarkRun(t time.Time) error {
	at := t.UTC()
	j.LastExecuted = &at

	next, err := j.NextAfter(t)
	if err != nil {
		j.NextRun = nil
		return err
	}
	j.NextRun = &next
	return nil
}

// Enable re-activates the job and recomputes NextRun from now.
func (j *Job) Enable(now time.Time) error {
	next, err := j.NextAfter(now)
	if err != nil {
		return err
	}
	j.Enabled = true
	j.NextRun = &next
	return nil
}

// Disable stops the job from being scheduled. NextRun is left as is.
func (j *Job) Disable() {
	j.Enabled = false
}

// IsDue reports whether an enabled job's NextRun has been reached.
func (j Job) IsDue(now time.Time) bool {
	if !j.Enabled || j.NextRun == nil {
		return false
	}
	return !j.NextRun.After(now)
}

// Clone returns a deep copy so callers can mutate it freely.
func (j Job) Clone() Job {
	cp := j
	if j.LastExecuted != nil {
		t := *j.LastExecuted
		cp.LastExecuted = &t
	}
	if j.NextRun != nil {
		t := *j.NextRun
		cp.NextRun = &t
	}
	cp.Env = maps.Clone(j.Env)
	return cp
}

// CaptureEnv snapshots the CapturedEnv variables that are set.
func CaptureEnv(lookup func(string) (string, bool)) map[string]string {
	env := make(map[string]string, len(CapturedEnv))
	for _, key := range CapturedEnv {
		if v, ok := lookup(key); ok {
			env[key] = v
		}
	}
	return env
}

// Environ overlays the captured variables on base (KEY=VALUE entries).
// Captured values win over base values with the same key.
func (j Job) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(j.Env))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, overridden := j.Env[key]; overridden {
			continue
		}
		out = append(out, entry)
	}
	for _, key := range slices.Sorted(maps.Keys(j.Env)) {
		out = append(out, key+"="+j.Env[key])
	}
	return out
}
