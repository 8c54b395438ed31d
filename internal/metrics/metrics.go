// Package metrics exposes daemon counters through a private Prometheus
// registry and keeps a lightweight snapshot for the status endpoint.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Result labels for runs and reloads.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics tracks job executions and reconciliation cycles.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runningTasks prometheus.Gauge
	reloads      *prometheus.CounterVec

	totalRuns  atomic.Int64
	failedRuns atomic.Int64
	running    atomic.Int64
	lastReload atomic.Int64 // unix nanoseconds
	lastRun    atomic.Int64 // unix nanoseconds
}

// New creates a Metrics with its own registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cronr_job_runs_total",
			Help: "Job executions by job id and result.",
		}, []string{"job", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cronr_job_run_duration_seconds",
			Help:    "Wall-clock duration of job executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),
		runningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cronr_running_tasks",
			Help: "Job execution tasks currently scheduled by the daemon.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cronr_reloads_total",
			Help: "Job store reloads by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.runs,
		m.runDuration,
		m.runningTasks,
		m.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to serve.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRun records one execution of a job.
func (m *Metrics) RecordRun(jobID uint64, d time.Duration, ok bool) {
	id := strconv.FormatUint(jobID, 10)
	result := ResultSuccess
	if !ok {
		result = ResultFailure
		m.failedRuns.Add(1)
	}
	m.totalRuns.Add(1)
	m.lastRun.Store(time.Now().UnixNano())

	m.runs.WithLabelValues(id, result).Inc()
	m.runDuration.WithLabelValues(id).Observe(d.Seconds())
}

// RecordReload records one reconciliation reload.
func (m *Metrics) RecordReload(ok bool) {
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	m.reloads.WithLabelValues(result).Inc()
	if ok {
		m.lastReload.Store(time.Now().UnixNano())
	}
}

// SetRunning records the size of the running task set.
func (m *Metrics) SetRunning(n int) {
	m.running.Store(int64(n))
	m.runningTasks.Set(float64(n))
}

// Forget drops the per-job series of a removed job.
func (m *Metrics) Forget(jobID uint64) {
	id := strconv.FormatUint(jobID, 10)
	m.runs.DeletePartialMatch(prometheus.Labels{"job": id})
	m.runDuration.DeleteLabelValues(id)
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Runs:         m.totalRuns.Load(),
		FailedRuns:   m.failedRuns.Load(),
		RunningTasks: m.running.Load(),
		LastReload:   unixNano(m.lastReload.Load()),
		LastRun:      unixNano(m.lastRun.Load()),
	}
}

// Snapshot is a serializable metrics view.
type Snapshot struct {
	Runs         int64      `json:"runs"`
	FailedRuns   int64      `json:"failed_runs"`
	RunningTasks int64      `json:"running_tasks"`
	LastReload   *time.Time `json:"last_reload,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
}

func unixNano(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
