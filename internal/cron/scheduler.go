package cron

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/job"
	"github.com/flemzord/cronr/internal/metrics"
	"github.com/flemzord/cronr/internal/reload"
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Store Store
	Task  TaskConfig

	// Interval between two reloads of the store. Defaults to 30s.
	Interval time.Duration

	// Changes triggers an early reload. Optional.
	Changes <-chan reload.Event

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// runningTask is the handle the scheduler keeps for a live task.
type runningTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Scheduler reconciles the running tasks with the job store. The running
// set is only touched by the goroutine executing Run.
type Scheduler struct {
	store    Store
	taskCfg  TaskConfig
	interval time.Duration
	changes  <-chan reload.Event
	metrics  *metrics.Metrics
	logger   *slog.Logger

	running map[uint64]*runningTask

	// exited remembers tasks that stopped on their own together with the
	// record's next_run at that time. They are restarted only once the
	// record changes.
	exited map[uint64]*time.Time

	mu         sync.Mutex
	active     []uint64
	lastReload time.Time
}

// NewScheduler creates a scheduler. Call Run to start reconciling.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultReloadInterval
	}

	taskCfg := cfg.Task
	if taskCfg.Store == nil {
		taskCfg.Store = cfg.Store
	}
	if taskCfg.Metrics == nil {
		taskCfg.Metrics = cfg.Metrics
	}
	if taskCfg.Logger == nil {
		taskCfg.Logger = logger
	}

	return &Scheduler{
		store:    cfg.Store,
		taskCfg:  taskCfg,
		interval: interval,
		changes:  cfg.Changes,
		metrics:  cfg.Metrics,
		logger:   logger,
		running:  make(map[uint64]*runningTask),
		exited:   make(map[uint64]*time.Time),
	}
}

// Run reconciles until ctx is cancelled, then cancels and awaits every
// task. It returns an error only when the store cannot be reloaded.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.stopAll()

	s.logger.Info("cron: scheduler started", "interval", s.interval)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		if err := s.reconcile(ctx); err != nil {
			return err
		}

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			s.logger.Info("cron: shutdown requested")
			return nil
		case <-timer.C:
		case ev, ok := <-s.changes:
			if !ok {
				s.changes = nil
				continue
			}
			s.logger.Debug("cron: store changed", "event", ev.Type)
		}
	}
}

// Running returns the ids with a live task, as of the last cycle.
func (s *Scheduler) Running() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.active)
}

// LastReload returns when the store was last reloaded successfully.
func (s *Scheduler) LastReload() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReload
}

// reconcile runs one reload cycle.
func (s *Scheduler) reconcile(ctx context.Context) error {
	if err := s.store.Load(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordReload(false)
		}
		return fmt.Errorf("cron: reloading job store: %w", err)
	}
	jobs := s.store.List()

	s.reap(jobs)

	for _, id := range slices.Sorted(maps.Keys(s.running)) {
		j, ok := jobs[id]
		switch {
		case !ok:
			s.stopTask(id)
			if s.metrics != nil {
				s.metrics.Forget(id)
			}
			s.logger.Info("cron: job removed, task stopped", "job", id)
		case !j.Enabled:
			s.stopTask(id)
			s.logger.Info("cron: job disabled, task stopped", "job", id)
		}
	}

	for id, mark := range s.exited {
		j, ok := jobs[id]
		if !ok || !j.Enabled || !sameTime(j.NextRun, mark) {
			delete(s.exited, id)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(jobs)) {
		j := jobs[id]
		if !j.Enabled {
			continue
		}
		if _, ok := s.running[id]; ok {
			continue
		}
		if _, ok := s.exited[id]; ok {
			continue
		}
		s.startTask(ctx, id, j)
	}

	s.mu.Lock()
	s.lastReload = time.Now()
	s.mu.Unlock()

	s.publish()
	if s.metrics != nil {
		s.metrics.RecordReload(true)
	}
	return nil
}

// reap collects tasks that returned on their own.
func (s *Scheduler) reap(jobs map[uint64]job.Job) {
	for id, rt := range s.running {
		select {
		case <-rt.done:
		default:
			continue
		}
		delete(s.running, id)

		if rt.err != nil {
			s.logger.Error("cron: job task exited", "job", id, "error", rt.err)
		} else {
			s.logger.Warn("cron: job task exited", "job", id)
		}
		var mark *time.Time
		if j, ok := jobs[id]; ok {
			mark = j.NextRun
		}
		s.exited[id] = mark
	}
}

func (s *Scheduler) startTask(ctx context.Context, id uint64, j job.Job) {
	tctx, cancel := context.WithCancel(ctx)
	rt := &runningTask{cancel: cancel, done: make(chan struct{})}
	task := NewTask(id, j, s.taskCfg)

	go func() {
		defer close(rt.done)
		rt.err = task.Run(tctx)
	}()

	s.running[id] = rt
	s.logger.Info("cron: job task started", "job", id, "schedule", j.Schedule)
}

// stopTask cancels a task and waits for it. A command in progress is
// allowed to finish first.
func (s *Scheduler) stopTask(id uint64) {
	rt, ok := s.running[id]
	if !ok {
		return
	}
	rt.cancel()
	<-rt.done
	delete(s.running, id)
}

func (s *Scheduler) stopAll() {
	ids := slices.Sorted(maps.Keys(s.running))
	s.logger.Info("cron: stopping all tasks", "count", len(ids))

	for _, rt := range s.running {
		rt.cancel()
	}
	for _, id := range ids {
		s.stopTask(id)
	}

	s.publish()
	s.logger.Info("cron: scheduler stopped")
}

// publish exposes the running set to other goroutines.
func (s *Scheduler) publish() {
	active := slices.Sorted(maps.Keys(s.running))

	s.mu.Lock()
	s.active = active
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetRunning(len(active))
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
