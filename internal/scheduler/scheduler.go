package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

// Scheduler runs a fixed-rate Task per key on a shared cron engine.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	cron *cron.Cron
	sem  *semaphore.Weighted

	// ctx is the parent of every tick context. Cancelled by StopAll.
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
	// busy holds the non-overlap flag per key. An entry outlives Cancel while
	// the cancelled job's tick is still running so a re-scheduled job for the
	// same key shares it.
	busy    map[string]*atomic.Bool
	started bool
	stopped bool

	inFlight atomic.Int64
	ticks    atomic.Int64
	skipped  atomic.Int64

	now func() time.Time
}

// New creates a Scheduler. Jobs may be scheduled before Start; they begin
// firing once Start is called.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = DefaultConfig().TickTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}

	cl := cronLogger{logger: logger.With("component", "cron")}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		sem:    semaphore.NewWeighted(int64(cfg.Workers)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
		busy:   make(map[string]*atomic.Bool),
		now:    time.Now,
	}
}

// Start begins dispatching ticks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()

	s.logger.Info("scheduler started",
		"workers", s.cfg.Workers,
		"tick_timeout", s.cfg.TickTimeout,
	)
}

// Schedule registers task to run for key every interval. The first tick
// fires one interval from now.
func (s *Scheduler) Schedule(key string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.jobs[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, key)
	}

	running, ok := s.busy[key]
	if !ok {
		running = new(atomic.Bool)
		s.busy[key] = running
	}

	j := &job{
		key:      key,
		interval: interval,
		task:     task,
		s:        s,
		running:  running,
	}
	j.id = s.cron.Schedule(fixedRate{anchor: s.now(), interval: interval}, j)
	s.jobs[key] = j

	s.logger.Debug("job scheduled", "key", key, "interval", interval)
	return nil
}

// Cancel stops future ticks for key. A tick already running is left to finish.
func (s *Scheduler) Cancel(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	j, ok := s.jobs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, key)
	}

	j.cancelled.Store(true)
	s.cron.Remove(j.id)
	delete(s.jobs, key)
	if !j.running.Load() {
		delete(s.busy, key)
	}

	s.logger.Debug("job cancelled", "key", key)
	return nil
}

// StopAll cancels every job and waits up to the drain timeout for running
// ticks. On timeout the running ticks' context is cancelled and
// ErrDrainTimeout is returned. Safe to call more than once.
func (s *Scheduler) StopAll() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	cancelled := len(s.jobs)
	for key, j := range s.jobs {
		j.cancelled.Store(true)
		s.cron.Remove(j.id)
		delete(s.jobs, key)
	}
	s.mu.Unlock()

	s.logger.Info("stopping scheduler", "jobs", cancelled, "in_flight", s.inFlight.Load())

	drained := s.cron.Stop()

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-drained.Done():
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-timer.C:
		abandoned := s.inFlight.Load()
		s.cancel()
		s.logger.Warn("scheduler drain timed out",
			"timeout", s.cfg.DrainTimeout,
			"abandoned", abandoned,
		)
		return fmt.Errorf("%w: %d ticks still running after %s", ErrDrainTimeout, abandoned, s.cfg.DrainTimeout)
	}
}

// Has reports whether key currently has a job.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// Jobs returns a snapshot of all jobs sorted by key.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		entry := s.cron.Entry(j.id)
		out = append(out, JobInfo{
			Key:      j.key,
			Interval: j.interval,
			Next:     entry.Next,
			Prev:     entry.Prev,
			Ticks:    j.ticks.Load(),
			Skips:    j.skips.Load(),
			Running:  j.running.Load(),
		})
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

// Stats returns scheduler-wide counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()

	return Stats{
		Jobs:     n,
		InFlight: s.inFlight.Load(),
		Ticks:    s.ticks.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// ActiveJobs returns the number of scheduled keys.
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunningTicks returns the number of ticks running or waiting for a worker.
func (s *Scheduler) RunningTicks() int64 { return s.inFlight.Load() }

// SkippedTicks returns the total number of skipped ticks.
func (s *Scheduler) SkippedTicks() int64 { return s.skipped.Load() }

// job is the cron.Job for one key.
type job struct {
	id       cron.EntryID
	key      string
	interval time.Duration
	task     Task
	s        *Scheduler

	running   *atomic.Bool // shared with any later job for the same key
	cancelled atomic.Bool
	ticks     atomic.Int64
	skips     atomic.Int64
}

// Run implements cron.Job.
func (j *job) Run() {
	s := j.s

	if j.cancelled.Load() {
		return
	}
	if !j.running.CompareAndSwap(false, true) {
		j.skips.Add(1)
		s.skipped.Add(1)
		s.logger.Debug("tick skipped, previous tick still running", "key", j.key)
		return
	}
	defer j.release()

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	// Cancelled while waiting for a worker.
	if j.cancelled.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.TickTimeout)
	defer cancel()

	j.ticks.Add(1)
	s.ticks.Add(1)
	j.task(ctx, j.key)
}

// release clears the key's busy flag and, once the job is cancelled and the
// key has not been scheduled again, forgets the flag.
func (j *job) release() {
	j.running.Store(false)
	if !j.cancelled.Load() {
		return
	}

	s := j.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, scheduled := s.jobs[j.key]; !scheduled && s.busy[j.key] == j.running {
		delete(s.busy, j.key)
	}
}
