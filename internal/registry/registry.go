// Package registry tracks the set of active keys and keeps the scheduler in
// step with it: a key is present exactly when its job is scheduled.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/quote-producer/internal/model"
	"github.com/rickgao/quote-producer/internal/scheduler"
)

var (
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("registry closed")

	// ErrIntervalTooShort is returned when a per-key interval is below the configured minimum.
	ErrIntervalTooShort = errors.New("interval below minimum")
)

// Scheduler is the subset of scheduler.Scheduler the registry drives.
type Scheduler interface {
	Schedule(key string, interval time.Duration, task scheduler.Task) error
	Cancel(key string) error
}

// Config holds registry settings.
type Config struct {
	Interval    time.Duration // Used by Add. Default: 1s
	MinInterval time.Duration // Lower bound for AddWithInterval. Default: 100ms
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		MinInterval: 100 * time.Millisecond,
	}
}

// Registry is the set of active keys.
type Registry struct {
	cfg    Config
	sched  Scheduler
	task   scheduler.Task
	logger *slog.Logger

	// mu covers both the key set and the scheduler calls made on its behalf.
	mu     sync.Mutex
	keys   map[string]time.Duration
	closed bool
}

// New creates a Registry that schedules task for every added key.
func New(cfg Config, sched Scheduler, task scheduler.Task, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MinInterval <= 0 || cfg.MinInterval > cfg.Interval {
		cfg.MinInterval = min(DefaultConfig().MinInterval, cfg.Interval)
	}
	return &Registry{
		cfg:    cfg,
		sched:  sched,
		task:   task,
		logger: logger,
		keys:   make(map[string]time.Duration),
	}
}

// Add registers key at the default interval. See AddWithInterval.
func (r *Registry) Add(raw string) (bool, error) {
	return r.AddWithInterval(raw, r.cfg.Interval)
}

// AddWithInterval registers key and schedules its job. It returns false
// without error if the key is already present; the existing interval is
// kept. If scheduling fails the key is not added.
func (r *Registry) AddWithInterval(raw string, interval time.Duration) (bool, error) {
	key, err := model.NormalizeKey(raw)
	if err != nil {
		return false, err
	}
	if interval < r.cfg.MinInterval {
		return false, fmt.Errorf("%w: %s < %s", ErrIntervalTooShort, interval, r.cfg.MinInterval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}
	if _, ok := r.keys[key]; ok {
		return false, nil
	}

	if err := r.sched.Schedule(key, interval, r.task); err != nil {
		return false, fmt.Errorf("schedule %s: %w", key, err)
	}
	r.keys[key] = interval

	r.logger.Info("key added", "key", key, "interval", interval, "keys", len(r.keys))
	return true, nil
}

// Remove unregisters key and cancels its job. It returns false without
// error if the key is absent. Remove keeps working after Close.
func (r *Registry) Remove(raw string) (bool, error) {
	key, err := model.NormalizeKey(raw)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; !ok {
		return false, nil
	}

	if err := r.sched.Cancel(key); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrStopped):
			// StopAll already dropped every job.
			r.logger.Debug("key removed after scheduler stop", "key", key)
		case errors.Is(err, scheduler.ErrJobNotFound):
			// The key has no job, so dropping it restores the invariant.
			r.logger.Error("registry and scheduler out of sync", "key", key, "error", err)
		default:
			return false, fmt.Errorf("cancel %s: %w", key, err)
		}
	}
	delete(r.keys, key)

	r.logger.Info("key removed", "key", key, "keys", len(r.keys))
	return true, nil
}

// List returns the active keys in ascending order.
func (r *Registry) List() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of active keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Close rejects further Add calls. Existing keys stay scheduled.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.logger.Info("registry closed to new keys", "keys", len(r.keys))
	}
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
