package scheduler

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateJob is returned when a key already has a job.
	ErrDuplicateJob = errors.New("job already scheduled")

	// ErrJobNotFound is returned when cancelling a key with no job.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInterval is returned for non-positive intervals.
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrStopped is returned by Schedule and Cancel after StopAll.
	ErrStopped = errors.New("scheduler stopped")

	// ErrDrainTimeout is returned by StopAll when running ticks outlive the drain timeout.
	ErrDrainTimeout = errors.New("scheduler drain timed out")
)

// Task is the work performed on every tick of a key.
type Task func(ctx context.Context, key string)

// Config holds scheduler settings.
type Config struct {
	Workers      int           // Concurrent ticks across all keys. Default: 16
	TickTimeout  time.Duration // Deadline for a single tick. Default: 10s
	DrainTimeout time.Duration // How long StopAll waits for running ticks. Default: 10s
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      16,
		TickTimeout:  10 * time.Second,
		DrainTimeout: 10 * time.Second,
	}
}

// JobInfo is a point-in-time view of one job.
type JobInfo struct {
	Key      string        `json:"key"`
	Interval time.Duration `json:"interval"`
	Next     time.Time     `json:"next"`
	Prev     time.Time     `json:"prev"`
	Ticks    int64         `json:"ticks"`
	Skips    int64         `json:"skips"`
	Running  bool          `json:"running"`
}

// Stats contains scheduler-wide counters.
type Stats struct {
	Jobs     int
	InFlight int64
	Ticks    int64
	Skipped  int64
}
