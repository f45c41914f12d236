// Package shutdown runs the producer's termination sequence exactly once:
// close the registry to new keys, flush the publisher, close the publisher,
// then stop the scheduler.
package shutdown

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Registry is closed to new keys first.
type Registry interface {
	Close()
}

// Publisher is flushed and closed with bounded timeouts.
type Publisher interface {
	Flush(timeout time.Duration) error
	Close(timeout time.Duration) error
}

// Scheduler is stopped last.
type Scheduler interface {
	StopAll() error
}

// State is the coordinator's progress through the sequence.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateDrained
	StateClosed
	StateSchedulerStopped
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDrained:
		return "drained"
	case StateClosed:
		return "closed"
	case StateSchedulerStopped:
		return "scheduler_stopped"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config holds step timeouts.
type Config struct {
	FlushTimeout time.Duration // Default: 10s
	CloseTimeout time.Duration // Default: 10s
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		FlushTimeout: 10 * time.Second,
		CloseTimeout: 10 * time.Second,
	}
}

// Coordinator owns the one-shot shutdown sequence.
type Coordinator struct {
	cfg    Config
	reg    Registry
	pub    Publisher
	sched  Scheduler
	logger *slog.Logger

	once  sync.Once
	state atomic.Int32
	done  chan struct{}
	err   error
}

// New creates a Coordinator in the running state.
func New(cfg Config, reg Registry, pub Publisher, sched Scheduler, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultConfig().FlushTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultConfig().CloseTimeout
	}
	return &Coordinator{
		cfg:    cfg,
		reg:    reg,
		pub:    pub,
		sched:  sched,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Shutdown runs the sequence. Only the first call does any work; concurrent
// and later callers block until it finishes and receive the same result.
// A failing step is logged and the remaining steps still run.
func (c *Coordinator) Shutdown() error {
	c.once.Do(c.run)
	return c.err
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed when the sequence has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run() {
	defer close(c.done)

	start := time.Now()
	c.setState(StateStopping)
	c.logger.Info("shutdown started",
		"flush_timeout", c.cfg.FlushTimeout,
		"close_timeout", c.cfg.CloseTimeout,
	)

	var errs []error

	c.reg.Close()

	if err := c.pub.Flush(c.cfg.FlushTimeout); err != nil {
		c.logger.Error("publisher flush failed", "error", err)
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	c.setState(StateDrained)

	if err := c.pub.Close(c.cfg.CloseTimeout); err != nil {
		c.logger.Error("publisher close failed", "error", err)
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	c.setState(StateClosed)

	if err := c.sched.StopAll(); err != nil {
		c.logger.Error("scheduler stop failed", "error", err)
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	c.setState(StateSchedulerStopped)

	c.err = errors.Join(errs...)
	c.setState(StateDone)

	c.logger.Info("shutdown complete",
		"duration", time.Since(start),
		"errors", len(errs),
	)
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("shutdown state", "state", s.String())
}
