// Package publisher hands records to a broker transport and owns the
// flush and close steps of shutdown.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/quote-producer/internal/model"
)

// Publisher sends records on one subject. Send is safe for concurrent use.
type Publisher struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	state atomic.Int32

	// shutdownMu serialises Flush and Close.
	shutdownMu sync.Mutex

	sent     atomic.Int64
	failed   atomic.Int64
	timeouts atomic.Int64
}

// New creates an open Publisher.
func New(cfg Config, transport Transport, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultConfig().Subject
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
	}
}

// Send encodes rec and hands it to the transport. Records are accepted while
// the publisher is open or draining.
func (p *Publisher) Send(ctx context.Context, rec model.Record) error {
	if p.State() == StateClosed {
		return ErrClosed
	}

	data, err := rec.Encode()
	if err != nil {
		p.failed.Add(1)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	err = p.transport.Publish(ctx, p.cfg.Subject, data, uuid.NewString())
	switch {
	case err == nil:
		p.sent.Add(1)
		return nil
	case errors.Is(err, ErrPublishTimeout), errors.Is(err, context.DeadlineExceeded):
		p.timeouts.Add(1)
		return fmt.Errorf("publish %s: %w", rec.Key, ErrPublishTimeout)
	case errors.Is(err, ErrClosed):
		p.failed.Add(1)
		return fmt.Errorf("publish %s: %w", rec.Key, ErrClosed)
	default:
		p.failed.Add(1)
		return fmt.Errorf("publish %s: %w", rec.Key, err)
	}
}

// Flush waits until every accepted record is acknowledged, or timeout
// elapses. It moves an open publisher to draining. Flush returns at the
// deadline even if the transport does not.
func (p *Publisher) Flush(timeout time.Duration) error {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	if p.State() == StateClosed {
		return ErrClosed
	}
	p.state.CompareAndSwap(int32(StateOpen), int32(StateDraining))

	start := time.Now()
	timedOut, err := runWithDeadline(timeout, p.transport.Flush)
	if timedOut {
		p.logger.Warn("publisher flush timed out", "timeout", timeout)
		return fmt.Errorf("%w after %s", ErrFlushTimeout, timeout)
	}
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	p.logger.Info("publisher flushed", "duration", time.Since(start), "sent", p.sent.Load())
	return nil
}

// Close releases the transport. The publisher is closed to Send from the
// moment Close is called, even if the transport fails to close. A second
// Close returns nil.
func (p *Publisher) Close(timeout time.Duration) error {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	if State(p.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}

	timedOut, err := runWithDeadline(timeout, p.transport.Close)
	if timedOut {
		p.logger.Warn("publisher close timed out", "timeout", timeout)
		return fmt.Errorf("%w after %s", ErrCloseTimeout, timeout)
	}
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	p.logger.Info("publisher closed")
	return nil
}

// State returns the current lifecycle state.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Stats returns current counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		State:    p.State(),
		Sent:     p.sent.Load(),
		Failed:   p.failed.Load(),
		Timeouts: p.timeouts.Load(),
	}
}

// runWithDeadline runs fn with a context that expires after timeout and
// returns no later than that, reporting whether the deadline won.
func runWithDeadline(timeout time.Duration, fn func(context.Context) error) (timedOut bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return errors.Is(err, context.DeadlineExceeded), err
	case <-ctx.Done():
		return true, ctx.Err()
	}
}
