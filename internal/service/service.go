// Package service owns the key registry and the per-tick job, and exposes
// the add/remove/list operations behind the control surface.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/quote-producer/internal/metrics"
	"github.com/rickgao/quote-producer/internal/model"
	"github.com/rickgao/quote-producer/internal/publisher"
	"github.com/rickgao/quote-producer/internal/registry"
)

// Fetcher retrieves the latest record for a key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (model.Record, error)
}

// Sender hands a record to the broker.
type Sender interface {
	Send(ctx context.Context, rec model.Record) error
}

// Archiver receives a copy of every published record. Enqueue must not
// block and reports false when the record was dropped.
type Archiver interface {
	Enqueue(rec model.Record) bool
}

// Status classifies the outcome of a control operation.
type Status int

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusUnavailable
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusUnavailable:
		return "unavailable"
	case StatusInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Result is the outcome of AddKey or RemoveKey.
type Result struct {
	Keys   []string // Full sorted key list after the operation
	Status Status
	Err    error // Nil when Status is StatusOK
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records tick and publish outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithArchive copies every published record to a.
func WithArchive(a Archiver) Option {
	return func(s *Service) {
		s.archive = a
	}
}

// Service ties the registry to the fetch-and-publish job.
type Service struct {
	reg     *registry.Registry
	fetcher Fetcher
	sender  Sender
	archive Archiver
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Service whose registry schedules jobs on sched.
func New(cfg registry.Config, sched registry.Scheduler, fetcher Fetcher, sender Sender, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		sender:  sender,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reg = registry.New(cfg, sched, s.Tick, s.logger.With("component", "registry"))
	return s
}

// Registry returns the underlying registry.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// AddKey registers key at the default interval.
func (s *Service) AddKey(key string) Result {
	_, err := s.reg.Add(key)
	return s.result("add", key, err)
}

// AddKeyWithInterval registers key at the given interval.
func (s *Service) AddKeyWithInterval(key string, interval time.Duration) Result {
	_, err := s.reg.AddWithInterval(key, interval)
	return s.result("add", key, err)
}

// RemoveKey unregisters key. Removing an absent key is not an error.
func (s *Service) RemoveKey(key string) Result {
	_, err := s.reg.Remove(key)
	return s.result("remove", key, err)
}

// ListKeys returns the active keys in ascending order.
func (s *Service) ListKeys() []string {
	return s.reg.List()
}

func (s *Service) result(op, key string, err error) Result {
	res := Result{Keys: s.reg.List(), Status: classify(err), Err: err}
	if res.Status == StatusInternal {
		s.logger.Error("control operation failed", "op", op, "key", key, "error", err)
	}
	return res
}

func classify(err error) Status {
	var vErr *model.ValidationError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &vErr), errors.Is(err, registry.ErrIntervalTooShort):
		return StatusBadRequest
	case errors.Is(err, registry.ErrClosed):
		return StatusUnavailable
	default:
		return StatusInternal
	}
}

// Tick fetches the latest record for key and publishes it. Failures are
// logged and counted; they never affect the job's schedule.
func (s *Service) Tick(ctx context.Context, key string) {
	start := time.Now()
	rec, err := s.fetcher.Fetch(ctx, key)
	s.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		s.logger.Warn("fetch failed", "key", key, "error", err)
		s.metrics.ObserveTick(metrics.TickFetchError)
		return
	}

	if err := s.sender.Send(ctx, rec); err != nil {
		s.logger.Warn("publish failed", "key", key, "error", err)
		s.metrics.ObservePublish(publishResult(err))
		s.metrics.ObserveTick(metrics.TickPublishError)
		return
	}
	s.metrics.ObservePublish(metrics.PublishOK)
	s.metrics.ObserveTick(metrics.TickOK)

	s.logger.Info("quote published",
		"key", key,
		"price", rec.Price,
		"observed_at", rec.ObservedAt.Format(model.ObservedAtLayout),
	)

	if s.archive != nil && !s.archive.Enqueue(rec) {
		s.metrics.ArchiveDropped()
	}
}

func publishResult(err error) string {
	switch {
	case errors.Is(err, publisher.ErrPublishTimeout):
		return metrics.PublishTimeout
	case errors.Is(err, publisher.ErrClosed):
		return metrics.PublishClosed
	default:
		return metrics.PublishError
	}
}
