// Package broker is the NATS JetStream transport for the publisher.
//
// Records are published asynchronously to a single subject backed by a
// JetStream stream. Each message carries a Nats-Msg-Id so the stream drops
// duplicates inside its window. Flush waits for every outstanding ack.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rickgao/quote-producer/internal/publisher"
)

// Config holds broker connection settings.
type Config struct {
	URL            string
	Name           string // Client connection name
	Subject        string
	Stream         string
	PublishTimeout time.Duration // Max stall wait when too many acks are pending
	MaxPending     int           // Max unacknowledged async publishes
	ReconnectWait  time.Duration
	MaxAge         time.Duration // Stream retention. Default: 24h
	Duplicates     time.Duration // Msg-ID dedup window. Default: 2m
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Name:           "quote-producer",
		Subject:        "stock-price",
		Stream:         "QUOTES",
		PublishTimeout: 5 * time.Second,
		MaxPending:     4096,
		ReconnectWait:  100 * time.Millisecond,
		MaxAge:         24 * time.Hour,
		Duplicates:     2 * time.Minute,
	}
}

// Stats contains broker counters.
type Stats struct {
	Connected bool
	Pending   int
	AckErrors int64
}

// Broker is a publisher.Transport backed by NATS JetStream.
type Broker struct {
	cfg    Config
	logger *slog.Logger

	nc *nats.Conn
	js jetstream.JetStream

	closed    chan struct{}
	ackErrors atomic.Int64
}

// Connect dials NATS, creates the JetStream context and ensures the stream exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.Duplicates <= 0 {
		cfg.Duplicates = def.Duplicates
	}

	b := &Broker{
		cfg:    cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.PingInterval(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(b.closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	b.nc = nc

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(cfg.MaxPending),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			b.ackErrors.Add(1)
			logger.Warn("publish not acknowledged",
				"subject", msg.Subject,
				"msg_id", msg.Header.Get(jetstream.MsgIDHeader),
				"error", err,
			)
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	b.js = js

	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("broker connected",
		"url", nc.ConnectedUrl(),
		"stream", cfg.Stream,
		"subject", cfg.Subject,
	)
	return b, nil
}

func (b *Broker) ensureStream(ctx context.Context) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       b.cfg.Stream,
		Subjects:   []string{b.cfg.Subject},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     b.cfg.MaxAge,
		Duplicates: b.cfg.Duplicates,
		Discard:    jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", b.cfg.Stream, err)
	}
	return nil
}

// Publish queues data for async delivery. It blocks only while the pending
// ack window is full, for at most the publish timeout or ctx's deadline.
func (b *Broker) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// Local enqueue timestamp for downstream latency measurement.
	msg.Header.Set("qp-pub-ns", strconv.FormatInt(time.Now().UnixNano(), 10))

	opts := []jetstream.PublishOpt{
		jetstream.WithStallWait(stallWait(ctx, b.cfg.PublishTimeout)),
	}
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}

	_, err := b.js.PublishMsgAsync(msg, opts...)
	return mapPublishErr(err)
}

// Flush waits until every async publish has been acknowledged.
func (b *Broker) Flush(ctx context.Context) error {
	if err := b.nc.FlushWithContext(ctx); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return publisher.ErrClosed
		}
		return fmt.Errorf("flush connection: %w", err)
	}

	select {
	case <-b.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		b.logger.Warn("acks still pending at flush deadline", "pending", b.js.PublishAsyncPending())
		return ctx.Err()
	}
}

// Close drains the connection and waits for it to close. If ctx expires
// first the connection is closed immediately.
func (b *Broker) Close(ctx context.Context) error {
	if err := b.nc.Drain(); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return nil
		}
		b.nc.Close()
		return fmt.Errorf("drain connection: %w", err)
	}

	select {
	case <-b.closed:
		return nil
	case <-ctx.Done():
		b.nc.Close()
		return ctx.Err()
	}
}

// Subscribe delivers every message published on the configured subject to fn.
// The returned function unsubscribes.
func (b *Broker) Subscribe(fn func(data []byte)) (func(), error) {
	sub, err := b.nc.Subscribe(b.cfg.Subject, func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.cfg.Subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Stats returns current broker counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Connected: b.nc.IsConnected(),
		Pending:   b.js.PublishAsyncPending(),
		AckErrors: b.ackErrors.Load(),
	}
}

// stallWait bounds the wait for a free pending slot by ctx's deadline.
func stallWait(ctx context.Context, limit time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < limit {
			if remaining <= 0 {
				return time.Millisecond
			}
			return remaining
		}
	}
	return limit
}

// mapPublishErr translates NATS errors into publisher sentinels.
func mapPublishErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrTooManyStalledMsgs):
		return publisher.ErrPublishTimeout
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionDraining):
		return publisher.ErrClosed
	default:
		return fmt.Errorf("publish async: %w", err)
	}
}
