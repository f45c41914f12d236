package publisher

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by Send, Flush and Close on a closed publisher.
	ErrClosed = errors.New("publisher closed")

	// ErrPublishTimeout is returned when the transport cannot accept a record in time.
	ErrPublishTimeout = errors.New("publish timed out")

	// ErrFlushTimeout is returned when outstanding records are not acknowledged in time.
	ErrFlushTimeout = errors.New("flush timed out")

	// ErrCloseTimeout is returned when the transport does not close in time.
	ErrCloseTimeout = errors.New("close timed out")
)

// Transport moves encoded records to the broker.
//
// Publish may return before the broker acknowledges the record. Flush must
// wait until every record accepted by Publish is acknowledged. Transports map
// their own stall and closed conditions onto ErrPublishTimeout and ErrClosed.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// State is the publisher lifecycle state.
type State int32

const (
	StateOpen State = iota
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds publisher settings.
type Config struct {
	Subject        string        // Destination topic
	PublishTimeout time.Duration // Upper bound on a single Send. Default: 5s
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Subject:        "stock-price",
		PublishTimeout: 5 * time.Second,
	}
}

// Stats contains publisher counters.
type Stats struct {
	State    State
	Sent     int64
	Failed   int64
	Timeouts int64
}
