package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Config controls batching.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// Metrics tracks writer performance.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Discarded int64 // Rows dropped because no database is configured
}

// DB is the subset of *pgxpool.Pool used by the writer.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type quoteRow struct {
	Symbol     string
	Price      float64
	ObservedAt time.Time
}

const insertQuote = `
	INSERT INTO quotes (symbol, price, observed_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (symbol, observed_at) DO NOTHING
`
