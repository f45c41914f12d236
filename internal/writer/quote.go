package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/quote-producer/internal/buffer"
	"github.com/rickgao/quote-producer/internal/model"
)

// QuoteWriter consumes published records from a buffer and writes them to
// the quotes table.
type QuoteWriter struct {
	cfg    Config
	logger *slog.Logger

	input *buffer.Queue[model.Record]
	db    DB

	batch   []quoteRow
	batchMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	consumed chan struct{}
	wg       sync.WaitGroup

	metrics Metrics
}

// NewQuoteWriter creates a QuoteWriter. A nil db discards every batch.
func NewQuoteWriter(cfg Config, input *buffer.Queue[model.Record], db DB, logger *slog.Logger) *QuoteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &QuoteWriter{
		cfg:      cfg,
		input:    input,
		db:       db,
		logger:   logger,
		batch:    make([]quoteRow, 0, cfg.BatchSize),
		consumed: make(chan struct{}),
	}
}

// Enqueue hands a record to the writer without blocking. It returns false
// when the buffer is full or closed.
func (w *QuoteWriter) Enqueue(rec model.Record) bool {
	return w.input.Push(rec) == nil
}

// Start begins consuming records and writing to the database.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("quote writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, writes everything still buffered, and waits for the
// loops to exit or ctx to expire.
func (w *QuoteWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping quote writer")

	w.input.Close()

	if w.cancel == nil {
		// Never started; write whatever was queued directly.
		w.batchMu.Lock()
		for _, rec := range w.input.Drain() {
			w.batch = append(w.batch, transform(rec))
		}
		w.batchMu.Unlock()
		w.flush(ctx)
		return ctx.Err()
	}

	// The consumer exits once the closed buffer is empty.
	select {
	case <-w.consumed:
	case <-ctx.Done():
		w.logger.Warn("quote writer drain timed out", "remaining", w.input.Len())
	}

	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	// Final flush
	w.flush(ctx)

	if err := ctx.Err(); err != nil {
		return err
	}
	w.logger.Info("quote writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop pops records in chunks and accumulates batches.
func (w *QuoteWriter) consumeLoop() {
	defer w.wg.Done()
	defer close(w.consumed)

	for {
		recs, err := w.input.PopBatch(w.ctx, w.cfg.BatchSize)
		if err != nil {
			if !errors.Is(err, buffer.ErrClosed) && !errors.Is(err, context.Canceled) {
				w.logger.Warn("quote writer input error", "error", err)
			}
			return
		}
		w.handleRecords(recs)
	}
}

// flushLoop periodically flushes the batch.
func (w *QuoteWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *QuoteWriter) handleRecords(recs []model.Record) {
	w.batchMu.Lock()
	for _, rec := range recs {
		w.batch = append(w.batch, transform(rec))
	}
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

func transform(rec model.Record) quoteRow {
	return quoteRow{
		Symbol:     rec.Key,
		Price:      rec.Price,
		ObservedAt: rec.ObservedAt.UTC(),
	}
}

// flush writes the current batch to the database.
func (w *QuoteWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]quoteRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		w.batchMu.Lock()
		w.metrics.Discarded += int64(len(batch))
		w.batchMu.Unlock()
		return
	}

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed quotes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *QuoteWriter) batchInsert(ctx context.Context, rows []quoteRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertQuote, r.Symbol, r.Price, r.ObservedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
