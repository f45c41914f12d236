package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/quote-producer/internal/buffer"
	"github.com/rickgao/quote-producer/internal/model"
)

// fakeDB records queued rows and reports a conflict for any
// (symbol, observed_at) it has already seen.
type fakeDB struct {
	mu      sync.Mutex
	rows    []quoteRow
	seen    map[string]bool
	batches int
	err     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{seen: make(map[string]bool)}
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches++
	res := &fakeResults{err: f.err}
	for _, q := range b.QueuedQueries {
		row := quoteRow{
			Symbol:     q.Arguments[0].(string),
			Price:      q.Arguments[1].(float64),
			ObservedAt: q.Arguments[2].(time.Time),
		}
		id := row.Symbol + "|" + row.ObservedAt.Format(time.RFC3339)
		if f.seen[id] {
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 0"))
			continue
		}
		f.seen[id] = true
		f.rows = append(f.rows, row)
		res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 1"))
	}
	return res
}

func (f *fakeDB) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeResults struct {
	tags []pgconn.CommandTag
	next int
	err  error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	tag := r.tags[r.next]
	r.next++
	return tag, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row         { return nil }
func (r *fakeResults) Close() error              { return nil }

var minute = time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

func record(key string, price float64, at time.Time) model.Record {
	return model.Record{Key: key, Price: price, ObservedAt: at}
}

func TestTransform(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.FixedZone("EDT", -4*3600))
	row := transform(record("AAPL", 189.5, at))

	if row.Symbol != "AAPL" {
		t.Errorf("Symbol = %s, want AAPL", row.Symbol)
	}
	if row.Price != 189.5 {
		t.Errorf("Price = %v, want 189.5", row.Price)
	}
	if row.ObservedAt.Location() != time.UTC {
		t.Errorf("ObservedAt location = %v, want UTC", row.ObservedAt.Location())
	}
	if !row.ObservedAt.Equal(minute) {
		t.Errorf("ObservedAt = %v, want %v", row.ObservedAt, minute)
	}
}

func TestQuoteWriter_FlushOnBatchSize(t *testing.T) {
	db := newFakeDB()
	input := buffer.New[model.Record](16, 64)
	w := NewQuoteWriter(Config{BatchSize: 3, FlushInterval: time.Hour}, input, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i, key := range []string{"AAPL", "MSFT", "TSLA"} {
		if !w.Enqueue(record(key, float64(100+i), minute)) {
			t.Fatalf("Enqueue(%s) = false", key)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for db.rowCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("rows = %d, want 3 before flush interval", db.rowCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 3 {
		t.Errorf("Inserts = %d, want 3", stats.Inserts)
	}
	if stats.Flushes < 1 {
		t.Errorf("Flushes = %d, want >= 1", stats.Flushes)
	}
}

func TestQuoteWriter_StopFlushesRemaining(t *testing.T) {
	db := newFakeDB()
	input := buffer.New[model.Record](16, 64)
	w := NewQuoteWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, input, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Enqueue(record("AAPL", 189.5, minute))
	w.Enqueue(record("MSFT", 415.1, minute))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := db.rowCount(); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
	if w.Enqueue(record("TSLA", 1, minute)) {
		t.Error("Enqueue after Stop = true, want false")
	}
}

func TestQuoteWriter_Conflicts(t *testing.T) {
	db := newFakeDB()
	input := buffer.New[model.Record](16, 64)
	w := NewQuoteWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, input, db, nil)

	// Same symbol and minute twice: the second row is a conflict.
	w.Enqueue(record("AAPL", 189.5, minute))
	w.Enqueue(record("AAPL", 189.7, minute))
	w.Enqueue(record("AAPL", 190.0, minute.Add(time.Minute)))

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 2 {
		t.Errorf("Inserts = %d, want 2", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if db.rows[0].Price != 189.5 {
		t.Errorf("kept price = %v, want first record 189.5", db.rows[0].Price)
	}
}

func TestQuoteWriter_InsertError(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	input := buffer.New[model.Record](4, 4)
	w := NewQuoteWriter(Config{BatchSize: 10, FlushInterval: time.Hour}, input, db, nil)

	w.Enqueue(record("AAPL", 189.5, minute))
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
}

func TestQuoteWriter_NilDB(t *testing.T) {
	input := buffer.New[model.Record](4, 4)
	w := NewQuoteWriter(Config{}, input, nil, nil)

	w.Enqueue(record("AAPL", 189.5, minute))
	w.Enqueue(record("MSFT", 415.1, minute))
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := w.Stats().Discarded; got != 2 {
		t.Errorf("Discarded = %d, want 2", got)
	}
}

func TestQuoteWriter_EnqueueFull(t *testing.T) {
	input := buffer.New[model.Record](2, 2)
	w := NewQuoteWriter(Config{}, input, nil, nil)

	if !w.Enqueue(record("AAPL", 1, minute)) {
		t.Fatal("first Enqueue = false")
	}
	if !w.Enqueue(record("MSFT", 1, minute)) {
		t.Fatal("second Enqueue = false")
	}
	if w.Enqueue(record("TSLA", 1, minute)) {
		t.Error("Enqueue on full buffer = true, want false")
	}
}

func TestDefaultConfig(t *testing.T) {
	w := NewQuoteWriter(Config{}, buffer.New[model.Record](1, 1), nil, nil)
	def := DefaultConfig()
	if w.cfg.BatchSize != def.BatchSize {
		t.Errorf("BatchSize = %d, want %d", w.cfg.BatchSize, def.BatchSize)
	}
	if w.cfg.FlushInterval != def.FlushInterval {
		t.Errorf("FlushInterval = %v, want %v", w.cfg.FlushInterval, def.FlushInterval)
	}
}
