package buffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](4, 64)
	for i := 0; i < 10; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	got := q.Drain()
	if len(got) != 10 {
		t.Fatalf("Drain() returned %d items, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("item %d = %d, want %d", i, v, i)
		}
	}
}

func TestQueue_GrowsUpToMax(t *testing.T) {
	q := New[int](2, 8)
	for i := 0; i < 8; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	if q.Cap() != 8 {
		t.Errorf("Cap() = %d, want 8", q.Cap())
	}
	if err := q.Push(99); !errors.Is(err, ErrFull) {
		t.Errorf("Push() at max error = %v, want ErrFull", err)
	}

	stats := q.Stats()
	if stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", stats.Rejected)
	}
	if stats.Resizes == 0 {
		t.Error("Resizes = 0, want > 0")
	}
}

func TestQueue_GrowPreservesOrderAfterWrap(t *testing.T) {
	q := New[int](4, 32)
	ctx := context.Background()

	// Move head off zero before the ring grows.
	q.Push(0)
	q.Push(1)
	q.Pop(ctx)
	q.Pop(ctx)

	for i := 2; i < 12; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	for want := 2; want < 12; want++ {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if got != want {
			t.Errorf("Pop() = %d, want %d", got, want)
		}
	}
}

func TestQueue_PopBatchLimit(t *testing.T) {
	q := New[string](8, 8)
	q.Push("a")
	q.Push("b")
	q.Push("c")

	got, err := q.PopBatch(context.Background(), 2)
	if err != nil {
		t.Fatalf("PopBatch() error = %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("PopBatch() = %v, want [a b]", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueue_PopWaitsForPush(t *testing.T) {
	q := New[int](4, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	var err error
	go func() {
		defer wg.Done()
		got, err = q.Pop(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(7)
	wg.Wait()

	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if got != 7 {
		t.Errorf("Pop() = %d, want 7", got)
	}
}

func TestQueue_PopContextCancelled(t *testing.T) {
	q := New[int](4, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() error = %v, want DeadlineExceeded", err)
	}
}

func TestQueue_Close(t *testing.T) {
	q := New[int](4, 4)
	q.Push(1)
	q.Close()

	if err := q.Push(2); !errors.Is(err, ErrClosed) {
		t.Errorf("Push() after Close error = %v, want ErrClosed", err)
	}

	got, err := q.Pop(context.Background())
	if err != nil || got != 1 {
		t.Errorf("Pop() = %d, %v; want 1, nil", got, err)
	}

	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Pop() on drained closed queue error = %v, want ErrClosed", err)
	}
}

func TestQueue_CloseWakesWaiter(t *testing.T) {
	q := New[int](4, 4)
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Pop() error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after Close")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](16, 10000)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if err := q.Push(i); err != nil {
					t.Errorf("Push() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if q.Len() != 4000 {
		t.Errorf("Len() = %d, want 4000", q.Len())
	}
	if got := q.Stats().Pushed; got != 4000 {
		t.Errorf("Pushed = %d, want 4000", got)
	}
}
