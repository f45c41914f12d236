package shutdown

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder collects the order of calls across all fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeRegistry struct{ rec *recorder }

func (f *fakeRegistry) Close() { f.rec.add("registry.close") }

type fakePublisher struct {
	rec          *recorder
	flushErr     error
	closeErr     error
	flushDelay   time.Duration
	flushTimeout time.Duration
	closeTimeout time.Duration
}

func (f *fakePublisher) Flush(timeout time.Duration) error {
	f.flushTimeout = timeout
	time.Sleep(f.flushDelay)
	f.rec.add("publisher.flush")
	return f.flushErr
}

func (f *fakePublisher) Close(timeout time.Duration) error {
	f.closeTimeout = timeout
	f.rec.add("publisher.close")
	return f.closeErr
}

type fakeScheduler struct {
	rec *recorder
	err error
}

func (f *fakeScheduler) StopAll() error {
	f.rec.add("scheduler.stop")
	return f.err
}

func newTestCoordinator(cfg Config) (*Coordinator, *recorder, *fakePublisher, *fakeScheduler) {
	rec := &recorder{}
	pub := &fakePublisher{rec: rec}
	sched := &fakeScheduler{rec: rec}
	c := New(cfg, &fakeRegistry{rec: rec}, pub, sched, nil)
	return c, rec, pub, sched
}

var wantOrder = []string{"registry.close", "publisher.flush", "publisher.close", "scheduler.stop"}

func checkOrder(t *testing.T, got []string) {
	t.Helper()
	if len(got) != len(wantOrder) {
		t.Fatalf("calls = %v, want %v", got, wantOrder)
	}
	for i := range wantOrder {
		if got[i] != wantOrder[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], wantOrder[i])
		}
	}
}

func TestCoordinator_Order(t *testing.T) {
	c, rec, pub, _ := newTestCoordinator(Config{})

	if c.State() != StateRunning {
		t.Fatalf("initial State() = %v, want running", c.State())
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	checkOrder(t, rec.list())
	if c.State() != StateDone {
		t.Errorf("State() = %v, want done", c.State())
	}
	if pub.flushTimeout != 10*time.Second || pub.closeTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s/10s", pub.flushTimeout, pub.closeTimeout)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
}

func TestCoordinator_ConfiguredTimeouts(t *testing.T) {
	c, _, pub, _ := newTestCoordinator(Config{FlushTimeout: 3 * time.Second, CloseTimeout: 4 * time.Second})
	c.Shutdown()

	if pub.flushTimeout != 3*time.Second {
		t.Errorf("flush timeout = %v, want 3s", pub.flushTimeout)
	}
	if pub.closeTimeout != 4*time.Second {
		t.Errorf("close timeout = %v, want 4s", pub.closeTimeout)
	}
}

func TestCoordinator_ContinuesAfterErrors(t *testing.T) {
	flushErr := errors.New("flush timed out")
	closeErr := errors.New("close failed")
	stopErr := errors.New("drain timed out")

	c, rec, pub, sched := newTestCoordinator(Config{})
	pub.flushErr = flushErr
	pub.closeErr = closeErr
	sched.err = stopErr

	err := c.Shutdown()

	checkOrder(t, rec.list())
	for _, want := range []error{flushErr, closeErr, stopErr} {
		if !errors.Is(err, want) {
			t.Errorf("Shutdown() error = %v, want it to include %v", err, want)
		}
	}
	if c.State() != StateDone {
		t.Errorf("State() = %v, want done", c.State())
	}
}

func TestCoordinator_RunsOnce(t *testing.T) {
	c, rec, pub, _ := newTestCoordinator(Config{})
	pub.flushDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Shutdown()
			// Every caller returns only after the sequence finished.
			if c.State() != StateDone {
				t.Errorf("State() after Shutdown() = %v, want done", c.State())
			}
		}()
	}
	wg.Wait()
	c.Shutdown()

	checkOrder(t, rec.list())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateDrained, "drained"},
		{StateClosed, "closed"},
		{StateSchedulerStopped, "scheduler_stopped"},
		{StateDone, "done"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
