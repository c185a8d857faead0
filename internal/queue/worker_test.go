package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/engine"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/probe"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/memory"
)

type scriptedChecker struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *scriptedChecker) CheckMonitorByID(_ context.Context, id domain.MonitorID) engine.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		err := errors.New("db unavailable")
		return engine.Outcome{MonitorID: id, Status: engine.StatusFailed, Err: err, Error: err.Error()}
	}
	return engine.Outcome{MonitorID: id, Status: engine.StatusChecked, Verdict: domain.VerdictDown}
}

func dequeueOne(t *testing.T, q Queue) *Job {
	t.Helper()
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "M1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	j, err := q.Dequeue(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	return j
}

func TestWorker_RetriesInfraFailureThenAcks(t *testing.T) {
	q := NewMemory(Options{})
	c := &scriptedChecker{failures: 2}
	w := NewWorker(q, c, WorkerConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil, nil)

	w.Handle(context.Background(), dequeueOne(t, q))

	if c.calls != 3 {
		t.Fatalf("want 3 calls, got %d", c.calls)
	}
	if dead, _ := q.DeadLetters(context.Background(), 0); len(dead) != 0 {
		t.Fatalf("job should be acked, got dead letters %+v", dead)
	}
	if ok, _ := q.Enqueue(context.Background(), "M1"); !ok {
		t.Fatalf("ack should clear the dedupe marker")
	}
}

func TestWorker_DownMonitorIsNotRetried(t *testing.T) {
	q := NewMemory(Options{})
	c := &scriptedChecker{}
	w := NewWorker(q, c, WorkerConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil, nil)
	w.Handle(context.Background(), dequeueOne(t, q))
	if c.calls != 1 {
		t.Fatalf("a down verdict is a completed check; got %d calls", c.calls)
	}
}

func TestWorker_ExhaustedRetriesDeadLetter(t *testing.T) {
	q := NewMemory(Options{})
	c := &scriptedChecker{failures: 100}
	w := NewWorker(q, c, WorkerConfig{MaxAttempts: 2, Backoff: time.Millisecond}, nil, nil)

	w.Handle(context.Background(), dequeueOne(t, q))

	if c.calls != 2 {
		t.Fatalf("want 2 calls, got %d", c.calls)
	}
	dead, _ := q.DeadLetters(context.Background(), 0)
	if len(dead) != 1 || dead[0].LastError != "db unavailable" {
		t.Fatalf("want one dead letter with the last error, got %+v", dead)
	}
}

// flakyChecks fails the first n Appends, then behaves like the memory store.
type flakyChecks struct {
	*memory.Store
	mu sync.Mutex
	n  int
}

func (f *flakyChecks) Append(ctx context.Context, c *domain.Check) error {
	f.mu.Lock()
	if f.n > 0 {
		f.n--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Store.Append(ctx, c)
}

func TestWorker_TransientAppendFailureProbesOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := s.Add(ctx, &domain.Monitor{ID: "M1", URL: "https://a.example", IntervalSec: 60, TimeoutSec: 5, Enabled: true}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var probes atomic.Int32
	p := probe.ProberFunc(func(context.Context, domain.Monitor) probe.Result {
		probes.Add(1)
		return probe.Result{Reachable: true, Success: true, StatusCode: 200}
	})
	checks := &flakyChecks{Store: s, n: 1}
	e := engine.New(s, checks, nil, p, engine.Options{StoreBackoff: time.Millisecond})

	q := NewMemory(Options{})
	w := NewWorker(q, e, WorkerConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil, nil)
	w.Handle(ctx, dequeueOne(t, q))

	if probes.Load() != 1 {
		t.Fatalf("target probed %d times, want 1", probes.Load())
	}
	hist, _ := s.ListByMonitor(ctx, "M1", 0)
	if len(hist) != 1 {
		t.Fatalf("want exactly one persisted check, got %d", len(hist))
	}
	if dead, _ := q.DeadLetters(ctx, 0); len(dead) != 0 {
		t.Fatalf("job should be acked, got dead letters %+v", dead)
	}
}

func TestWorker_PersistFailureAfterProbeIsNotRetried(t *testing.T) {
	q := NewMemory(Options{})
	var calls atomic.Int32
	c := checkerFunc(func(_ context.Context, id domain.MonitorID) engine.Outcome {
		calls.Add(1)
		err := errors.New("append check: db unavailable")
		return engine.Outcome{MonitorID: id, Status: engine.StatusFailed, Err: err, Error: err.Error(), Probed: true}
	})
	w := NewWorker(q, c, WorkerConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil, nil)

	w.Handle(context.Background(), dequeueOne(t, q))

	if calls.Load() != 1 {
		t.Fatalf("a probed check must not be re-run, got %d calls", calls.Load())
	}
	if ok, _ := q.Enqueue(context.Background(), "M1"); !ok {
		t.Fatalf("job should be acked so the next interval can enqueue")
	}
}

type checkerFunc func(context.Context, domain.MonitorID) engine.Outcome

func (f checkerFunc) CheckMonitorByID(ctx context.Context, id domain.MonitorID) engine.Outcome {
	return f(ctx, id)
}

func TestWorker_RunDrainsUntilCancelled(t *testing.T) {
	q := NewMemory(Options{})
	c := &scriptedChecker{}
	w := NewWorker(q, c, WorkerConfig{Concurrency: 2, Wait: 20 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for _, id := range []domain.MonitorID{"A", "B", "C"} {
		_, _ = q.Enqueue(ctx, id)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		n := c.calls
		c.mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
	if c.calls != 3 {
		t.Fatalf("want 3 jobs handled, got %d", c.calls)
	}
}

func TestProducer_EnqueuesDueOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Second)
	_ = s.Add(ctx, &domain.Monitor{ID: "DUE", URL: "https://a.example", IntervalSec: 60, TimeoutSec: 5, Enabled: true})
	_ = s.Add(ctx, &domain.Monitor{ID: "FRESH", URL: "https://b.example", IntervalSec: 60, TimeoutSec: 5, Enabled: true, LastCheckedAt: &recent})

	q := NewMemory(Options{})
	p := NewProducer(q, s, nil)
	p.Now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := p.Invoke(ctx); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	}

	j, err := q.Dequeue(ctx, 50*time.Millisecond)
	if err != nil || j.MonitorID != "DUE" {
		t.Fatalf("want DUE job, got %+v %v", j, err)
	}
	if _, err := q.Dequeue(ctx, 50*time.Millisecond); !errors.Is(err, ErrEmpty) {
		t.Fatalf("want exactly one job, got %v", err)
	}
}
