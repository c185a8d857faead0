package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// Memory is an in-process Queue for single-binary deployments and tests.
type Memory struct {
	opts Options
	Now  func() time.Time

	mu       sync.Mutex
	pending  []*Job
	inflight map[string]leased
	queued   map[domain.MonitorID]bool
	dead     []Job
	// notify is closed and replaced on every wake so all waiters see it.
	notify chan struct{}
}

type leased struct {
	job      *Job
	deadline time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:     opts.withDefaults(),
		Now:      time.Now,
		inflight: make(map[string]leased),
		queued:   make(map[domain.MonitorID]bool),
		notify:   make(chan struct{}),
	}
}

func (q *Memory) Enqueue(_ context.Context, id domain.MonitorID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued[id] {
		return false, nil
	}
	q.queued[id] = true
	q.pending = append(q.pending, &Job{ID: uuid.NewString(), MonitorID: id, EnqueuedAt: q.Now().UTC()})
	q.wake()
	return true, nil
}

func (q *Memory) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending = q.pending[1:]
			q.inflight[j.ID] = leased{job: j, deadline: q.Now().Add(q.opts.Visibility)}
			q.mu.Unlock()
			cp := *j
			return &cp, nil
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrEmpty
		case <-notify:
		}
	}
}

func (q *Memory) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.holds(job) {
		return ErrLeaseLost
	}
	delete(q.inflight, job.ID)
	delete(q.queued, job.MonitorID)
	return nil
}

func (q *Memory) MarkFailed(_ context.Context, job *Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.holds(job) {
		return ErrLeaseLost
	}
	delete(q.inflight, job.ID)
	delete(q.queued, job.MonitorID)
	d := *job
	d.LastError = reason
	q.dead = append(q.dead, d)
	return nil
}

func (q *Memory) Reap(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.Now()
	moved := 0
	for id, l := range q.inflight {
		if now.Before(l.deadline) {
			continue
		}
		delete(q.inflight, id)
		next := redeliver(l.job, "lease expired")
		if next.Attempts >= q.opts.MaxAttempts {
			delete(q.queued, next.MonitorID)
			q.dead = append(q.dead, *next)
		} else {
			q.pending = append(q.pending, next)
		}
		moved++
	}
	if moved > 0 {
		q.wake()
	}
	return moved, nil
}

func (q *Memory) DeadLetters(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.dead))
	for i := len(q.dead) - 1; i >= 0; i-- {
		out = append(out, q.dead[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// holds reports whether job is the delivery currently leased. A redelivered
// copy shares the job ID but carries a higher attempt count.
func (q *Memory) holds(job *Job) bool {
	l, ok := q.inflight[job.ID]
	return ok && l.job.Attempts == job.Attempts
}

func (q *Memory) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}
