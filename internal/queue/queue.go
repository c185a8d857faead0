// Package queue is the push-based execution path: a producer enqueues one job
// per due monitor and workers drain jobs through the check engine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// ErrEmpty is returned by Dequeue when no job arrived before the wait elapsed.
var ErrEmpty = errors.New("queue empty")

// ErrLeaseLost is returned by Ack and MarkFailed when the job's lease expired
// and Reap already handed it back to the queue.
var ErrLeaseLost = errors.New("job lease lost")

type Job struct {
	ID         string           `json:"id"`
	MonitorID  domain.MonitorID `json:"monitor_id"`
	Attempts   int              `json:"attempts"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	LastError  string           `json:"last_error,omitempty"`

	raw string
}

// Queue delivers jobs with a visibility lease. A dequeued job that is neither
// acked nor failed before its lease expires is put back by Reap.
type Queue interface {
	// Enqueue reports false when a job for the monitor is already pending or
	// in flight.
	Enqueue(ctx context.Context, id domain.MonitorID) (bool, error)
	Dequeue(ctx context.Context, wait time.Duration) (*Job, error)
	// Ack and MarkFailed settle only the delivery the caller still leases.
	Ack(ctx context.Context, job *Job) error
	// MarkFailed moves the job to the dead-letter store.
	MarkFailed(ctx context.Context, job *Job, reason string) error
	// Reap returns expired in-flight jobs to pending, or dead-letters them
	// once they have used up their attempts. It reports how many it moved.
	Reap(ctx context.Context) (int, error)
	DeadLetters(ctx context.Context, limit int) ([]Job, error)
}

type Options struct {
	Visibility  time.Duration
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Visibility <= 0 {
		o.Visibility = time.Minute
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 5
	}
	return o
}

func encode(j *Job) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	j.raw = string(b)
	return j.raw, nil
}

func decode(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	j.raw = raw
	return &j, nil
}

// redeliver is the job as it goes back to pending after a lost lease.
func redeliver(j *Job, reason string) *Job {
	return &Job{
		ID:         j.ID,
		MonitorID:  j.MonitorID,
		Attempts:   j.Attempts + 1,
		EnqueuedAt: j.EnqueuedAt,
		LastError:  reason,
	}
}
