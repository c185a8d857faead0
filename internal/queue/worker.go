package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/engine"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/metrics"
)

// Checker runs the shared per-monitor pipeline.
type Checker interface {
	CheckMonitorByID(ctx context.Context, id domain.MonitorID) engine.Outcome
}

type WorkerConfig struct {
	// Concurrency is the number of goroutines pulling jobs.
	Concurrency int
	// MaxAttempts bounds in-process retries of infrastructure failures.
	MaxAttempts int
	Backoff     time.Duration
	// Wait is how long one Dequeue blocks before polling again.
	Wait time.Duration
}

// Worker drains jobs. Only infrastructure failures are retried; a monitor
// that is down is a successful check.
type Worker struct {
	q       Queue
	checker Checker
	cfg     WorkerConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewWorker(q Queue, checker Checker, cfg WorkerConfig, log *zap.Logger, m *metrics.Metrics) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 300 * time.Millisecond
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{q: q, checker: checker, cfg: cfg, log: log, metrics: m}
}

// Run blocks until ctx is cancelled and every in-flight job has finished.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}
	wg.Wait()
	w.log.Info("queue_worker_stopped")
}

func (w *Worker) loop(ctx context.Context, n int) {
	log := w.log.With(zap.Int("worker", n))
	for ctx.Err() == nil {
		job, err := w.q.Dequeue(ctx, w.cfg.Wait)
		switch {
		case errors.Is(err, ErrEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue_dequeue_error", zap.Error(err))
			sleep(ctx, w.cfg.Backoff)
			continue
		}
		w.Handle(ctx, job)
	}
}

// Handle runs one job to completion and settles it on the queue.
func (w *Worker) Handle(ctx context.Context, job *Job) {
	log := w.log.With(zap.String("job_id", job.ID), zap.String("monitor_id", string(job.MonitorID)))

	if job.Attempts >= w.cfg.MaxAttempts {
		w.deadLetter(ctx, log, job, "attempts exhausted: "+job.LastError)
		return
	}

	// Only failures before the probe (lock backend, monitor lookup) are
	// retried here. Once the target was probed the engine has already retried
	// its writes, and probing again would double-check the interval.
	var last engine.Outcome
	b := retry.WithMaxRetries(uint64(w.cfg.MaxAttempts-1), retry.NewExponential(w.cfg.Backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		last = w.checker.CheckMonitorByID(ctx, job.MonitorID)
		if last.Status != engine.StatusFailed || last.Probed {
			return nil
		}
		err := last.Err
		if err == nil {
			err = errors.New(last.Error)
		}
		log.Warn("queue_job_retry", zap.Error(err))
		return retry.RetryableError(err)
	})

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the job leased so Reap hands it to another worker.
			return
		}
		w.deadLetter(ctx, log, job, err.Error())
		return
	}

	if err := w.q.Ack(ctx, job); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			log.Warn("queue_job_lease_lost", zap.Int("attempts", job.Attempts))
			return
		}
		log.Warn("queue_ack_error", zap.Error(err))
		return
	}
	w.metrics.ObserveJob("acked")
	if last.Status == engine.StatusFailed {
		log.Warn("queue_job_persist_failed", zap.String("error", last.Error))
		return
	}
	log.Debug("queue_job_done", zap.String("status", string(last.Status)), zap.String("verdict", string(last.Verdict)))
}

func (w *Worker) deadLetter(ctx context.Context, log *zap.Logger, job *Job, reason string) {
	if err := w.q.MarkFailed(ctx, job, reason); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			log.Warn("queue_job_lease_lost", zap.Int("attempts", job.Attempts))
			return
		}
		log.Error("queue_dead_letter_error", zap.Error(err))
		return
	}
	w.metrics.ObserveJob("dead")
	log.Error("queue_job_dead_lettered", zap.String("reason", reason))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
