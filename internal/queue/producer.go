package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/schedule"
)

// Producer enqueues one job per due monitor. It is driven by the scheduler
// loop in place of an in-process pass.
type Producer struct {
	q        Queue
	monitors repo.MonitorStore
	log      *zap.Logger
	Now      func() time.Time
}

func NewProducer(q Queue, monitors repo.MonitorStore, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{q: q, monitors: monitors, log: log, Now: time.Now}
}

// Invoke reaps expired leases, then enqueues the due set. Monitors that
// already have a job pending or in flight are not enqueued twice.
func (p *Producer) Invoke(ctx context.Context) error {
	if n, err := p.q.Reap(ctx); err != nil {
		p.log.Warn("queue_reap_error", zap.Error(err))
	} else if n > 0 {
		p.log.Info("queue_reaped", zap.Int("jobs", n))
	}

	ms, err := p.monitors.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled monitors: %w", err)
	}
	due := schedule.Due(ms, p.Now())

	var enqueued, deduped int
	for _, m := range due {
		ok, err := p.q.Enqueue(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", m.ID, err)
		}
		if ok {
			enqueued++
		} else {
			deduped++
		}
	}
	p.log.Debug("queue_produced",
		zap.Int("due", len(due)),
		zap.Int("enqueued", enqueued),
		zap.Int("already_queued", deduped),
	)
	return nil
}
