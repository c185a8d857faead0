// Package scheduler drives check passes on a fixed cadence.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Invoker is one unit of scheduled work: an in-process check pass, or a
// queue producer enqueueing the due set.
type Invoker interface {
	Invoke(ctx context.Context) error
}

type InvokerFunc func(ctx context.Context) error

func (f InvokerFunc) Invoke(ctx context.Context) error { return f(ctx) }

// DefaultInterval is the tick period. It is a sampling rate; each monitor
// still runs only once its own interval has elapsed.
const DefaultInterval = 10 * time.Second

type Loop struct {
	Logger   *zap.Logger
	Invoker  Invoker
	Interval time.Duration
	// Timeout bounds a single invocation; zero means no bound.
	Timeout time.Duration
}

func NewLoop(logger *zap.Logger, inv Invoker, interval, timeout time.Duration) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < 0 {
		interval = 0
	}
	return &Loop{Logger: logger, Invoker: inv, Interval: interval, Timeout: timeout}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
// Ticks that arrive while a pass is still running are dropped. A failed or
// panicking pass is logged and the loop carries on.
func (l *Loop) Run(ctx context.Context) {
	if l.Interval == 0 {
		l.Logger.Info("scheduler_disabled")
		return
	}
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	l.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce invokes once and reports the error it logged.
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			l.Logger.Error("scheduler_tick_panic", zap.Any("panic", r))
		}
	}()

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err = l.Invoker.Invoke(ctx); err != nil {
		l.Logger.Warn("scheduler_tick_error", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	l.Logger.Debug("scheduler_tick", zap.Duration("elapsed", time.Since(start)))
	return nil
}
