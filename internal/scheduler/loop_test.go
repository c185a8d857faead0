package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoop_ImmediatePassThenTicks(t *testing.T) {
	var n atomic.Int32
	l := NewLoop(zap.NewNop(), InvokerFunc(func(context.Context) error {
		n.Add(1)
		return nil
	}), 2*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if n.Load() < 2 {
		t.Fatalf("expected immediate pass plus ticks, got %d", n.Load())
	}
}

func TestLoop_SurvivesErrorsAndPanics(t *testing.T) {
	var n atomic.Int32
	l := NewLoop(nil, InvokerFunc(func(context.Context) error {
		switch n.Add(1) {
		case 1:
			return errors.New("database unreachable")
		case 2:
			panic("boom")
		}
		return nil
	}), time.Millisecond, 0)

	if err := l.RunOnce(context.Background()); err == nil {
		t.Fatalf("first pass should report its error")
	}
	if err := l.RunOnce(context.Background()); err == nil {
		t.Fatalf("panicking pass should report an error")
	}
	if err := l.RunOnce(context.Background()); err != nil {
		t.Fatalf("third pass should succeed, got %v", err)
	}
}

func TestLoop_TimeoutBoundsInvocation(t *testing.T) {
	l := NewLoop(nil, InvokerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), time.Second, 5*time.Millisecond)

	err := l.RunOnce(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestLoop_ZeroIntervalDisabled(t *testing.T) {
	var n atomic.Int32
	l := NewLoop(nil, InvokerFunc(func(context.Context) error {
		n.Add(1)
		return nil
	}), 0, 0)
	l.Run(context.Background())
	if n.Load() != 0 {
		t.Fatalf("disabled loop must not invoke")
	}
}
