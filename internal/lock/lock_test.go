package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestLocal_ExclusiveUntilReleaseOrExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.Now = func() time.Time { return now }

	lease, err := l.TryAcquire(ctx, "M1", 10*time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.TryAcquire(ctx, "M1", 10*time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("want ErrHeld, got %v", err)
	}
	if _, err := l.TryAcquire(ctx, "M2", 10*time.Second); err != nil {
		t.Fatalf("other key must be free: %v", err)
	}

	_ = lease.Release(ctx)
	second, err := l.TryAcquire(ctx, "M1", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}

	// Expired lease is taken over; the stale holder's release is a no-op.
	now = now.Add(11 * time.Second)
	third, err := l.TryAcquire(ctx, "M1", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	_ = second.Release(ctx)
	if _, err := l.TryAcquire(ctx, "M1", 10*time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("stale release freed a live lease: %v", err)
	}
	_ = third.Release(ctx)
}

func TestRedis_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedis(client, "")

	lease, err := l.TryAcquire(ctx, "M1", 5*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.TryAcquire(ctx, "M1", 5*time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("want ErrHeld, got %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("sentrypulse:lock:M1") {
		t.Fatalf("key should be deleted on release")
	}

	stale, _ := l.TryAcquire(ctx, "M1", 5*time.Second)
	mr.FastForward(6 * time.Second)
	fresh, err := l.TryAcquire(ctx, "M1", 5*time.Second)
	if err != nil {
		t.Fatalf("acquire after ttl: %v", err)
	}
	_ = stale.Release(ctx)
	if !mr.Exists("sentrypulse:lock:M1") {
		t.Fatalf("stale holder must not delete the new lease")
	}
	_ = fresh.Release(ctx)
}

func TestRedis_UnavailableIsError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedis(client, "").TryAcquire(context.Background(), "M1", time.Second)
	if err == nil || errors.Is(err, ErrHeld) {
		t.Fatalf("want infrastructure error, got %v", err)
	}
}
