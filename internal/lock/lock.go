// Package lock provides per-monitor mutual exclusion for check execution.
//
// A lease expires on its own after its TTL so a crashed holder cannot wedge a
// monitor. Holders pick a TTL slightly longer than the check timeout.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrHeld = errors.New("check already in progress")

type Locker interface {
	// TryAcquire takes the lease for key without waiting. It returns ErrHeld
	// when another holder has an unexpired lease.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type Lease interface {
	// Release frees the lease if it is still owned by this holder.
	Release(ctx context.Context) error
}

// Local is an in-process Locker keyed by monitor id.
type Local struct {
	mu     sync.Mutex
	leases map[string]localEntry
	Now    func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{leases: make(map[string]localEntry), Now: time.Now}
}

func (l *Local) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	l.leases[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{l: l, key: key, token: token}, nil
}

type localLease struct {
	l     *Local
	key   string
	token string
}

func (ll *localLease) Release(context.Context) error {
	ll.l.mu.Lock()
	defer ll.l.mu.Unlock()
	if cur, ok := ll.l.leases[ll.key]; ok && cur.token == ll.token {
		delete(ll.l.leases, ll.key)
	}
	return nil
}
