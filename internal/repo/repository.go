package repo

import (
	"context"
	"errors"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Ports: any DB adapter that satisfies these can serve the engine.

// MonitorStore is owned by the CRUD side; the engine only reads monitors and
// writes their runtime fields.
type MonitorStore interface {
	ListEnabled(ctx context.Context) ([]domain.Monitor, error)
	// FindByID returns nil, nil when the monitor does not exist.
	FindByID(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	UpdateRuntime(ctx context.Context, id domain.MonitorID, f domain.RuntimeFields) error
}

// MonitorRegistry adds and lists monitors regardless of enabled state. Used by
// the HTTP API and the monitor file loader.
type MonitorRegistry interface {
	Add(ctx context.Context, m *domain.Monitor) error
	List(ctx context.Context) ([]domain.Monitor, error)
}

// CheckStore is append-only history.
type CheckStore interface {
	Append(ctx context.Context, c *domain.Check) error
	// Uptime returns the percentage of up verdicts since the given time,
	// ignoring skipped checks. 100 when there is no history.
	Uptime(ctx context.Context, id domain.MonitorID, since time.Time) (float64, error)
	ListByMonitor(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Check, error)
}

type IncidentStore interface {
	// FindOpenForMonitor returns nil, nil when no incident is open.
	FindOpenForMonitor(ctx context.Context, id domain.MonitorID) (*domain.Incident, error)
	// Create returns ErrIncidentOpen if the monitor already has an open incident.
	Create(ctx context.Context, inc *domain.Incident) error
	Resolve(ctx context.Context, incidentID string, resolvedAt time.Time) (*domain.Incident, error)
	ListOpen(ctx context.Context) ([]domain.Incident, error)
}

var ErrIncidentOpen = errors.New("monitor already has an open incident")

// UptimePercent computes the rolling uptime from verdict counts.
func UptimePercent(up, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(up) / float64(total) * 100
}
