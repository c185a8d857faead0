package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
)

// Store keeps monitors, checks and incidents in process memory. It serves
// local development, the monitor file mode and tests.
type Store struct {
	mu        sync.RWMutex
	monitors  map[domain.MonitorID]*domain.Monitor
	checks    []*domain.Check
	incidents map[string]*domain.Incident
}

func New() *Store {
	return &Store{
		monitors:  make(map[domain.MonitorID]*domain.Monitor),
		checks:    make([]*domain.Check, 0, 128),
		incidents: make(map[string]*domain.Incident),
	}
}

// ---- MonitorRegistry ----

func (m *Store) Add(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mon.ID == "" {
		mon.ID = domain.MonitorID(uuid.NewString())
	}
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = time.Now().UTC()
	}
	cp := *mon
	m.monitors[mon.ID] = &cp
	return nil
}

func (m *Store) List(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(func(*domain.Monitor) bool { return true }), nil
}

// ---- MonitorStore ----

func (m *Store) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(func(mon *domain.Monitor) bool { return mon.Enabled }), nil
}

func (m *Store) FindByID(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, nil
	}
	cp := *mon
	return &cp, nil
}

func (m *Store) UpdateRuntime(ctx context.Context, id domain.MonitorID, f domain.RuntimeFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	at := f.LastCheckedAt
	mon.LastCheckedAt = &at
	mon.LastVerdict = f.LastVerdict
	mon.LastResponseMS = f.LastResponseMS
	mon.UptimePercent = f.UptimePercent
	mon.Status = f.Status
	return nil
}

func (m *Store) snapshot(keep func(*domain.Monitor) bool) []domain.Monitor {
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if keep(mon) {
			out = append(out, *mon)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ---- CheckStore ----

func (m *Store) Append(ctx context.Context, c *domain.Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.checks = append(m.checks, &cp)
	return nil
}

func (m *Store) Uptime(ctx context.Context, id domain.MonitorID, since time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var up, total int
	for _, c := range m.checks {
		if c.MonitorID != id || c.CheckedAt.Before(since) || c.Outcome == domain.OutcomeSkipped {
			continue
		}
		total++
		if c.Verdict == domain.VerdictUp {
			up++
		}
	}
	return repo.UptimePercent(up, total), nil
}

// ListByMonitor returns newest first.
func (m *Store) ListByMonitor(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Check, 0)
	for i := len(m.checks) - 1; i >= 0; i-- {
		if m.checks[i].MonitorID != id {
			continue
		}
		out = append(out, *m.checks[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ---- IncidentStore ----

func (m *Store) FindOpenForMonitor(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inc := range m.incidents {
		if inc.MonitorID == id && inc.Open() {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) Create(ctx context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.incidents {
		if cur.MonitorID == inc.MonitorID && cur.Open() {
			return repo.ErrIncidentOpen
		}
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	cp := *inc
	m.incidents[inc.ID] = &cp
	return nil
}

func (m *Store) Resolve(ctx context.Context, incidentID string, resolvedAt time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[incidentID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if inc.Open() {
		at := resolvedAt
		inc.Status = domain.IncidentResolved
		inc.ResolvedAt = &at
		inc.Duration = resolvedAt.Sub(inc.StartedAt)
		if inc.Duration < 0 {
			inc.Duration = 0
		}
	}
	cp := *inc
	return &cp, nil
}

func (m *Store) ListOpen(ctx context.Context) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if inc.Open() {
			out = append(out, *inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Incidents returns every incident for a monitor, oldest first.
func (m *Store) Incidents(id domain.MonitorID) []domain.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if inc.MonitorID == id {
			out = append(out, *inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
