package incident

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/memory"
)

type memDispatcher struct {
	mu       sync.Mutex
	alerts   []domain.Incident
	resolved []domain.Incident
	err      error
}

func (d *memDispatcher) SendAlert(_ context.Context, inc domain.Incident) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, inc)
	return d.err
}

func (d *memDispatcher) SendResolved(_ context.Context, inc domain.Incident) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolved = append(d.resolved, inc)
	return d.err
}

func TestDecide(t *testing.T) {
	open := &domain.Incident{Status: domain.IncidentInvestigating}
	resolved := &domain.Incident{Status: domain.IncidentResolved}
	cases := []struct {
		open *domain.Incident
		v    domain.Verdict
		want Action
	}{
		{nil, domain.VerdictDown, ActionOpen},
		{nil, domain.VerdictUp, ActionNone},
		{resolved, domain.VerdictDown, ActionOpen},
		{resolved, domain.VerdictUp, ActionNone},
		{open, domain.VerdictDown, ActionNone},
		{open, domain.VerdictUp, ActionResolve},
	}
	for i, c := range cases {
		if got := Decide(c.open, c.v); got != c.want {
			t.Fatalf("case %d: got %s want %s", i, got, c.want)
		}
	}
}

func TestMachine_RepeatedDownOpensOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	d := &memDispatcher{}
	m := NewMachine(store, d, nil)
	mon := domain.Monitor{ID: "M1", Name: "API"}
	at := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	tr, err := m.Apply(ctx, mon, domain.VerdictDown, "status code mismatch", at)
	if err != nil || tr.Action != ActionOpen {
		t.Fatalf("first down: %+v %v", tr, err)
	}
	if tr.Incident.Status != domain.IncidentInvestigating || tr.Incident.Severity != domain.SeverityMajor || tr.Incident.Title != "API is down" {
		t.Fatalf("unexpected incident: %+v", tr.Incident)
	}

	tr, err = m.Apply(ctx, mon, domain.VerdictDown, "status code mismatch", at.Add(time.Minute))
	if err != nil || tr.Action != ActionNone {
		t.Fatalf("second down: %+v %v", tr, err)
	}

	if n := len(store.Incidents("M1")); n != 1 {
		t.Fatalf("want exactly one incident, got %d", n)
	}
	if len(d.alerts) != 1 {
		t.Fatalf("want one alert, got %d", len(d.alerts))
	}
}

func TestMachine_UpResolvesWithDuration(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	d := &memDispatcher{}
	m := NewMachine(store, d, nil)
	mon := domain.Monitor{ID: "M1", URL: "https://example.com", Severity: domain.SeverityCritical}
	start := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	if _, err := m.Apply(ctx, mon, domain.VerdictDown, "transport error", start); err != nil {
		t.Fatal(err)
	}
	tr, err := m.Apply(ctx, mon, domain.VerdictUp, "200 ok", start.Add(5*time.Minute))
	if err != nil || tr.Action != ActionResolve {
		t.Fatalf("up: %+v %v", tr, err)
	}
	if tr.Incident.Duration != 5*time.Minute || tr.Incident.ResolvedAt == nil {
		t.Fatalf("unexpected resolution: %+v", tr.Incident)
	}

	// A second up is a no-op.
	tr, _ = m.Apply(ctx, mon, domain.VerdictUp, "200 ok", start.Add(6*time.Minute))
	if tr.Action != ActionNone {
		t.Fatalf("repeated up should be no-op, got %s", tr.Action)
	}

	incs := store.Incidents("M1")
	if len(incs) != 1 || incs[0].Status != domain.IncidentResolved || incs[0].Severity != domain.SeverityCritical {
		t.Fatalf("want one resolved critical incident, got %+v", incs)
	}
	if len(d.resolved) != 1 {
		t.Fatalf("want one resolved notification, got %d", len(d.resolved))
	}
}

func TestMachine_NotifyErrorIsNotFatal(t *testing.T) {
	d := &memDispatcher{err: errors.New("smtp down")}
	m := NewMachine(memory.New(), d, nil)
	tr, err := m.Apply(context.Background(), domain.Monitor{ID: "M1"}, domain.VerdictDown, "x", time.Now())
	if err != nil || tr.Action != ActionOpen {
		t.Fatalf("notification failure must not fail apply: %+v %v", tr, err)
	}
}

func TestMachine_NilDispatcher(t *testing.T) {
	m := NewMachine(memory.New(), nil, nil)
	if _, err := m.Apply(context.Background(), domain.Monitor{ID: "M1"}, domain.VerdictDown, "x", time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
