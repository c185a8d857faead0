// Package incident opens and resolves incidents from check verdicts.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
)

type Action string

const (
	ActionNone    Action = "none"
	ActionOpen    Action = "opened"
	ActionResolve Action = "resolved"
)

// Decide maps the current open incident (nil when none) and a new verdict to
// the action to take. Repeated identical verdicts always yield ActionNone.
func Decide(open *domain.Incident, v domain.Verdict) Action {
	hasOpen := open != nil && open.Open()
	switch {
	case !hasOpen && v == domain.VerdictDown:
		return ActionOpen
	case hasOpen && v == domain.VerdictUp:
		return ActionResolve
	default:
		return ActionNone
	}
}

// Dispatcher delivers incident notifications. Delivery failures are logged,
// never retried here.
type Dispatcher interface {
	SendAlert(ctx context.Context, inc domain.Incident) error
	SendResolved(ctx context.Context, inc domain.Incident) error
}

// Transition is what Apply did for one verdict.
type Transition struct {
	Action   Action           `json:"action"`
	Incident *domain.Incident `json:"incident,omitempty"`
}

type Machine struct {
	store         repo.IncidentStore
	dispatcher    Dispatcher
	log           *zap.Logger
	NotifyTimeout time.Duration
}

func NewMachine(store repo.IncidentStore, dispatcher Dispatcher, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		store:         store,
		dispatcher:    dispatcher,
		log:           log,
		NotifyTimeout: 10 * time.Second,
	}
}

// Apply drives the machine once for an executed check. Callers must hold the
// monitor's check lock so that reads and writes here are not interleaved with
// another check of the same monitor.
func (m *Machine) Apply(ctx context.Context, mon domain.Monitor, v domain.Verdict, reason string, at time.Time) (Transition, error) {
	open, err := m.store.FindOpenForMonitor(ctx, mon.ID)
	if err != nil {
		return Transition{Action: ActionNone}, fmt.Errorf("find open incident: %w", err)
	}

	switch Decide(open, v) {
	case ActionOpen:
		inc := &domain.Incident{
			ID:          uuid.NewString(),
			MonitorID:   mon.ID,
			Title:       title(mon),
			Description: reason,
			Status:      domain.IncidentInvestigating,
			Severity:    mon.IncidentSeverity(),
			StartedAt:   at,
		}
		if err := m.store.Create(ctx, inc); err != nil {
			if errors.Is(err, repo.ErrIncidentOpen) {
				// Another writer opened it first; it already alerted.
				return Transition{Action: ActionNone}, nil
			}
			return Transition{Action: ActionNone}, fmt.Errorf("create incident: %w", err)
		}
		m.log.Info("incident_opened",
			zap.String("monitor_id", string(mon.ID)),
			zap.String("incident_id", inc.ID),
			zap.String("severity", string(inc.Severity)),
			zap.String("reason", reason),
		)
		m.notify(ctx, *inc, false)
		return Transition{Action: ActionOpen, Incident: inc}, nil

	case ActionResolve:
		inc, err := m.store.Resolve(ctx, open.ID, at)
		if err != nil {
			return Transition{Action: ActionNone}, fmt.Errorf("resolve incident %s: %w", open.ID, err)
		}
		m.log.Info("incident_resolved",
			zap.String("monitor_id", string(mon.ID)),
			zap.String("incident_id", inc.ID),
			zap.Duration("duration", inc.Duration),
		)
		m.notify(ctx, *inc, true)
		return Transition{Action: ActionResolve, Incident: inc}, nil
	}

	return Transition{Action: ActionNone, Incident: open}, nil
}

// notify is fire-and-forget: a failed delivery is logged and dropped.
func (m *Machine) notify(ctx context.Context, inc domain.Incident, resolved bool) {
	if m.dispatcher == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.NotifyTimeout)
	defer cancel()

	var err error
	if resolved {
		err = m.dispatcher.SendResolved(nctx, inc)
	} else {
		err = m.dispatcher.SendAlert(nctx, inc)
	}
	if err != nil {
		m.log.Warn("incident_notify_error",
			zap.String("incident_id", inc.ID),
			zap.String("monitor_id", string(inc.MonitorID)),
			zap.Bool("resolved", resolved),
			zap.Error(err),
		)
	}
}

func title(mon domain.Monitor) string {
	name := mon.Name
	if name == "" {
		name = mon.URL
	}
	return name + " is down"
}
