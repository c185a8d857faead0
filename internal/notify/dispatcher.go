package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// Dispatcher turns incident transitions into notifier messages.
type Dispatcher struct {
	Notifier Notifier
}

func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{Notifier: n}
}

func (d *Dispatcher) SendAlert(ctx context.Context, inc domain.Incident) error {
	title, text := AlertMessage(inc)
	return d.send(ctx, title, text)
}

func (d *Dispatcher) SendResolved(ctx context.Context, inc domain.Incident) error {
	title, text := ResolvedMessage(inc)
	return d.send(ctx, title, text)
}

func (d *Dispatcher) send(ctx context.Context, title, text string) error {
	if d == nil || d.Notifier == nil {
		return nil
	}
	return d.Notifier.Send(ctx, title, text)
}

func AlertMessage(inc domain.Incident) (string, string) {
	title := "🔴 " + inc.Title
	text := fmt.Sprintf(
		"Monitor: %s\nSeverity: %s\nReason: %s\nStarted: %s",
		inc.MonitorID, inc.Severity, orNA(inc.Description), inc.StartedAt.UTC().Format(time.RFC3339),
	)
	return title, text
}

func ResolvedMessage(inc domain.Incident) (string, string) {
	title := "🟢 Resolved: " + inc.Title
	resolved := "n/a"
	if inc.ResolvedAt != nil {
		resolved = inc.ResolvedAt.UTC().Format(time.RFC3339)
	}
	text := fmt.Sprintf(
		"Monitor: %s\nDowntime: %s\nStarted: %s\nResolved: %s",
		inc.MonitorID, inc.Duration.Round(time.Second), inc.StartedAt.UTC().Format(time.RFC3339), resolved,
	)
	return title, text
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
