// Package health turns a raw probe result into an up/down verdict.
package health

import (
	"fmt"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/probe"
)

// Evaluation is the verdict for one probe plus the first failing check.
type Evaluation struct {
	Verdict domain.Verdict
	Reason  string
}

// Evaluate is up only when the transport succeeded and every configured check
// passed. Reason reports the first failure in the order
// transport > status code > keyword > ssl.
func Evaluate(r probe.Result, m domain.Monitor) Evaluation {
	if !r.Reachable {
		msg := r.Error
		if msg == "" {
			msg = "unreachable"
		}
		return down("transport error: " + msg)
	}

	if isHTTP(m.Kind) {
		if want := m.ExpectedStatus(); r.StatusCode != want {
			return down(fmt.Sprintf("status code mismatch: expected %d, got %d", want, r.StatusCode))
		}
		if m.Keyword != "" && !(r.KeywordChecked && r.KeywordFound) {
			return down(fmt.Sprintf("keyword %q not found", m.Keyword))
		}
		if m.CheckSSL && r.SSLChecked && !r.SSLValid {
			if r.SSLExpiresAt.IsZero() {
				return down("ssl certificate missing or unreadable")
			}
			return down("ssl certificate invalid, expires " + r.SSLExpiresAt.UTC().Format(time.RFC3339))
		}
	}

	reason := "ok"
	if r.StatusCode != 0 {
		reason = fmt.Sprintf("%d ok", r.StatusCode)
	}
	return Evaluation{Verdict: domain.VerdictUp, Reason: reason}
}

func down(reason string) Evaluation {
	return Evaluation{Verdict: domain.VerdictDown, Reason: reason}
}

func isHTTP(k domain.ProbeKind) bool {
	return k == "" || k == domain.KindHTTP || k == domain.KindHTTPS
}
