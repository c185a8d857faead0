package probe

import (
	"context"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// Result is the unified outcome of a single probe.
//
// Fields:
//   - Reachable: the transport completed (HTTP response received, DNS resolved,
//     TCP connect succeeded). False means Error holds the transport error.
//   - StatusCode: HTTP status code when available; 0 for transport/DNS errors.
//   - SSLChecked/KeywordChecked: whether those checks applied to this monitor.
type Result struct {
	Reachable      bool      `json:"reachable"`
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code,omitempty"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	SSLChecked     bool      `json:"ssl_checked"`
	SSLValid       bool      `json:"ssl_valid"`
	SSLExpiresAt   time.Time `json:"ssl_expires_at,omitempty"`
	KeywordChecked bool      `json:"keyword_checked"`
	KeywordFound   bool      `json:"keyword_found"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Prober performs one check of a monitor. Implementations never return
// errors; every failure is described by the Result.
type Prober interface {
	Probe(ctx context.Context, m domain.Monitor) Result
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, m domain.Monitor) Result

func (f ProberFunc) Probe(ctx context.Context, m domain.Monitor) Result { return f(ctx, m) }

func millis(d time.Duration) int64 { return d.Milliseconds() }
