package domain

import "time"

type MonitorID string

type ProbeKind string

const (
	KindHTTP  ProbeKind = "http"
	KindHTTPS ProbeKind = "https"
	KindPing  ProbeKind = "ping"
	KindDNS   ProbeKind = "dns"
)

// Verdict is the binary health judgment derived from one check.
type Verdict string

const (
	VerdictUp   Verdict = "up"
	VerdictDown Verdict = "down"
)

// MonitorStatus is the last known state shown for a monitor.
type MonitorStatus string

const (
	StatusPending MonitorStatus = "pending"
	StatusUp      MonitorStatus = "up"
	StatusDown    MonitorStatus = "down"
	StatusInvalid MonitorStatus = "invalid"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

type Monitor struct {
	ID                 MonitorID         `json:"id"`
	TeamID             string            `json:"team_id"`
	Name               string            `json:"name"`
	URL                string            `json:"url"`
	Kind               ProbeKind         `json:"kind"`
	Method             string            `json:"method"`
	IntervalSec        int               `json:"interval_sec"`
	TimeoutSec         int               `json:"timeout_sec"`
	Enabled            bool              `json:"enabled"`
	CheckSSL           bool              `json:"check_ssl"`
	Keyword            string            `json:"keyword,omitempty"`
	ExpectedStatusCode int               `json:"expected_status_code"`
	Headers            map[string]string `json:"headers,omitempty"`
	Body               string            `json:"body,omitempty"`
	Severity           Severity          `json:"severity,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`

	// Runtime fields, written only by the check engine.
	LastCheckedAt  *time.Time    `json:"last_checked_at"`
	LastVerdict    Verdict       `json:"last_verdict,omitempty"`
	LastResponseMS int64         `json:"last_response_ms"`
	UptimePercent  float64       `json:"uptime_percent"`
	Status         MonitorStatus `json:"status"`
}

func (m Monitor) Interval() time.Duration { return time.Duration(m.IntervalSec) * time.Second }
func (m Monitor) Timeout() time.Duration  { return time.Duration(m.TimeoutSec) * time.Second }

// ExpectedStatus returns the configured status code, 200 when unset.
func (m Monitor) ExpectedStatus() int {
	if m.ExpectedStatusCode == 0 {
		return 200
	}
	return m.ExpectedStatusCode
}

// IncidentSeverity returns the monitor severity or major.
func (m Monitor) IncidentSeverity() Severity {
	if m.Severity == "" {
		return SeverityMajor
	}
	return m.Severity
}

// RuntimeFields is the set of Monitor fields updated after every check.
type RuntimeFields struct {
	LastCheckedAt  time.Time
	LastVerdict    Verdict
	LastResponseMS int64
	UptimePercent  float64
	Status         MonitorStatus
}

type CheckOutcome string

const (
	OutcomeSuccess CheckOutcome = "success"
	OutcomeFailure CheckOutcome = "failure"
	// OutcomeSkipped marks a check that could not run because of
	// infrastructure trouble. It carries no verdict.
	OutcomeSkipped CheckOutcome = "skipped"
)

// Check is one immutable history entry.
type Check struct {
	ID             string       `json:"id"`
	MonitorID      MonitorID    `json:"monitor_id"`
	CheckedAt      time.Time    `json:"checked_at"`
	Outcome        CheckOutcome `json:"outcome"`
	StatusCode     int          `json:"status_code,omitempty"`
	ResponseTimeMS int64        `json:"response_time_ms"`
	Error          string       `json:"error,omitempty"`
	SSLValid       *bool        `json:"ssl_valid,omitempty"`
	SSLExpiresAt   *time.Time   `json:"ssl_expires_at,omitempty"`
	KeywordFound   *bool        `json:"keyword_found,omitempty"`
	Verdict        Verdict      `json:"verdict,omitempty"`
}

type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

// Incident is a contiguous down period for one monitor.
type Incident struct {
	ID          string         `json:"id"`
	MonitorID   MonitorID      `json:"monitor_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      IncidentStatus `json:"status"`
	Severity    Severity       `json:"severity"`
	StartedAt   time.Time      `json:"started_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (i Incident) Open() bool { return i.Status != IncidentResolved }
