package domain

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// MinIntervalSec bounds how often any monitor may be probed.
const MinIntervalSec = 10

var ErrInvalidMonitor = errors.New("invalid monitor configuration")

// WithDefaults fills the optional fields a team admin may leave empty.
func (m Monitor) WithDefaults() Monitor {
	if m.Kind == "" {
		m.Kind = KindHTTP
		if strings.HasPrefix(strings.ToLower(m.URL), "https://") {
			m.Kind = KindHTTPS
		}
	}
	if m.Method == "" {
		m.Method = http.MethodGet
	}
	m.Method = strings.ToUpper(m.Method)
	if m.Status == "" {
		m.Status = StatusPending
	}
	return m
}

// Validate reports configuration problems that make the monitor uncheckable.
func (m Monitor) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidMonitor, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(m.URL) == "" {
		return invalid("url is empty")
	}
	switch m.Kind {
	case KindHTTP, KindHTTPS:
		u, err := url.Parse(m.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("url %q is not an http(s) url", m.URL)
		}
		switch m.Method {
		case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions:
		default:
			return invalid("unsupported method %q", m.Method)
		}
		if m.ExpectedStatusCode != 0 && (m.ExpectedStatusCode < 100 || m.ExpectedStatusCode > 599) {
			return invalid("expected status code %d out of range", m.ExpectedStatusCode)
		}
	case KindPing, KindDNS:
	default:
		return invalid("unknown probe kind %q", m.Kind)
	}

	if m.IntervalSec < MinIntervalSec {
		return invalid("interval %ds below minimum %ds", m.IntervalSec, MinIntervalSec)
	}
	if m.TimeoutSec <= 0 {
		return invalid("timeout must be > 0")
	}
	if m.TimeoutSec >= m.IntervalSec {
		return invalid("timeout %ds must be shorter than interval %ds", m.TimeoutSec, m.IntervalSec)
	}
	switch m.Severity {
	case "", SeverityCritical, SeverityMajor, SeverityMinor:
	default:
		return invalid("unknown severity %q", m.Severity)
	}
	return nil
}

// MethodAllowsBody reports whether a request body is sent for method.
func MethodAllowsBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
