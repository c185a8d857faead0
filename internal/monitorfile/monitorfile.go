// Package monitorfile reads monitor definitions from an HCL file.
//
//	monitor "core-api" {
//	  team     = "core"
//	  name     = "Core API"
//	  url      = "https://api.example.com/health"
//	  interval = 60
//	  timeout  = 10
//	  keyword  = "ok"
//	  headers  = { "X-Probe" = "1" }
//	}
package monitorfile

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
)

type File struct {
	Monitors []Monitor `hcl:"monitor,block"`
}

type Monitor struct {
	ID             string            `hcl:"id,label"`
	Team           string            `hcl:"team,optional"`
	Name           string            `hcl:"name,optional"`
	URL            string            `hcl:"url"`
	Kind           string            `hcl:"kind,optional"`
	Method         string            `hcl:"method,optional"`
	IntervalSec    int               `hcl:"interval"`
	TimeoutSec     int               `hcl:"timeout"`
	Enabled        *bool             `hcl:"enabled,optional"`
	CheckSSL       bool              `hcl:"check_ssl,optional"`
	Keyword        string            `hcl:"keyword,optional"`
	ExpectedStatus int               `hcl:"expected_status,optional"`
	Headers        map[string]string `hcl:"headers,optional"`
	Body           string            `hcl:"body,optional"`
	Severity       string            `hcl:"severity,optional"`
}

// Parse decodes src and validates every monitor. path is only used for
// diagnostics and to pick the syntax by extension.
func Parse(path string, src []byte) (*File, error) {
	var f File
	if err := hclsimple.Decode(path, src, nil, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Monitors))
	for _, m := range f.Monitors {
		if len(m.ID) == 0 {
			return nil, fmt.Errorf("monitor cannot have empty id")
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate monitor id %q", m.ID)
		}
		seen[m.ID] = true
		if err := m.toDomain().Validate(); err != nil {
			return nil, fmt.Errorf("monitor %q: %w", m.ID, err)
		}
	}
	return &f, nil
}

// Domain returns the monitors with defaults applied.
func (f *File) Domain() []domain.Monitor {
	out := make([]domain.Monitor, 0, len(f.Monitors))
	for _, m := range f.Monitors {
		out = append(out, m.toDomain())
	}
	return out
}

func (m Monitor) toDomain() domain.Monitor {
	enabled := true
	if m.Enabled != nil {
		enabled = *m.Enabled
	}
	return domain.Monitor{
		ID:                 domain.MonitorID(m.ID),
		TeamID:             m.Team,
		Name:               m.Name,
		URL:                m.URL,
		Kind:               domain.ProbeKind(m.Kind),
		Method:             m.Method,
		IntervalSec:        m.IntervalSec,
		TimeoutSec:         m.TimeoutSec,
		Enabled:            enabled,
		CheckSSL:           m.CheckSSL,
		Keyword:            m.Keyword,
		ExpectedStatusCode: m.ExpectedStatus,
		Headers:            m.Headers,
		Body:               m.Body,
		Severity:           domain.Severity(m.Severity),
	}.WithDefaults()
}

// Load reads path and registers every monitor. It returns how many were added.
func Load(ctx context.Context, path string, reg repo.MonitorRegistry) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read monitors file: %w", err)
	}
	f, err := Parse(path, src)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range f.Domain() {
		m := m
		if err := reg.Add(ctx, &m); err != nil {
			return n, fmt.Errorf("add monitor %s: %w", m.ID, err)
		}
		n++
	}
	return n, nil
}
