package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/engine"
	apimw "github.com/cursoraidev1-web/SentryPulse-sub001/internal/httpapi/middleware"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/metrics"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/queue"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
)

const defaultHistoryLimit = 50

// Runner is the part of the check engine the API triggers.
type Runner interface {
	RunAll(ctx context.Context) (map[domain.MonitorID]engine.Outcome, error)
	CheckMonitorByID(ctx context.Context, id domain.MonitorID) engine.Outcome
}

// Monitors is what the API needs from the monitor store.
type Monitors interface {
	repo.MonitorRegistry
	FindByID(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
}

type Server struct {
	Logger    *zap.Logger
	Monitors  Monitors
	Checks    repo.CheckStore
	Incidents repo.IncidentStore
	Runner    Runner

	// Optional.
	Queue    queue.Queue
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func NewServer(l *zap.Logger, ms Monitors, cs repo.CheckStore, is repo.IncidentStore, r Runner) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Monitors: ms, Checks: cs, Incidents: is, Runner: r}
}

// Router wires the public (read) and admin (write/trigger) routes. Rate limits
// are requests per minute per client IP.
func (s *Server) Router(keys apimw.Keys, origins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/api/monitors", s.handleListMonitors)
		r.Get("/api/monitors/{id}", s.handleGetMonitor)
		r.Get("/api/monitors/{id}/checks", s.handleListChecks)
		r.Get("/api/incidents", s.handleListIncidents)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Post("/api/monitors", s.handleAddMonitor)
		r.Post("/api/monitors/{id}/check", s.handleCheckMonitor)
		r.Post("/api/checks/run", s.handleRunAll)
		r.Get("/api/queue/dead", s.handleDeadLetters)
	})

	return r
}

// observe records request count and latency by route pattern, so path
// parameters do not explode label cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.Metrics.ObserveRequest(r.Method, route, status, time.Since(start))
	})
}

type monitorPayload struct {
	TeamID             string            `json:"team_id"`
	Name               string            `json:"name"`
	URL                string            `json:"url"`
	Kind               domain.ProbeKind  `json:"kind"`
	Method             string            `json:"method"`
	IntervalSec        int               `json:"interval_sec"`
	TimeoutSec         int               `json:"timeout_sec"`
	Enabled            *bool             `json:"enabled"`
	CheckSSL           bool              `json:"check_ssl"`
	Keyword            string            `json:"keyword"`
	ExpectedStatusCode int               `json:"expected_status_code"`
	Headers            map[string]string `json:"headers"`
	Body               string            `json:"body"`
	Severity           domain.Severity   `json:"severity"`
}

func (p monitorPayload) monitor() domain.Monitor {
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	m := domain.Monitor{
		TeamID:             p.TeamID,
		Name:               p.Name,
		URL:                strings.TrimSpace(p.URL),
		Kind:               p.Kind,
		Method:             p.Method,
		IntervalSec:        p.IntervalSec,
		TimeoutSec:         p.TimeoutSec,
		Enabled:            enabled,
		CheckSSL:           p.CheckSSL,
		Keyword:            p.Keyword,
		ExpectedStatusCode: p.ExpectedStatusCode,
		Headers:            p.Headers,
		Body:               p.Body,
		Severity:           p.Severity,
	}.WithDefaults()
	if (m.Kind == domain.KindHTTP || m.Kind == domain.KindHTTPS) && isValidHTTPURL(m.URL) {
		m.URL = normalizeHTTPURL(m.URL)
	}
	if m.Name == "" {
		m.Name = m.URL
	}
	return m
}

func (s *Server) handleAddMonitor(w http.ResponseWriter, r *http.Request) {
	var p monitorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	m := p.monitor()
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.Monitors.List(r.Context())
	if err != nil {
		s.Logger.Error("api_list_monitors_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	for _, e := range existing {
		if e.TeamID == m.TeamID && e.URL == m.URL && e.Kind == m.Kind {
			writeError(w, http.StatusConflict, "monitor already exists")
			return
		}
	}

	if err := s.Monitors.Add(r.Context(), &m); err != nil {
		s.Logger.Error("api_add_monitor_error", zap.String("url", m.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	// Run a single check synchronously for immediate feedback.
	var out *engine.Outcome
	if m.Enabled && s.Runner != nil {
		o := s.Runner.CheckMonitorByID(r.Context(), m.ID)
		out = &o
	}

	s.Logger.Info("added_monitor",
		zap.String("monitor_id", string(m.ID)),
		zap.String("url", m.URL),
		zap.String("kind", string(m.Kind)),
	)
	writeJSON(w, http.StatusCreated, map[string]any{"monitor": m, "outcome": out})
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Monitors.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.Monitors.FindByID(r.Context(), domain.MonitorID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup error")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}
	cs, err := s.Checks.ListByMonitor(r.Context(), domain.MonitorID(chi.URLParam(r, "id")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	if cs == nil {
		cs = []domain.Check{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	is, err := s.Incidents.ListOpen(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "incident error")
		return
	}
	if is == nil {
		is = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, is)
}

func (s *Server) handleCheckMonitor(w http.ResponseWriter, r *http.Request) {
	out := s.Runner.CheckMonitorByID(r.Context(), domain.MonitorID(chi.URLParam(r, "id")))
	status := http.StatusOK
	switch {
	case out.Status == engine.StatusSkipped && out.Reason == engine.ReasonNotFound:
		status = http.StatusNotFound
	case out.Status == engine.StatusSkipped && out.Reason == engine.ReasonInProgress:
		status = http.StatusConflict
	case out.Status == engine.StatusInvalid:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

type runSummary struct {
	Total    int                                 `json:"total"`
	Checked  int                                 `json:"checked"`
	Up       int                                 `json:"up"`
	Down     int                                 `json:"down"`
	Failed   int                                 `json:"failed"`
	Skipped  int                                 `json:"skipped"`
	Invalid  int                                 `json:"invalid"`
	Outcomes map[domain.MonitorID]engine.Outcome `json:"outcomes"`
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	outs, err := s.Runner.RunAll(r.Context())
	if err != nil {
		s.Logger.Error("api_run_all_error", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not list monitors")
		return
	}
	sum := runSummary{Total: len(outs), Outcomes: outs}
	for _, o := range outs {
		switch o.Status {
		case engine.StatusChecked:
			sum.Checked++
			if o.Verdict == domain.VerdictUp {
				sum.Up++
			} else {
				sum.Down++
			}
		case engine.StatusFailed:
			sum.Failed++
		case engine.StatusSkipped:
			sum.Skipped++
		case engine.StatusInvalid:
			sum.Invalid++
		}
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		writeError(w, http.StatusNotFound, "queue not enabled")
		return
	}
	jobs, err := s.Queue.DeadLetters(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue error")
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && u.Hostname() != ""
}

// normalizeHTTPURL lowercases scheme and host, drops default ports and a bare
// trailing slash so the same endpoint is not registered twice.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	u.Host = host
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
