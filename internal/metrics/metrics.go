// Package metrics holds the Prometheus collectors for the check engine, the
// queue workers and the HTTP API.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	probeBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	httpBuckets  = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	checksTotal     *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
	incidentsTotal  *prometheus.CounterVec
	passesTotal     *prometheus.CounterVec
	passDuration    prometheus.Histogram
	inFlight        prometheus.Gauge
	jobsTotal       *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A collector that is already
// registered is reused, so building twice against the default registry works.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentrypulse",
			Subsystem: "engine",
			Name:      "checks_total",
			Help:      "Checks by outcome status and verdict",
		}, []string{"status", "verdict"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sentrypulse",
			Subsystem: "engine",
			Name:      "probe_duration_seconds",
			Help:      "Probe response time by kind",
			Buckets:   probeBuckets,
		}, []string{"kind"}),
		incidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentrypulse",
			Subsystem: "engine",
			Name:      "incident_transitions_total",
			Help:      "Incidents opened and resolved",
		}, []string{"action"}),
		passesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentrypulse",
			Subsystem: "engine",
			Name:      "passes_total",
			Help:      "Coordinator passes by result",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentrypulse",
			Subsystem: "engine",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one coordinator pass",
			Buckets:   probeBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentrypulse",
			Subsystem: "engine",
			Name:      "checks_in_flight",
			Help:      "Probes currently holding a worker slot",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentrypulse",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Queue jobs by terminal state",
		}, []string{"state"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentrypulse",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sentrypulse",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   httpBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.checksTotal = register(reg, m.checksTotal)
	m.probeDuration = register(reg, m.probeDuration)
	m.incidentsTotal = register(reg, m.incidentsTotal)
	m.passesTotal = register(reg, m.passesTotal)
	m.passDuration = register(reg, m.passDuration)
	m.inFlight = register(reg, m.inFlight)
	m.jobsTotal = register(reg, m.jobsTotal)
	m.requestTotal = register(reg, m.requestTotal)
	m.requestDuration = register(reg, m.requestDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) ObserveCheck(status, verdict, kind string, responseMS int64) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(status, verdict).Inc()
	if kind != "" && responseMS > 0 {
		m.probeDuration.WithLabelValues(kind).Observe(float64(responseMS) / 1000)
	}
}

func (m *Metrics) ObserveIncident(action string) {
	if m == nil {
		return
	}
	m.incidentsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) ObservePass(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.passesTotal.WithLabelValues(result).Inc()
	m.passDuration.Observe(d.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) ObserveJob(state string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(d.Seconds())
}
