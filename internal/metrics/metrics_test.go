package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCheck("checked", "up", "https", 120)
	m.ObserveCheck("checked", "down", "https", 80)
	m.ObserveCheck("skipped", "", "", 0)
	m.ObserveIncident("opened")
	m.ObservePass(nil, time.Second)
	m.ObservePass(errors.New("db down"), time.Second)
	m.ObserveJob("acked")

	if got := testutil.ToFloat64(m.checksTotal.WithLabelValues("checked", "up")); got != 1 {
		t.Fatalf("checked/up = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.checksTotal.WithLabelValues("skipped", "")); got != 1 {
		t.Fatalf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.incidentsTotal.WithLabelValues("opened")); got != 1 {
		t.Fatalf("opened = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.passesTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("pass errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("acked")); got != 1 {
		t.Fatalf("acked jobs = %v, want 1", got)
	}

	done := m.TrackInFlight()
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight after done = %v, want 0", got)
	}
}

func TestMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg)
	b := New(reg)
	a.ObserveIncident("resolved")
	if got := testutil.ToFloat64(b.incidentsTotal.WithLabelValues("resolved")); got != 1 {
		t.Fatalf("second instance should share collectors, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCheck("checked", "up", "http", 1)
	m.ObservePass(nil, 0)
	m.TrackInFlight()()
	m.ObserveRequest("GET", "/", 200, 0)
}
