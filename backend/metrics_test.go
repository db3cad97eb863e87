package backend

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := m.Register(reg); err != nil {
		t.Fatalf("second register should be tolerated, got: %v", err)
	}
}

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics()
	m.ObserveEntry(true)
	m.ObserveEntry(true)
	m.ObserveEntry(false)
	m.ObserveReconnect()
	m.SetConnected(true)
	m.ObserveRequest("entries", "200", 40*time.Millisecond)
	m.ObserveRedraw("focus")

	if got := testutil.ToFloat64(m.feedEntries.WithLabelValues(OutcomeAccepted)); got != 2 {
		t.Errorf("expected 2 accepted entries, got %v", got)
	}
	if got := testutil.ToFloat64(m.feedEntries.WithLabelValues(OutcomeRejected)); got != 1 {
		t.Errorf("expected 1 rejected entry, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconnectAttempts); got != 1 {
		t.Errorf("expected 1 reconnect, got %v", got)
	}
	if got := testutil.ToFloat64(m.feedConnected); got != 1 {
		t.Errorf("expected connected gauge 1, got %v", got)
	}
	if got := testutil.CollectAndCount(m.requestDuration); got != 1 {
		t.Errorf("expected one request series, got %d", got)
	}
	if got := testutil.ToFloat64(m.chartRedraws.WithLabelValues("focus")); got != 1 {
		t.Errorf("expected one focus redraw, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveEntry(true)
	m.ObserveReconnect()
	m.SetConnected(false)
	m.ObserveRequest("status", "500", time.Second)
	m.ObserveRedraw("full")
}
