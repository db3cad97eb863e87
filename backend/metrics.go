package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "glucoscope"

// Outcome labels for feed entries.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Metrics holds the Prometheus collectors shared by the client, the feeds and
// the chart. A nil *Metrics is valid and records nothing.
type Metrics struct {
	feedEntries       *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	feedConnected     prometheus.Gauge
	requestDuration   *prometheus.HistogramVec
	chartRedraws      *prometheus.CounterVec
}

// NewMetrics constructs an unregistered set of collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		feedEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "feed_entries_total",
				Help:      "Live entries received from the push feed, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		reconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "feed_reconnect_attempts_total",
				Help:      "Reconnect attempts made by the push feed.",
			},
		),
		feedConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "feed_connected",
				Help:      "Whether the push feed currently holds a connection (1) or not (0).",
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "api_request_seconds",
				Help:      "API request latency in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint", "code"},
		),
		chartRedraws: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chart_redraws_total",
				Help:      "Chart redraws, partitioned by scope.",
			},
			[]string{"scope"},
		),
	}
}

// Register attaches the collectors to the supplied registerer. Collectors
// that are already registered are skipped.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.feedEntries,
		m.reconnectAttempts,
		m.feedConnected,
		m.requestDuration,
		m.chartRedraws,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEntry counts a live entry by outcome.
func (m *Metrics) ObserveEntry(accepted bool) {
	if m == nil {
		return
	}
	label := OutcomeRejected
	if accepted {
		label = OutcomeAccepted
	}
	m.feedEntries.WithLabelValues(label).Inc()
}

// ObserveReconnect counts one reconnect attempt.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// SetConnected records the connection state of the push feed.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.feedConnected.Set(1)
	} else {
		m.feedConnected.Set(0)
	}
}

// ObserveRequest records the latency of one API request.
func (m *Metrics) ObserveRequest(endpoint, code string, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.requestDuration.WithLabelValues(endpoint, code).Observe(duration.Seconds())
}

// ObserveRedraw counts one chart redraw for the given scope.
func (m *Metrics) ObserveRedraw(scope string) {
	if m == nil {
		return
	}
	m.chartRedraws.WithLabelValues(scope).Inc()
}
