package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "onlinetracker"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChecksDispatched  prometheus.Counter
	ChecksSkipped     prometheus.Counter
	CheckResults      *prometheus.CounterVec
	CheckDuration     *prometheus.HistogramVec
	AlertsEmitted     *prometheus.CounterVec
	AgentAuthFailures prometheus.Counter
	AgentsOnline      prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_dispatched_total",
			Help:      "Checks admitted by the executor.",
		}),
		ChecksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_skipped_total",
			Help:      "Due checks skipped because the executor was at its concurrency cap.",
		}),
		CheckResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_results_total",
			Help:      "Check results by monitor type and severity.",
		}, []string{"type", "severity"}),
		CheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Wall time of a single check.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Alert events handed to the notification sink.",
		}, []string{"kind"}),
		AgentAuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_auth_failures_total",
			Help:      "Rejected agent channel requests.",
		}),
		AgentsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_online",
			Help:      "Approved agents seen within the agent timeout.",
		}),
	}

	reg.MustRegister(
		m.ChecksDispatched,
		m.ChecksSkipped,
		m.CheckResults,
		m.CheckDuration,
		m.AlertsEmitted,
		m.AgentAuthFailures,
		m.AgentsOnline,
	)
	return m
}

func (m *Metrics) Dispatched() {
	if m != nil {
		m.ChecksDispatched.Inc()
	}
}

func (m *Metrics) Skipped() {
	if m != nil {
		m.ChecksSkipped.Inc()
	}
}

func (m *Metrics) ObserveResult(monitorType, severity string, seconds float64) {
	if m == nil {
		return
	}
	m.CheckResults.WithLabelValues(monitorType, severity).Inc()
	if seconds >= 0 {
		m.CheckDuration.WithLabelValues(monitorType).Observe(seconds)
	}
}

func (m *Metrics) AlertEmitted(kind string) {
	if m != nil {
		m.AlertsEmitted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) AuthFailure() {
	if m != nil {
		m.AgentAuthFailures.Inc()
	}
}

func (m *Metrics) SetAgentsOnline(n int) {
	if m != nil {
		m.AgentsOnline.Set(float64(n))
	}
}
