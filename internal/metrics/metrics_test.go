package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Dispatched()
	m.Dispatched()
	m.Skipped()
	m.ObserveResult("http", "down", 0.2)
	m.AlertEmitted("alert")
	m.AuthFailure()
	m.SetAgentsOnline(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChecksDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckResults.WithLabelValues("http", "down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsEmitted.WithLabelValues("alert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentAuthFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AgentsOnline))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Dispatched()
	m.Skipped()
	m.ObserveResult("ping", "up", 1)
	m.AlertEmitted("restored")
	m.AuthFailure()
	m.SetAgentsOnline(1)
}
