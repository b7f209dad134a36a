package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Redirect(ResultRedirected)
	m.Redirect(ResultRedirected)
	m.Redirect(ResultNotFound)
	m.Click(true)
	m.Click(false)
	m.AttributionFailure()
	m.PolicyAnomaly()
	m.DroppedEvent()
	m.ObserveAttribution(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.redirects.WithLabelValues(ResultRedirected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirects.WithLabelValues(ResultNotFound)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.clicks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attributionFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.policyAnomalies))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedEvents))
	assert.Equal(t, 1, testutil.CollectAndCount(m.attributionDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Redirect(ResultUnavailable)
		m.Click(true)
		m.AttributionFailure()
		m.PolicyAnomaly()
		m.DroppedEvent()
		m.ObserveAttribution(time.Now())
	})
}
