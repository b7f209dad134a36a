// Package metrics exposes the redirector's prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Redirect results.
const (
	ResultRedirected  = "redirected"
	ResultNotFound    = "not_found"
	ResultUnavailable = "unavailable"
)

type Metrics struct {
	redirects           *prometheus.CounterVec
	clicks              prometheus.Counter
	conversions         prometheus.Counter
	attributionFailures prometheus.Counter
	policyAnomalies     prometheus.Counter
	droppedEvents       prometheus.Counter
	attributionDuration prometheus.Histogram
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliate_redirects_total",
			Help: "Redirect requests by result.",
		}, []string{"result"}),
		clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_clicks_total",
			Help: "Clicks committed to the store.",
		}),
		conversions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_conversions_total",
			Help: "Clicks recorded as conversions.",
		}),
		attributionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_attribution_failures_total",
			Help: "Click transactions that failed after every retry.",
		}),
		policyAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_policy_anomalies_total",
			Help: "Decisions skipped because the link policy could not be decoded.",
		}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_dropped_events_total",
			Help: "Click events dropped because the worker queue was full.",
		}),
		attributionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "affiliate_attribution_duration_seconds",
			Help:    "Duration of the click transaction including retries.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.redirects,
		m.clicks,
		m.conversions,
		m.attributionFailures,
		m.policyAnomalies,
		m.droppedEvents,
		m.attributionDuration,
	)
	return m
}

func (m *Metrics) Redirect(result string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(result).Inc()
}

func (m *Metrics) Click(converted bool) {
	if m == nil {
		return
	}
	m.clicks.Inc()
	if converted {
		m.conversions.Inc()
	}
}

func (m *Metrics) AttributionFailure() {
	if m == nil {
		return
	}
	m.attributionFailures.Inc()
}

func (m *Metrics) PolicyAnomaly() {
	if m == nil {
		return
	}
	m.policyAnomalies.Inc()
}

func (m *Metrics) DroppedEvent() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

func (m *Metrics) ObserveAttribution(start time.Time) {
	if m == nil {
		return
	}
	m.attributionDuration.Observe(time.Since(start).Seconds())
}
