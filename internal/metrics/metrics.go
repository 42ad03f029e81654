// internal/metrics/metrics.go

// Package metrics bundles the Prometheus collectors for the auditor. All
// collectors live on a dedicated registry so tests and embedding
// programs never fight over the global one. Every helper is nil-safe; a
// component handed a nil *Metrics simply records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeRejected  = "rejected"
)

// Metrics holds the auditor's collectors.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	ElementsDiscovered prometheus.Counter
	ElementTests       *prometheus.CounterVec
	ElementDuration    prometheus.Histogram
	SessionsActive     prometheus.Gauge
	ProvisionFailures  prometheus.Counter
	ProbeRequests      prometheus.Counter
}

// New constructs and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deadclick_runs_total",
			Help: "Audit runs by outcome.",
		},
		[]string{"outcome"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deadclick_run_duration_seconds",
			Help:    "Wall time of completed audit runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
	discovered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deadclick_elements_discovered_total",
			Help: "Interactive elements discovered across all runs.",
		},
	)
	tests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deadclick_element_tests_total",
			Help: "Element tests by click status.",
		},
		[]string{"status"},
	)
	elementDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deadclick_element_test_duration_seconds",
			Help:    "Latency of individual element tests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deadclick_sessions_active",
			Help: "Browser sessions currently open.",
		},
	)
	provisionFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deadclick_provision_failures_total",
			Help: "Browser sessions that could not be provisioned.",
		},
	)
	probeRequests := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deadclick_probe_requests_total",
			Help: "HEAD requests issued by the link probe.",
		},
	)

	registry.MustRegister(runs, runDuration, discovered, tests, elementDuration, sessions, provisionFailures, probeRequests)

	return &Metrics{
		Registry:           registry,
		RunsTotal:          runs,
		RunDuration:        runDuration,
		ElementsDiscovered: discovered,
		ElementTests:       tests,
		ElementDuration:    elementDuration,
		SessionsActive:     sessions,
		ProvisionFailures:  provisionFailures,
		ProbeRequests:      probeRequests,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncRun counts a finished run attempt by outcome.
func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRunDuration records a completed run's wall time.
func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

// AddDiscovered counts newly discovered elements.
func (m *Metrics) AddDiscovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ElementsDiscovered.Add(float64(n))
}

// IncTest counts one element test by its terminal status.
func (m *Metrics) IncTest(status string) {
	if m == nil {
		return
	}
	m.ElementTests.WithLabelValues(status).Inc()
}

// ObserveTestDuration records one element test's latency.
func (m *Metrics) ObserveTestDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ElementDuration.Observe(d.Seconds())
}

// SessionOpened tracks a newly provisioned browser session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionClosed tracks a released browser session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// IncProvisionFailure counts a session that could not be started.
func (m *Metrics) IncProvisionFailure() {
	if m == nil {
		return
	}
	m.ProvisionFailures.Inc()
}

// IncProbeRequest counts one HEAD request issued by the link probe.
func (m *Metrics) IncProbeRequest() {
	if m == nil {
		return
	}
	m.ProbeRequests.Inc()
}
