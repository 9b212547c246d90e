// Package metrics exposes Prometheus instrumentation for the dialer
// and the HTTP API. A process installs one instance as the global and
// the hot paths record through nil-safe helpers, so tests that never
// install metrics pay nothing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the platform.
type Metrics struct {
	// Call counters
	CallsOriginatedTotal *prometheus.CounterVec
	CallsFailedTotal     *prometheus.CounterVec
	CallsRefusedTotal    *prometheus.CounterVec
	DncBlockedTotal      prometheus.Counter

	// Dialer gauges and timings
	ActiveCalls       prometheus.Gauge
	RunningCampaigns  prometheus.Gauge
	DialerTickSeconds prometheus.Histogram

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CallsOriginatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcenter_calls_originated_total",
				Help: "Total number of calls accepted by a PBX node",
			},
			[]string{"dial_mode"},
		),
		CallsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcenter_calls_failed_total",
				Help: "Total number of originations the PBX rejected",
			},
			[]string{"dial_mode"},
		),
		CallsRefusedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcenter_calls_refused_total",
				Help: "Total number of originations refused before the wire",
			},
			[]string{"reason"},
		),
		DncBlockedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "callcenter_dnc_blocked_total",
				Help: "Total number of dials blocked by the DNC list",
			},
		),

		ActiveCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callcenter_active_calls",
				Help: "Leads currently in the dialing state across running campaigns",
			},
		),
		RunningCampaigns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callcenter_running_campaigns",
				Help: "Number of campaigns in the running state",
			},
		),
		DialerTickSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callcenter_dialer_tick_seconds",
				Help:    "Duration of one dialer pass over the running campaigns",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcenter_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcenter_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.CallsOriginatedTotal,
		m.CallsFailedTotal,
		m.CallsRefusedTotal,
		m.DncBlockedTotal,
		m.ActiveCalls,
		m.RunningCampaigns,
		m.DialerTickSeconds,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal installs the process-wide metrics instance.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the installed metrics instance, or nil.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncCallOriginated counts an origination the PBX accepted.
func IncCallOriginated(dialMode string) {
	if m := Global(); m != nil {
		m.CallsOriginatedTotal.WithLabelValues(dialMode).Inc()
	}
}

// IncCallFailed counts an origination the PBX rejected.
func IncCallFailed(dialMode string) {
	if m := Global(); m != nil {
		m.CallsFailedTotal.WithLabelValues(dialMode).Inc()
	}
}

// IncCallRefused counts an origination refused before reaching AMI.
func IncCallRefused(reason string) {
	if m := Global(); m != nil {
		m.CallsRefusedTotal.WithLabelValues(reason).Inc()
	}
}

// IncDncBlocked counts a dial blocked by the DNC list.
func IncDncBlocked() {
	if m := Global(); m != nil {
		m.DncBlockedTotal.Inc()
	}
}

// ObserveTick records one dialer pass.
func ObserveTick(seconds float64, activeCalls, runningCampaigns int) {
	if m := Global(); m != nil {
		m.DialerTickSeconds.Observe(seconds)
		m.ActiveCalls.Set(float64(activeCalls))
		m.RunningCampaigns.Set(float64(runningCampaigns))
	}
}
