package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution outcomes recorded by RecordExecution.
const (
	OutcomeCompleted = "completed"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)

// Metrics holds all Prometheus collectors of the engine.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Script metrics
	Executions       *prometheus.CounterVec
	ScriptDuration   *prometheus.HistogramVec
	ActiveContexts   prometheus.Gauge
	CacheLookups     *prometheus.CounterVec
	ExtensionsLoaded *prometheus.CounterVec

	// Outbound calls made by scripts
	BridgeCalls *prometheus.CounterVec

	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
	m.Executions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_script_executions_total",
			Help: "Script executions by outcome",
		},
		[]string{"outcome"},
	)
	m.ScriptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_script_duration_seconds",
			Help:    "Script evaluation duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
	m.ActiveContexts = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_active_contexts",
			Help: "Execution contexts currently alive",
		},
	)
	m.CacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_cache_lookups_total",
			Help: "Script cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)
	m.ExtensionsLoaded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_extensions_loaded_total",
			Help: "Extension definitions by result",
		},
		[]string{"result"},
	)
	m.BridgeCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_bridge_calls_total",
			Help: "Outbound HTTP calls made on behalf of scripts",
		},
		[]string{"method", "status"},
	)
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "engine_uptime_seconds",
			Help: "Seconds since the engine started",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the collectors registered with gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordExecution records the outcome of one service invocation.
func (m *Metrics) RecordExecution(kind, outcome string, duration time.Duration) {
	m.Executions.WithLabelValues(outcome).Inc()
	m.ScriptDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ContextOpened and ContextClosed track live execution contexts.
func (m *Metrics) ContextOpened() { m.ActiveContexts.Inc() }
func (m *Metrics) ContextClosed() { m.ActiveContexts.Dec() }

// CacheLookup implements cache.Observer.
func (m *Metrics) CacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// ExtensionLoaded records one extension definition attempt.
func (m *Metrics) ExtensionLoaded(ok bool) {
	result := "failed"
	if ok {
		result = "defined"
	}
	m.ExtensionsLoaded.WithLabelValues(result).Inc()
}

// RecordBridgeCall records one outbound call.
func (m *Metrics) RecordBridgeCall(method, status string) {
	m.BridgeCalls.WithLabelValues(method, status).Inc()
}
