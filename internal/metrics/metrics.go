// Package metrics provides Prometheus metrics for promptlab.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ModelCallsTotal   *prometheus.CounterVec
	ModelCallDuration *prometheus.HistogramVec
	ModelRetriesTotal *prometheus.CounterVec

	TextTurnsTotal *prometheus.CounterVec
	ChainsTotal    *prometheus.CounterVec
	ChainSteps     prometheus.Histogram

	GrpcRequestsTotal   *prometheus.CounterVec
	GrpcRequestDuration *prometheus.HistogramVec

	EventConnections prometheus.Gauge

	ToolCallsTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ModelCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_model_calls_total",
			Help: "Total number of outbound model calls",
		}, []string{"provider", "outcome"}),
		ModelCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptlab_model_call_duration_seconds",
			Help:    "Duration of outbound model calls in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		ModelRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_model_retries_total",
			Help: "Total number of retried model calls",
		}, []string{"kind"}),
		TextTurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_text_turns_total",
			Help: "Total number of processed text turns",
		}, []string{"demo", "path"}),
		ChainsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_decision_chains_total",
			Help: "Total number of finished decision chains",
		}, []string{"status"}),
		ChainSteps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptlab_decision_chain_steps",
			Help:    "Number of steps per finished decision chain",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		GrpcRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_grpc_requests_total",
			Help: "Total number of gRPC requests",
		}, []string{"method", "status"}),
		GrpcRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptlab_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		EventConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "promptlab_event_connections",
			Help: "Number of open event (WebSocket) connections",
		}),
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_tool_calls_total",
			Help: "Total number of tool calls",
		}, []string{"tool", "outcome"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordModelCall records one outbound model call.
func (m *Metrics) RecordModelCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelCallsTotal.WithLabelValues(provider, outcome).Inc()
	m.ModelCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordRetry records a retried model call.
func (m *Metrics) RecordRetry(kind string) {
	if m == nil {
		return
	}
	m.ModelRetriesTotal.WithLabelValues(kind).Inc()
}

// RecordTurn records one processed text turn.
func (m *Metrics) RecordTurn(demo, path string) {
	if m == nil {
		return
	}
	m.TextTurnsTotal.WithLabelValues(demo, path).Inc()
}

// RecordChain records a finished decision chain.
func (m *Metrics) RecordChain(status string, steps int) {
	if m == nil {
		return
	}
	m.ChainsTotal.WithLabelValues(status).Inc()
	m.ChainSteps.Observe(float64(steps))
}

// RecordGrpcRequest records a gRPC request.
func (m *Metrics) RecordGrpcRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetEventConnections reports the number of open event connections.
func (m *Metrics) SetEventConnections(n int) {
	if m == nil {
		return
	}
	m.EventConnections.Set(float64(n))
}

// RecordToolCall records one tool call.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}
