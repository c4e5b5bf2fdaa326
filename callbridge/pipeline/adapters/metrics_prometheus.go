package adapters

import (
	"net/http"
	"time"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements the Metrics interface on a private registry.
type PrometheusMetrics struct {
	registry          *prometheus.Registry
	turns             *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	toolCalls         *prometheus.CounterVec
	toolDuration      *prometheus.HistogramVec
	inferenceAttempts *prometheus.HistogramVec
	inferenceDuration *prometheus.HistogramVec
	inferenceErrors   *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the pipeline collectors.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "turns_total", Help: "Turns by final state"},
			[]string{"state"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "turn_duration_seconds", Help: "Duration of whole turns"},
			[]string{"state"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "tool_calls_total", Help: "Executed tool calls by outcome"},
			[]string{"tool", "status"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "tool_duration_seconds", Help: "Duration of tool executions"},
			[]string{"tool"},
		),
		inferenceAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "inference_attempts", Help: "Attempts per inference", Buckets: []float64{1, 2, 3, 4, 6}},
			[]string{"provider"},
		),
		inferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "inference_duration_seconds", Help: "Duration of inference including retries"},
			[]string{"provider"},
		),
		inferenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "inference_failures_total", Help: "Inferences that failed after retries"},
			[]string{"provider"},
		),
	}
	m.registry.MustRegister(
		m.turns, m.turnDuration,
		m.toolCalls, m.toolDuration,
		m.inferenceAttempts, m.inferenceDuration, m.inferenceErrors,
	)
	return m
}

func (m *PrometheusMetrics) ObserveTurn(state string, d time.Duration) {
	m.turns.WithLabelValues(state).Inc()
	m.turnDuration.WithLabelValues(state).Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveToolCall(tool, status string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveInference(provider string, attempts int, err error, d time.Duration) {
	m.inferenceAttempts.WithLabelValues(provider).Observe(float64(attempts))
	m.inferenceDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.inferenceErrors.WithLabelValues(provider).Inc()
	}
}

// Registry returns the underlying registry, mainly for tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ ports.Metrics = (*PrometheusMetrics)(nil)
