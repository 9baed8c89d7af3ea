package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the voice agent.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	TurnsTotal        *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	SynthesizedChunks prometheus.Counter
	Fallbacks         *prometheus.CounterVec

	// Maintenance
	ArtifactsPruned prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_agent_turns_total",
			Help: "Pipeline runs by pipeline and outcome",
		}, []string{"pipeline", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_agent_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		SynthesizedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_synthesized_chunks_total",
			Help: "Text chunks synthesized into audio",
		}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_agent_fallbacks_total",
			Help: "Fallback payloads served by endpoint",
		}, []string{"endpoint"}),

		ArtifactsPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_artifacts_pruned_total",
			Help: "Generated audio files removed by the retention job",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_agent_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_agent_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTurn(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(pipeline, outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChunk() {
	if m == nil {
		return
	}
	m.SynthesizedChunks.Inc()
}

func (m *Metrics) ObserveFallback(endpoint string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) ObservePruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArtifactsPruned.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
