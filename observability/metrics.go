package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// MetricsCollector manages the process-lifetime Prometheus metrics for the
// orchestrator. It is cumulative across runs; per-run figures live in
// domain.RunMetrics instead.
type MetricsCollector struct {
	// Run metrics
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runRetries   prometheus.Histogram

	// Decomposer metrics
	decomposeCallsTotal *prometheus.CounterVec
	decomposeDuration   prometheus.Histogram

	// Router metrics
	routingDecisionsTotal *prometheus.CounterVec
	routingCacheHits      prometheus.Counter
	routingCacheMisses    prometheus.Counter
	routingDuration       *prometheus.HistogramVec

	// Subtask execution metrics
	subtaskExecutionsTotal *prometheus.CounterVec
	subtaskDuration        *prometheus.HistogramVec

	// Synthesizer metrics
	synthesizeCallsTotal *prometheus.CounterVec
	synthesizeDuration   prometheus.Histogram

	// LLM metrics
	llmRequestsTotal  *prometheus.CounterVec
	llmLatencySeconds *prometheus.HistogramVec
	llmTokensTotal    *prometheus.CounterVec
	llmTFLOPsTotal    *prometheus.CounterVec
	llmErrorsTotal    *prometheus.CounterVec

	// System metrics
	healthStatus prometheus.Gauge

	config MetricsConfig
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig, registry *prometheus.Registry) *MetricsCollector {
	if !config.Enabled {
		return &MetricsCollector{config: config}
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	factory := promauto.With(registry)

	collector := &MetricsCollector{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_runs_total",
				Help: "Total number of orchestrator runs by terminal status",
			},
			[]string{"status"}, // ok, insufficient, max_retry
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orch_run_duration_seconds",
				Help:    "End-to-end run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~2000s
			},
		),
		runRetries: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orch_run_retries",
				Help:    "Number of synthesis retries per run",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),

		decomposeCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_decompose_calls_total",
				Help: "Total number of decomposition attempts by status",
			},
			[]string{"status"}, // ok, invalid_json, invalid_dag
		),
		decomposeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orch_decompose_duration_seconds",
				Help:    "Decomposition call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),

		routingDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_routing_decisions_total",
				Help: "Total number of routing decisions by domain and chosen size",
			},
			[]string{"domain", "model_size"},
		),
		routingCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orch_routing_cache_hits_total",
				Help: "Total number of routing decisions served from cache",
			},
		),
		routingCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orch_routing_cache_misses_total",
				Help: "Total number of routing decisions that required a remote call",
			},
		),
		routingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orch_routing_duration_seconds",
				Help:    "Router classifier call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"domain"},
		),

		subtaskExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_subtask_executions_total",
				Help: "Total number of subtask executions by domain and status",
			},
			[]string{"domain", "model_size", "status"},
		),
		subtaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orch_subtask_duration_seconds",
				Help:    "Subtask execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"domain", "model_size"},
		),

		synthesizeCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_synthesize_calls_total",
				Help: "Total number of synthesis attempts by outcome",
			},
			[]string{"outcome"}, // sufficient, insufficient, error
		),
		synthesizeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orch_synthesize_duration_seconds",
				Help:    "Synthesis call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),

		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_llm_requests_total",
				Help: "Total number of LLM completion requests",
			},
			[]string{"model", "status"},
		),
		llmLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orch_llm_latency_seconds",
				Help:    "LLM completion latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"model"},
		),
		llmTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"}, // type: prompt, completion
		),
		llmTFLOPsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_llm_tflops_total",
				Help: "Estimated TFLOPs consumed by LLM calls",
			},
			[]string{"model"},
		),
		llmErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orch_llm_errors_total",
				Help: "Total number of LLM call errors",
			},
			[]string{"model", "error_type"},
		),

		healthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orch_health_status",
				Help: "Health status (1 = healthy, 0 = unhealthy)",
			},
		),

		config: config,
	}

	collector.healthStatus.Set(1)

	return collector
}

// RecordRun records the terminal outcome of a run.
func (m *MetricsCollector) RecordRun(status string, duration time.Duration, retries int) {
	if !m.config.Enabled {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.runRetries.Observe(float64(retries))
}

// RecordDecompose records a decomposition attempt.
func (m *MetricsCollector) RecordDecompose(status string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.decomposeCallsTotal.WithLabelValues(status).Inc()
	m.decomposeDuration.Observe(duration.Seconds())
}

// RecordRoutingDecision records a completed routing decision.
func (m *MetricsCollector) RecordRoutingDecision(domain, modelSize string, cacheHit bool, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.routingDecisionsTotal.WithLabelValues(domain, modelSize).Inc()
	if cacheHit {
		m.routingCacheHits.Inc()
	} else {
		m.routingCacheMisses.Inc()
		m.routingDuration.WithLabelValues(domain).Observe(duration.Seconds())
	}
}

// RecordSubtaskExecution records a subtask execution.
func (m *MetricsCollector) RecordSubtaskExecution(domain, modelSize string, duration time.Duration, err error) {
	if !m.config.Enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.subtaskExecutionsTotal.WithLabelValues(domain, modelSize, status).Inc()
	m.subtaskDuration.WithLabelValues(domain, modelSize).Observe(duration.Seconds())
}

// RecordSynthesize records a synthesis attempt.
func (m *MetricsCollector) RecordSynthesize(outcome string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.synthesizeCallsTotal.WithLabelValues(outcome).Inc()
	m.synthesizeDuration.Observe(duration.Seconds())
}

// RecordLLMRequest records an LLM completion request.
func (m *MetricsCollector) RecordLLMRequest(model string, duration time.Duration, promptTokens, completionTokens int, tflops float64, err error) {
	if !m.config.Enabled {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		m.llmErrorsTotal.WithLabelValues(model, "api_error").Inc()
	}

	m.llmRequestsTotal.WithLabelValues(model, status).Inc()
	m.llmLatencySeconds.WithLabelValues(model).Observe(duration.Seconds())

	if status == "success" {
		m.llmTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		m.llmTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
		m.llmTFLOPsTotal.WithLabelValues(model).Add(tflops)
	}
}

// SetHealthStatus sets the health status
func (m *MetricsCollector) SetHealthStatus(healthy bool) {
	if !m.config.Enabled {
		return
	}

	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// GetHandler returns the HTTP handler for Prometheus metrics
func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts the metrics HTTP server
func (m *MetricsCollector) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	http.Handle(m.config.Path, m.GetHandler())

	addr := fmt.Sprintf(":%d", m.config.Port)
	fmt.Printf("Starting metrics server on %s%s\n", addr, m.config.Path)

	return http.ListenAndServe(addr, nil)
}
