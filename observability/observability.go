package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/config"
)

// Observability is the main entry point for the logging, tracing and
// metrics stack used across the orchestrator, router client and LLM client.
type Observability struct {
	Logger  Logger
	Tracer  *Tracer
	Metrics *MetricsCollector
	config  *config.Config
}

// New wires up the observability stack from orchestrator configuration.
func New(cfg *config.Config) (*Observability, error) {
	loggerConfig := &LoggerConfig{
		Level:      LogLevel(cfg.Observability.Logging.Level),
		JSONOutput: cfg.Observability.Logging.JSON,
		WithCaller: true,
	}

	logger := NewLogger(loggerConfig)

	tracingConfig := TracingConfig{
		Enabled:       cfg.Observability.Tracing.Enabled,
		ServiceName:   cfg.Observability.Tracing.ServiceName,
		Environment:   cfg.App.Env,
		Exporter:      cfg.Observability.Tracing.Exporter,
		OTLPEndpoint:  cfg.Observability.Tracing.OTLPEndpoint,
		SamplingRatio: cfg.Observability.Tracing.SamplingRatio,
	}

	tracer, err := NewTracer(tracingConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	if err := InitGlobalTracer(tracingConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize global tracer: %w", err)
	}

	if tracingConfig.Enabled {
		logger.Info(fmt.Sprintf("tracer initialized (exporter: %s)", tracingConfig.Exporter))
	}

	metricsConfig := MetricsConfig{
		Enabled: cfg.Observability.Metrics.Enabled,
		Port:    cfg.Observability.Metrics.Port,
		Path:    "/metrics",
	}

	metrics := NewMetricsCollector(metricsConfig, nil)

	if metricsConfig.Enabled {
		logger.Info(fmt.Sprintf("metrics collector initialized (port: %d)", metricsConfig.Port))
	}

	return &Observability{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		config:  cfg,
	}, nil
}

// Close gracefully shuts down the observability stack.
func (o *Observability) Close(ctx context.Context) error {
	o.Logger.Info("shutting down observability stack")

	if err := o.Tracer.Close(ctx); err != nil {
		o.Logger.Error("failed to shutdown tracer", Err(err))
		return err
	}

	o.Logger.Info("observability stack shutdown complete")
	return nil
}

// StartMetricsServer starts the Prometheus metrics HTTP server. This should
// be run in its own goroutine.
func (o *Observability) StartMetricsServer() error {
	if !o.config.Observability.Metrics.Enabled {
		return nil
	}

	o.Logger.Info(fmt.Sprintf("starting metrics server on port %d", o.config.Observability.Metrics.Port))
	return o.Metrics.StartMetricsServer()
}

// ObserveLLMCall wraps a single LLM completion call with tracing, structured
// logging and metrics. fn returns the usage accounting for the call plus the
// TFLOPs estimate attributed to it by the caller's RunMetrics.
func (o *Observability) ObserveLLMCall(
	ctx context.Context,
	model string,
	fn func(ctx context.Context) (promptTokens, completionTokens int, tflops float64, err error),
) error {
	ctx, span := o.Tracer.StartLLMSpan(ctx, model)
	defer span.End()

	logger := o.Logger.WithContext(ctx)
	logger.Debug("starting LLM call", String("model", model))

	start := time.Now()
	promptTokens, completionTokens, tflops, err := fn(ctx)
	duration := time.Since(start)

	o.Tracer.RecordLLMUsage(span, promptTokens, completionTokens, tflops)
	o.Metrics.RecordLLMRequest(model, duration, promptTokens, completionTokens, tflops, err)

	if err != nil {
		logger.Error("LLM call failed", String("model", model), Duration("duration", duration), Err(err))
		o.Tracer.RecordError(span, err, "llm_call_error")
	} else {
		logger.Debug("LLM call completed",
			String("model", model),
			Int("prompt_tokens", promptTokens),
			Int("completion_tokens", completionTokens),
			Float64("tflops", tflops),
			Duration("duration", duration))
	}

	return err
}

// ObserveSubtaskExecution wraps a scheduler's execution of one DAG node with
// tracing, structured logging and metrics.
func (o *Observability) ObserveSubtaskExecution(
	ctx context.Context,
	nodeID, domain, modelSize string,
	fn func(ctx context.Context) error,
) error {
	ctx, span := o.Tracer.StartWorkerSpan(ctx, nodeID, domain)
	defer span.End()

	ctx = o.Tracer.InjectTraceContext(ctx)
	logger := o.Logger.WithContext(ctx)
	logger.Info("executing subtask", String("node_id", nodeID), String("domain", domain), String("model_size", modelSize))

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	o.Metrics.RecordSubtaskExecution(domain, modelSize, duration, err)

	if err != nil {
		logger.Error("subtask execution failed", String("node_id", nodeID), Duration("duration", duration), Err(err))
		o.Tracer.RecordError(span, err, "subtask_execution_error")
	} else {
		logger.Info("subtask execution completed", String("node_id", nodeID), Duration("duration", duration))
	}

	return err
}

// GetLogger returns a logger enriched with fields extracted from ctx.
func (o *Observability) GetLogger(ctx context.Context) Logger {
	return o.Logger.WithContext(ctx)
}

// GetTraceID returns the trace ID carried by ctx, if any.
func (o *Observability) GetTraceID(ctx context.Context) string {
	return o.Tracer.GetTraceID(ctx)
}
