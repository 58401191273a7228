package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled       bool
	ServiceName   string
	Environment   string
	Exporter      string  // jaeger, otlp, stdout
	JaegerURL     string  // e.g., http://localhost:14268/api/traces
	OTLPEndpoint  string  // e.g., localhost:4317
	SamplingRatio float64 // 0.0 to 1.0
}

// contextKey is an unexported type for context keys defined in this package,
// avoiding collisions with keys defined in other packages.
type contextKey string

const (
	TraceIDKey contextKey = "trace_id"
	SpanIDKey  contextKey = "span_id"
)

// Tracer wraps OpenTelemetry tracer
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   TracingConfig
}

// SpanKind represents the type of span
type SpanKind string

const (
	SpanKindRun          SpanKind = "run"
	SpanKindDecompose    SpanKind = "decompose"
	SpanKindRoute        SpanKind = "route"
	SpanKindLLM          SpanKind = "llm"
	SpanKindWorker       SpanKind = "worker"
	SpanKindSynthesize   SpanKind = "synthesize"
)

// Common attribute keys
const (
	AttrRunID               = "run.id"
	AttrNodeID              = "node.id"
	AttrDomain              = "domain"
	AttrModelSize           = "model.size"
	AttrLLMModel            = "llm.model"
	AttrLLMPromptTokens     = "llm.prompt_tokens"
	AttrLLMCompletionTokens = "llm.completion_tokens"
	AttrLLMTotalTokens      = "llm.total_tokens"
	AttrLLMTFLOPs           = "llm.tflops"
	AttrErrorType           = "error.type"
	AttrErrorMessage        = "error.message"
)

// NewTracer creates a new tracer instance
func NewTracer(config TracingConfig) (*Tracer, error) {
	if !config.Enabled {
		// Return a no-op tracer
		return &Tracer{
			tracer:   otel.Tracer("orchestrator-noop"),
			provider: nil,
			config:   config,
		}, nil
	}

	// Create exporter based on configuration
	var exporter sdktrace.SpanExporter
	var err error

	switch config.Exporter {
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerURL)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
	case "otlp":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(), // Use WithTLSCredentials() in production
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		// For development: log to stdout
		exporter, err = newStdoutExporter()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", config.Exporter)
	}

	// Create resource with service information
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create trace provider with sampling
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRatio))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set as global provider
	otel.SetTracerProvider(provider)

	// Get tracer
	tracer := provider.Tracer("llm-agent-orchestrator")

	return &Tracer{
		tracer:   tracer,
		provider: provider,
		config:   config,
	}, nil
}

// Close shuts down the tracer provider
func (t *Tracer) Close(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span
func (t *Tracer) StartSpan(ctx context.Context, name string, kind SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("span.kind", string(kind)))

	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}

// StartOrchestratorSpan starts the root span for an orchestrator run
func (t *Tracer) StartOrchestratorSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "orchestrator.run", SpanKindRun,
		attribute.String(AttrRunID, runID),
	)
}

// StartDecomposeSpan starts a span for task decomposition
func (t *Tracer) StartDecomposeSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "orchestrator.decompose", SpanKindDecompose,
		attribute.String(AttrRunID, runID),
	)
}

// StartRouteSpan starts a span for a routing decision
func (t *Tracer) StartRouteSpan(ctx context.Context, domain string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, fmt.Sprintf("router.route.%s", domain), SpanKindRoute,
		attribute.String(AttrDomain, domain),
	)
}

// StartWorkerSpan starts a span for a subtask's execution
func (t *Tracer) StartWorkerSpan(ctx context.Context, nodeID, domain string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, fmt.Sprintf("scheduler.execute.%s", domain), SpanKindWorker,
		attribute.String(AttrNodeID, nodeID),
		attribute.String(AttrDomain, domain),
	)
}

// StartSynthesizeSpan starts a span for result synthesis
func (t *Tracer) StartSynthesizeSpan(ctx context.Context, runID string, attempt int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "synthesizer.evaluate", SpanKindSynthesize,
		attribute.String(AttrRunID, runID),
		attribute.Int("attempt", attempt),
	)
}

// StartLLMSpan starts a span for an LLM completion call
func (t *Tracer) StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, fmt.Sprintf("llm.complete.%s", model), SpanKindLLM,
		attribute.String(AttrLLMModel, model),
	)
}

// RecordLLMUsage records token and FLOPs usage on an LLM span
func (t *Tracer) RecordLLMUsage(span trace.Span, promptTokens, completionTokens int, tflops float64) {
	span.SetAttributes(
		attribute.Int(AttrLLMPromptTokens, promptTokens),
		attribute.Int(AttrLLMCompletionTokens, completionTokens),
		attribute.Int(AttrLLMTotalTokens, promptTokens+completionTokens),
		attribute.Float64(AttrLLMTFLOPs, tflops),
	)
}

// RecordError records an error on a span
func (t *Tracer) RecordError(span trace.Span, err error, errorType string) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		span.SetAttributes(
			attribute.String(AttrErrorType, errorType),
			attribute.String(AttrErrorMessage, err.Error()),
		)
	}
}

// EndSpan ends a span with optional error
func (t *Tracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddEvent adds an event to a span
func (t *Tracer) AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID extracts the trace ID from context
func (t *Tracer) GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID extracts the span ID from context
func (t *Tracer) GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasSpanID() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}

// InjectTraceContext injects trace context into a new context
func (t *Tracer) InjectTraceContext(ctx context.Context) context.Context {
	traceID := t.GetTraceID(ctx)
	spanID := t.GetSpanID(ctx)

	if traceID != "" {
		ctx = context.WithValue(ctx, TraceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, SpanIDKey, spanID)
	}

	return ctx
}

// stdoutTraceExporter prints spans for local development
type stdoutTraceExporter struct{}

func (e *stdoutTraceExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fmt.Printf("[TRACE] %s | %s | %v | %v\n",
			span.Name(),
			span.SpanContext().TraceID().String(),
			span.StartTime(),
			span.EndTime().Sub(span.StartTime()),
		)
	}
	return nil
}

func (e *stdoutTraceExporter) Shutdown(ctx context.Context) error {
	return nil
}

func newStdoutExporter() (sdktrace.SpanExporter, error) {
	return &stdoutTraceExporter{}, nil
}

// Global tracer instance
var globalTracer *Tracer

// InitGlobalTracer initializes the global tracer
func InitGlobalTracer(config TracingConfig) error {
	tracer, err := NewTracer(config)
	if err != nil {
		return err
	}
	globalTracer = tracer
	return nil
}

// GetTracer returns the global tracer
func GetTracer() *Tracer {
	if globalTracer == nil {
		// Fallback to no-op tracer
		_ = InitGlobalTracer(TracingConfig{
			Enabled:     false,
			ServiceName: "llm-agent-orchestrator",
			Environment: "development",
		})
	}
	return globalTracer
}

// ShutdownTracer shuts down the global tracer
func ShutdownTracer(ctx context.Context) error {
	if globalTracer != nil {
		return globalTracer.Close(ctx)
	}
	return nil
}
