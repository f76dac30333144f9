package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingConfig holds configuration for OpenTelemetry tracing
type TracingConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName    string  `json:"service_name" mapstructure:"service-name"`
	ServiceVersion string  `json:"service_version" mapstructure:"service-version"`
	OTLPEndpoint   string  `json:"otlp_endpoint" mapstructure:"otlp-endpoint"`
	SampleRate     float64 `json:"sample_rate" mapstructure:"sample-rate"`
}

// Span names, one per supervised backend operation
const (
	SpanLaunch    = "backend.launch"
	SpanRestart   = "backend.restart"
	SpanReadiness = "backend.readiness"
)

// TracingManager wraps backend launches, restarts and readiness checks in
// spans. A nil or disabled manager hands out no-op spans.
type TracingManager struct {
	logger   *zap.SugaredLogger
	tracer   oteltrace.Tracer
	provider *trace.TracerProvider
}

// NewTracingManager exports spans over OTLP/HTTP when cfg.Enabled is set
func NewTracingManager(logger *zap.SugaredLogger, cfg TracingConfig) (*TracingManager, error) {
	if !cfg.Enabled {
		logger.Debug("OpenTelemetry tracing disabled")
		return &TracingManager{logger: logger}, nil
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(), // collectors run on the same machine
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tm, err := newTracingManager(logger, cfg, trace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tm.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Infow("OpenTelemetry tracing initialized",
		"service_name", cfg.ServiceName,
		"otlp_endpoint", cfg.OTLPEndpoint,
		"sample_rate", cfg.SampleRate)
	return tm, nil
}

func newTracingManager(logger *zap.SugaredLogger, cfg TracingConfig, export trace.TracerProviderOption) (*TracingManager, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := trace.NewTracerProvider(
		export,
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SampleRate))),
	)
	return &TracingManager{
		logger:   logger,
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
	}, nil
}

// Close flushes pending spans
func (tm *TracingManager) Close(ctx context.Context) error {
	if !tm.IsEnabled() {
		return nil
	}
	tm.logger.Info("Shutting down OpenTelemetry tracing")
	return tm.provider.Shutdown(ctx)
}

// IsEnabled reports whether spans are recorded
func (tm *TracingManager) IsEnabled() bool {
	return tm != nil && tm.provider != nil
}

func (tm *TracingManager) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if !tm.IsEnabled() {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return tm.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

func (tm *TracingManager) TraceLaunch(ctx context.Context, requestedPort int) (context.Context, oteltrace.Span) {
	return tm.start(ctx, SpanLaunch, attribute.Int("backend.requested_port", requestedPort))
}

func (tm *TracingManager) TraceRestart(ctx context.Context, attempt int) (context.Context, oteltrace.Span) {
	return tm.start(ctx, SpanRestart, attribute.Int("backend.restart_attempt", attempt))
}

func (tm *TracingManager) TraceReadiness(ctx context.Context, port, maxAttempts int) (context.Context, oteltrace.Span) {
	return tm.start(ctx, SpanReadiness,
		attribute.Int("backend.port", port),
		attribute.Int("backend.readiness_max_attempts", maxAttempts))
}

// SetSpanError marks the span in ctx as failed
func (tm *TracingManager) SetSpanError(ctx context.Context, err error) {
	if !tm.IsEnabled() || err == nil {
		return
	}
	span := oteltrace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
