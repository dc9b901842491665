// Package tracer provides OTLP-over-gRPC distributed tracing for the
// engine, adapted from the teacher's archive/internal/tracing.Tracer:
// same exporter/provider/sampler wiring, same no-op span fallback when
// tracing is disabled, renamed to the engine's own span vocabulary
// (dispatch, correlation, self-protection phases rather than HTTP routes).
package tracer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"google.golang.org/grpc"
)

// Config controls whether and where spans are exported.
type Config struct {
	Enabled        bool
	ServiceName    string
	CollectorURL   string
	SampleRate     float64
	BatchTimeout   time.Duration
	ExportTimeout  time.Duration
	MaxQueueSize   int
	MaxExportBatch int
}

// DefaultConfig returns tracing disabled with sane batching parameters,
// ready to enable by flipping Enabled and setting CollectorURL.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "hips-sentinel",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		ExportTimeout:  30 * time.Second,
		MaxQueueSize:   2048,
		MaxExportBatch: 512,
	}
}

// Tracer wraps an OTel TracerProvider; when disabled every method is a
// cheap no-op via noopSpan.
type Tracer struct {
	mu sync.RWMutex

	config Config
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// New builds a Tracer. When cfg.Enabled is false, it returns immediately
// with no network setup — tracing can be toggled purely by config.
func New(cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{config: cfg}, nil
	}

	ctx := context.Background()

	exporter, err := otlptrace.New(
		ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.CollectorURL),
			otlptracegrpc.WithDialOption(grpc.WithBlock()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracer: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("component", "hips-engine"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracer: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatch),
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)

	return &Tracer{
		config: cfg,
		tp:     tp,
		tracer: tp.Tracer(cfg.ServiceName),
	}, nil
}

// StartSpan starts a span named name. When tracing is disabled it returns a
// noopSpan so callers never need a nil check.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !t.config.Enabled {
		return ctx, &noopSpan{}
	}
	return t.tracer.Start(ctx, name, opts...)
}

// AddEvent attaches a named event with attributes to the span in ctx.
func (t *Tracer) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span != nil {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// SetAttribute sets a string attribute on the span in ctx.
func (t *Tracer) SetAttribute(ctx context.Context, key string, value interface{}) {
	if span := trace.SpanFromContext(ctx); span != nil {
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}

// RecordError records err on the span in ctx.
func (t *Tracer) RecordError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span != nil {
		span.RecordError(err)
	}
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

// noopSpan implements trace.Span as a no-op, used whenever tracing is
// disabled so callers can treat StartSpan's return value uniformly.
type noopSpan struct {
	embedded.Span
}

func (s *noopSpan) End(options ...trace.SpanEndOption)                 {}
func (s *noopSpan) AddEvent(name string, options ...trace.EventOption) {}
func (s *noopSpan) IsRecording() bool                                  { return false }
func (s *noopSpan) RecordError(err error, opts ...trace.EventOption)   {}
func (s *noopSpan) SpanContext() trace.SpanContext                     { return trace.SpanContext{} }
func (s *noopSpan) SetStatus(code codes.Code, description string)      {}
func (s *noopSpan) SetName(name string)                                {}
func (s *noopSpan) SetAttributes(kv ...attribute.KeyValue)             {}
func (s *noopSpan) TracerProvider() trace.TracerProvider               { return nil }
func (s *noopSpan) AddLink(link trace.Link)                            {}
