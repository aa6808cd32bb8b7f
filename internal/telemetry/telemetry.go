package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Span attribute keys for bootstrap stages.
const (
	AttrBootID   = "bootstrap.boot_id"
	AttrStage    = "bootstrap.stage"
	AttrResult   = "bootstrap.result"
	AttrReason   = "bootstrap.reason"
	AttrTarget   = "bootstrap.target"
	AttrAttempts = "bootstrap.gate.attempts"
)

var (
	mu             sync.RWMutex
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
	flushTimeout   = DefaultConfig().FlushTimeout
)

// Init initializes the OpenTelemetry SDK with the given configuration.
// Returns a shutdown function that flushes and closes the exporter.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		mu.Lock()
		enabled = false
		tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
		mu.Unlock()
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlptracegrpc.WithInsecure(),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.BootID != "" {
		attrs = append(attrs, attribute.String(AttrBootID, cfg.BootID))
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	install(tp, cfg.ServiceName)

	timeout := cfg.FlushTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().FlushTimeout
	}
	mu.Lock()
	flushTimeout = timeout
	mu.Unlock()

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}, nil
}

// InitWithProvider installs an already built provider. Tests use it with an
// in-memory span recorder.
func InitWithProvider(tp *sdktrace.TracerProvider, serviceName string) {
	install(tp, serviceName)
}

func install(tp *sdktrace.TracerProvider, serviceName string) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mu.Lock()
	tracerProvider = tp
	tracer = tp.Tracer(serviceName)
	enabled = true
	mu.Unlock()
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the global tracer for creating spans.
// If telemetry is not initialized, returns a no-op tracer.
func Tracer() trace.Tracer {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	if t != nil {
		return t
	}
	return noop.NewTracerProvider().Tracer("julie-entrypoint")
}

// IsEnabled returns whether telemetry is enabled
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Flush exports buffered spans without shutting the provider down. The
// process image is about to be replaced, so nothing else will.
func Flush(ctx context.Context) error {
	mu.RLock()
	tp, timeout := tracerProvider, flushTimeout
	mu.RUnlock()
	if tp == nil {
		return nil
	}
	flushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return tp.ForceFlush(flushCtx)
}

// StartSpan starts a new span with the given name.
// The caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// RecordError records an error on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// TraceID returns the trace ID from the current span context.
// Returns empty string if no span is active.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the span ID from the current span context.
// Returns empty string if no span is active.
func SpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// EnvCarrier adapts a KEY=VALUE environment slice to a propagation
// carrier. Keys are upper-cased (traceparent becomes TRACEPARENT), the
// convention OTel SDKs read for process-to-process propagation.
type EnvCarrier map[string]string

func (c EnvCarrier) Get(key string) string { return c[strings.ToUpper(key)] }

func (c EnvCarrier) Set(key, value string) { c[strings.ToUpper(key)] = value }

func (c EnvCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectEnv returns env extended with the trace context of ctx, so the
// server's own spans join the bootstrap trace. env is not modified.
func InjectEnv(ctx context.Context, env []string) []string {
	carrier := EnvCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return env
	}

	out := make([]string, 0, len(env)+len(carrier))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if _, replaced := carrier[name]; !replaced {
			out = append(out, kv)
		}
	}
	for k, v := range carrier {
		out = append(out, k+"="+v)
	}
	return out
}
