// Package tracing provides distributed tracing support using OpenTelemetry.
package tracing

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tareqmamari/credit-alarms"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	Writer         io.Writer // defaults to stderr
}

// Global tracer
var globalTracer trace.Tracer

// InitOTel initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on application exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	// The service schema must match the SDK's default resource schema or the
	// merge fails.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	// Lambda freezes the process between invocations, so spans are exported
	// synchronously instead of batched.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	globalTracer = tp.Tracer(instrumentationName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return globalTracer
}

// SpanKind represents the role of a span
type SpanKind string

const (
	SpanKindStage    SpanKind = "stage"
	SpanKindAWS      SpanKind = "aws"
	SpanKindTool     SpanKind = "tool"
	SpanKindInternal SpanKind = "internal"
)

// StageSpan starts a span for one pipeline stage invocation
func StageSpan(ctx context.Context, stage, instanceID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "alarms.stage."+stage,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("alarms.stage", stage),
			attribute.String("ec2.instance_id", instanceID),
			attribute.String("alarms.span.kind", string(SpanKindStage)),
		),
	)
}

// AWSSpan starts a span for one AWS API call
func AWSSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "aws."+service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.RPCSystemNameKey.String("aws-api"),
			semconv.RPCMethod(service+"/"+operation),
			attribute.String("aws.service", service),
			attribute.String("alarms.span.kind", string(SpanKindAWS)),
		),
	)
}

// ToolSpan starts a span for an operator tool execution
func ToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "mcp.tool."+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mcp.tool.name", toolName),
			attribute.String("alarms.span.kind", string(SpanKindTool)),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// TraceInfo provides trace and span IDs for audit logging
type TraceInfo struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// FromContext extracts trace information from context for audit logging
func FromContext(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
