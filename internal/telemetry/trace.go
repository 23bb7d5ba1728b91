// Package telemetry provides OpenTelemetry tracing helpers. Tracers are
// always obtained from a caller-supplied provider; a nil provider falls back
// to the otel global, which is a no-op unless the binary installs one.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies fanout spans.
const InstrumentationName = "github.com/Iron-Ham/fanout"

// Tracer returns the fanout tracer from tp.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// NewProvider creates an always-sampling SDK provider without exporters.
// Spans still carry trace IDs, which the CLI writes to the log so one run's
// log lines can be correlated.
func NewProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...)
}

// StartStageSpan starts a span for one pipeline stage.
//
//	ctx, span := telemetry.StartStageSpan(ctx, tracer, "optimize")
//	defer span.End()
func StartStageSpan(ctx context.Context, tracer trace.Tracer, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "stage."+stage)
	span.SetAttributes(attribute.String("stage", stage))
	span.SetAttributes(attrs...)
	return ctx, span
}

// StartBatchSpan starts a span for one coordinated batch.
func StartBatchSpan(ctx context.Context, tracer trace.Tracer, batchID string, size, agents int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "batch."+batchID)
	span.SetAttributes(
		attribute.String("batch_id", batchID),
		attribute.Int("batch_size", size),
		attribute.Int("agents", agents),
	)
	return ctx, span
}

// StartTaskSpan starts a span for one task execution.
func StartTaskSpan(ctx context.Context, tracer trace.Tracer, agentID, taskID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "task."+taskID)
	span.SetAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("task_id", taskID),
	)
	return ctx, span
}

// RecordSuccess marks a span successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span and sets error status. A nil err is
// ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace ID carried by ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
