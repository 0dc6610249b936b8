package bootstrap

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// TracerName is the instrumentation scope of bootstrap spans
const TracerName = "elisedb"

// InitTracer returns the tracer provider for a run and its shutdown func.
// When tracing is disabled a no-op provider is returned. Otherwise spans are
// exported synchronously to the logger at debug level.
func InitTracer(enabled bool, sugar *zap.SugaredLogger) (trace.TracerProvider, func(context.Context) error) {
	if !enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(&zapSpanExporter{sugar: sugar}))
	return tp, tp.Shutdown
}

// zapSpanExporter writes finished spans to a zap logger
type zapSpanExporter struct {
	sugar *zap.SugaredLogger
}

func (e *zapSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := []interface{}{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"took", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		}
		for _, attr := range s.Attributes() {
			fields = append(fields, string(attr.Key), attr.Value.Emit())
		}
		if s.Status().Description != "" {
			fields = append(fields, "error", s.Status().Description)
		}
		e.sugar.Debugw("Span finished", fields...)
	}
	return nil
}

func (e *zapSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}
