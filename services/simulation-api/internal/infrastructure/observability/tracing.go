package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "persona-sim/simulation-api"

// GetTracer returns the global tracer of the simulation service.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// TurnAttributes returns the attributes of a turn span.
func TurnAttributes(side, threadID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("turn.side", side),
		attribute.String("turn.thread_id", threadID),
	}
}

// StartTurnSpan starts the span of one generated turn.
func StartTurnSpan(ctx context.Context, tracer trace.Tracer, side, threadID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "turn.generate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(TurnAttributes(side, threadID)...),
	)
}

// RecordError records err on span with a severity label.
func RecordError(span trace.Span, err error, severity string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.severity", severity))
}

// AddRetryEvent marks a retried run creation on the span in ctx.
func AddRetryEvent(ctx context.Context, side string) {
	trace.SpanFromContext(ctx).AddEvent("run.retry",
		trace.WithAttributes(attribute.String("turn.side", side)),
	)
}
