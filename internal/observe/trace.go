package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/callorder"

// CallIDKey is the span attribute carrying the telephony call id.
const CallIDKey = attribute.Key("callorder.call_id")

type callIDKey struct{}

// Tracer returns the callorder tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartCallSpan starts a span for one dialog step of callID. The call id is
// set as the [CallIDKey] attribute and kept in the returned context, so
// [Logger] adds it to every line logged for the step, including work that
// outlives the request through [context.WithoutCancel].
func StartCallSpan(ctx context.Context, name, callID string) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, callIDKey{}, callID)
	return StartSpan(ctx, name, trace.WithAttributes(CallIDKey.String(callID)))
}

// CallID returns the call id stored by [StartCallSpan], or "".
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// CorrelationID returns the trace id of the span in ctx, or "". It is echoed
// to Twilio in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the call id, trace id and span id
// found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := CallID(ctx); id != "" {
		l = l.With(slog.String("call_id", id))
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
