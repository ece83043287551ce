package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// SpanCarrier is a span context flattened to W3C header values, stored on
// outbox rows so the relay can continue the trace of the request that wrote
// the event.
type SpanCarrier struct {
	Traceparent string
	Tracestate  string
}

func Capture(ctx context.Context) SpanCarrier {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return SpanCarrier{Traceparent: m["traceparent"], Tracestate: m["tracestate"]}
}

func (c SpanCarrier) Empty() bool {
	return c.Traceparent == "" && c.Tracestate == ""
}

// Resume returns ctx parented on the captured span.
func (c SpanCarrier) Resume(ctx context.Context) context.Context {
	if c.Empty() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": c.Traceparent,
		"tracestate":  c.Tracestate,
	})
}

// TraceID returns the hex trace id of the active span, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
