package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/inkhouse/inkbook/libs/kafkax"

// InjectTraceHeaders adds the span in ctx to headers as traceparent and
// tracestate entries, replacing stale ones.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	h := headerCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return h
}

// ExtractTraceContext parents ctx on the producer span recorded in msg.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	h := headerCarrier(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &h)
}

// startConsumeSpan opens a consumer span linked to the producing request, so
// an appointment booking and its notification share one trace.
func startConsumeSpan(ctx context.Context, msg kafka.Message, meta EventMeta) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ExtractTraceContext(ctx, msg), "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
			attribute.String("inkbook.aggregate_id", meta.AggregateID),
		),
	)
}

type headerCarrier []kafka.Header

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (h *headerCarrier) Get(key string) string {
	return HeaderValue(*h, key)
}

func (h *headerCarrier) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, len(*h))
	for i, hdr := range *h {
		keys[i] = hdr.Key
	}
	return keys
}
