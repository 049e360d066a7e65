package fetcher

import (
	"context"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/AzielCF/az-mediacache/mediacache/fetcher")

// startSpan opens a fetch span. Only scheme and host are recorded; full
// references may carry signed query strings.
func startSpan(ctx context.Context, name, ref string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if u, err := url.Parse(ref); err == nil {
		attrs = append(attrs,
			attribute.String("media.ref.scheme", u.Scheme),
			attribute.String("media.ref.host", u.Host),
		)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func endSpan(span trace.Span, payloadSize int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("media.payload.size", payloadSize))
	}
	span.End()
}
