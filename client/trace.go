package client

import (
	"context"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startSpan opens a client span for one API call attempt. The tracer
// defaults to a noop implementation, so uninstrumented callers pay
// nothing.
func (c *Connection) startSpan(ctx context.Context, method string, u *url.URL) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "webapi.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", u.Redacted()),
		),
	)
}
