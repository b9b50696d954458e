// Package otel provides OpenTelemetry instrumentation helpers shared by the server packages.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on spans across the server.
const (
	AttrStoreName      = attribute.Key("store.name")
	AttrCollection     = attribute.Key("entity.collection")
	AttrEntityName     = attribute.Key("entity.name")
	AttrEventKind      = attribute.Key("event.kind")
	AttrRepositoryID   = attribute.Key("repository.id")
	AttrRepositoryName = attribute.Key("repository.name")
	AttrBackendKind    = attribute.Key("backend.kind")
	AttrCacheName      = attribute.Key("cache.name")
	AttrCacheHit       = attribute.Key("cache.hit")
	AttrCacheDisabled  = attribute.Key("cache.disabled")
	AttrResultCount    = attribute.Key("result.count")
	AttrHookStatus     = attribute.Key("hook.status")
)

// StartSpan starts a span when tracer is set; otherwise it returns ctx
// unchanged together with a no-op span that is safe to End.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span as failed.
// The status description stays generic so that error details (paths, queries)
// only appear in span events.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
