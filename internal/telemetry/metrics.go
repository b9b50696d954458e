// Package telemetry provides OpenTelemetry instrumentation for the SCM server.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// EntityMetricsMeterName is the name used for the entity metrics meter
	EntityMetricsMeterName = "github.com/scmgo/scm-server/manager"

	// CacheMetricsMeterName is the name used for the command cache metrics meter
	CacheMetricsMeterName = "github.com/scmgo/scm-server/cache"

	// HookMetricsMeterName is the name used for the hook bridge metrics meter
	HookMetricsMeterName = "github.com/scmgo/scm-server/hook"
)

// Cache lookup results.
const (
	CacheResultHit      = "hit"
	CacheResultMiss     = "miss"
	CacheResultDisabled = "disabled"
)

// EntityMetrics holds the OpenTelemetry instruments for entity collections
type EntityMetrics struct {
	entitiesTotal metric.Int64Gauge
}

// NewEntityMetrics creates a new EntityMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewEntityMetrics(provider metric.MeterProvider) (*EntityMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	entitiesTotal, err := provider.Meter(EntityMetricsMeterName).Int64Gauge(
		"scm_srv_entities_total",
		metric.WithDescription("Number of entities in each collection"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	return &EntityMetrics{entitiesTotal: entitiesTotal}, nil
}

// RecordEntitiesTotal records the current number of entities in a collection
func (m *EntityMetrics) RecordEntitiesTotal(ctx context.Context, collection string, count int) {
	if m == nil || m.entitiesTotal == nil {
		return
	}
	m.entitiesTotal.Record(ctx, int64(count), metric.WithAttributes(attribute.String("collection", collection)))
}

// CacheMetrics holds the OpenTelemetry instruments for the command caches
type CacheMetrics struct {
	requestsTotal metric.Int64Counter
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	requestsTotal, err := provider.Meter(CacheMetricsMeterName).Int64Counter(
		"scm_srv_cache_requests_total",
		metric.WithDescription("Number of command cache lookups by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{requestsTotal: requestsTotal}, nil
}

// RecordCacheRequest counts one lookup of the named cache
func (m *CacheMetrics) RecordCacheRequest(ctx context.Context, cacheName, result string) {
	if m == nil || m.requestsTotal == nil {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cacheName),
		attribute.String("result", result),
	))
}

// HookMetrics holds the OpenTelemetry instruments for hook notifications
type HookMetrics struct {
	notificationsTotal metric.Int64Counter
}

// NewHookMetrics creates a new HookMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewHookMetrics(provider metric.MeterProvider) (*HookMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	notificationsTotal, err := provider.Meter(HookMetricsMeterName).Int64Counter(
		"scm_srv_hook_notifications_total",
		metric.WithDescription("Number of hook notifications by backend and outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &HookMetrics{notificationsTotal: notificationsTotal}, nil
}

// RecordNotification counts one handled hook notification
func (m *HookMetrics) RecordNotification(ctx context.Context, backendKind, status string) {
	if m == nil || m.notificationsTotal == nil {
		return
	}
	m.notificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backendKind),
		attribute.String("status", status),
	))
}
