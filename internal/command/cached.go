package command

import (
	"context"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/scmgo/scm-server/internal/cache"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/otel"
	"github.com/scmgo/scm-server/internal/telemetry"
)

// Cache names of the command results.
const (
	TagsCacheName     = "scm.cache.cmd.tags"
	BranchesCacheName = "scm.cache.cmd.branches"
	LogCacheName      = "scm.cache.cmd.log"
)

// memo carries what every builder needs to memoize one backend call.
type memo struct {
	repo         *model.Repository
	cache        cache.Cache
	cacheName    string
	metrics      *telemetry.CacheMetrics
	tracer       trace.Tracer
	loads        *singleflight.Group
	disableCache bool
}

func (m *memo) flightKey(key cache.Key) string {
	return m.cacheName + "/" + key.RepositoryID + "/" + strconv.FormatUint(key.Params, 16)
}

// cloner is a result type that can hand out private copies of itself.
type cloner[V any] interface {
	*V
	Clone() *V
}

// fetch returns the cached result for key or calls load and caches a non-nil
// result. Concurrent misses for the same key share one load, which runs
// detached from the cancellation of the caller that started it. Errors of
// load are returned unchanged and never cached. Callers always receive their
// own copy; the cached value is never handed out.
func fetch[V any, P cloner[V]](ctx context.Context, m *memo, what string, key cache.Key, load func(context.Context) (*V, error)) (*V, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "command.Get"+what, trace.WithAttributes(
		otel.AttrRepositoryID.String(m.repo.ID),
		otel.AttrRepositoryName.String(m.repo.Name),
		otel.AttrCacheName.String(m.cacheName),
		otel.AttrCacheDisabled.Bool(m.disableCache),
	))
	defer span.End()

	if m.disableCache {
		slog.DebugContext(ctx, "get "+what+" for repository with disabled cache", "repository", m.repo.Name)
		m.metrics.RecordCacheRequest(ctx, m.cacheName, telemetry.CacheResultDisabled)
		result, err := load(ctx)
		otel.RecordError(span, err)
		return result, err
	}

	if cached, ok := m.cache.Get(ctx, key); ok {
		if result, ok := cached.(*V); ok {
			slog.DebugContext(ctx, "get "+what+" for repository from cache", "repository", m.repo.Name)
			span.SetAttributes(otel.AttrCacheHit.Bool(true))
			return P(result).Clone(), nil
		}
	}
	span.SetAttributes(otel.AttrCacheHit.Bool(false))

	loaded, err, shared := m.loads.Do(m.flightKey(key), func() (any, error) {
		result, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if result != nil {
			m.cache.Put(ctx, key, P(result).Clone())
		}
		return result, nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	result, _ := loaded.(*V)
	if shared && result != nil {
		slog.DebugContext(ctx, "get "+what+" for repository shared a concurrent load", "repository", m.repo.Name)
		return P(result).Clone(), nil
	}
	return result, nil
}
