// Package cache provides the named, bounded caches used to memoize backend
// command results.
package cache

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/telemetry"
)

// Cache is a concurrency safe key/value cache.
//
//go:generate mockgen -destination=mocks/mock_cache.go -package=mocks -source=cache.go Cache,Manager
type Cache interface {
	// Get returns the cached value for key
	Get(ctx context.Context, key Key) (any, bool)

	// Put stores value under key, evicting the least recently used entry when full
	Put(ctx context.Context, key Key, value any)

	// Remove drops key
	Remove(ctx context.Context, key Key)

	// Clear drops every entry
	Clear(ctx context.Context)

	// Len returns the number of cached entries
	Len() int
}

// Manager hands out named caches. Asking twice for the same name returns the
// same cache.
type Manager interface {
	GetCache(name string) Cache
}

// LRUManager creates least-recently-used caches bounded by the configured
// capacities.
type LRUManager struct {
	cfg     config.CacheConfig
	metrics *telemetry.CacheMetrics

	mu     sync.Mutex
	caches map[string]*lruCache
}

// NewLRUManager creates a manager. A nil metrics value disables cache metrics.
func NewLRUManager(cfg config.CacheConfig, metrics *telemetry.CacheMetrics) *LRUManager {
	return &LRUManager{
		cfg:     cfg,
		metrics: metrics,
		caches:  make(map[string]*lruCache),
	}
}

// GetCache returns the named cache, creating it on first use.
func (m *LRUManager) GetCache(name string) Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[name]; ok {
		return c
	}

	capacity := m.cfg.CacheCapacity(name)
	entries, err := lru.New[Key, any](capacity)
	if err != nil {
		// only reachable with a non-positive capacity, which CacheCapacity never returns
		panic(err)
	}
	slog.Debug("Created cache", "cache", name, "capacity", capacity)

	c := &lruCache{name: name, entries: entries, metrics: m.metrics}
	m.caches[name] = c
	return c
}

// Clear drops the entries of every cache created so far.
func (m *LRUManager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.caches {
		c.Clear(ctx)
	}
}

type lruCache struct {
	name    string
	entries *lru.Cache[Key, any]
	metrics *telemetry.CacheMetrics
}

func (c *lruCache) Get(ctx context.Context, key Key) (any, bool) {
	value, ok := c.entries.Get(key)
	result := telemetry.CacheResultMiss
	if ok {
		result = telemetry.CacheResultHit
	}
	c.metrics.RecordCacheRequest(ctx, c.name, result)
	return value, ok
}

func (c *lruCache) Put(_ context.Context, key Key, value any) {
	c.entries.Add(key, value)
}

func (c *lruCache) Remove(_ context.Context, key Key) {
	c.entries.Remove(key)
}

func (c *lruCache) Clear(ctx context.Context) {
	slog.DebugContext(ctx, "Clearing cache", "cache", c.name)
	c.entries.Purge()
}

func (c *lruCache) Len() int {
	return c.entries.Len()
}
