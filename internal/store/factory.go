package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/store/dbauth"
)

// Factory is the single decision point between file, database and memory
// persistence. Every collection of one server uses the same storage type.
type Factory struct {
	storageType string
	baseDir     string
	pool        *pgxpool.Pool
	tracer      trace.Tracer
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithTracer sets the tracer used by database stores
func WithTracer(tracer trace.Tracer) FactoryOption {
	return func(f *Factory) {
		f.tracer = tracer
	}
}

// WithPool injects an existing connection pool; the factory then does not dial
// the database itself. The pool is still closed by Cleanup.
func WithPool(pool *pgxpool.Pool) FactoryOption {
	return func(f *Factory) {
		f.pool = pool
	}
}

// NewFactory creates a factory for the configured storage type.
func NewFactory(ctx context.Context, cfg *config.Config, opts ...FactoryOption) (*Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	f := &Factory{
		storageType: cfg.GetStorageType(),
		baseDir:     cfg.GetFileStorageBaseDir(),
	}
	for _, opt := range opts {
		opt(f)
	}

	switch f.storageType {
	case config.StorageTypeFile:
		if err := os.MkdirAll(f.baseDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", f.baseDir, err)
		}
		slog.Info("Using file storage", "base_dir", f.baseDir)
	case config.StorageTypeDatabase:
		if f.pool == nil {
			pool, err := buildConnectionPool(ctx, cfg.Database)
			if err != nil {
				return nil, fmt.Errorf("failed to create database connection pool: %w", err)
			}
			f.pool = pool
		}
		slog.Info("Using database storage", "host", cfg.Database.Host, "database", cfg.Database.Database)
	case config.StorageTypeMemory:
		slog.Warn("Using memory storage, entities are lost on restart")
	default:
		return nil, fmt.Errorf("unknown storage type: %s", f.storageType)
	}

	return f, nil
}

// Type returns the storage type name
func (f *Factory) Type() string {
	return f.storageType
}

// Ping checks the database connection. Other storage types are always reachable.
func (f *Factory) Ping(ctx context.Context) error {
	if f.pool == nil {
		return nil
	}
	return f.pool.Ping(ctx)
}

// Cleanup releases the database connection pool, if any.
func (f *Factory) Cleanup() {
	if f.pool != nil {
		slog.Info("Closing database connection pool")
		f.pool.Close()
		f.pool = nil
	}
}

// Open returns the store of the named collection.
func Open[T any](f *Factory, name string) Store[T] {
	switch f.storageType {
	case config.StorageTypeDatabase:
		return NewDatabaseStore[T](f.pool, name, f.tracer)
	case config.StorageTypeMemory:
		return NewMemoryStore[T]()
	default:
		return NewFileStore[T](f.baseDir, name)
	}
}

func buildConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	poolConfig.MaxConnLifetime = cfg.GetConnMaxLifetime()

	if cfg.DynamicAuth != nil {
		beforeConnect, err := dbauth.BeforeConnect(ctx, cfg, cfg.User)
		if err != nil {
			return nil, fmt.Errorf("failed to configure dynamic authentication: %w", err)
		}
		poolConfig.BeforeConnect = beforeConnect
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
