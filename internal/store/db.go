package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/scmgo/scm-server/internal/otel"
)

const (
	selectSnapshotQuery = `SELECT data FROM entity_store WHERE name = $1`

	upsertSnapshotQuery = `
INSERT INTO entity_store (name, data, last_modified, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (name) DO UPDATE
SET data = EXCLUDED.data,
    last_modified = EXCLUDED.last_modified,
    updated_at = now()`
)

// dbStore persists a snapshot as a JSONB document in the entity_store table,
// one row per collection.
type dbStore[T any] struct {
	pool   *pgxpool.Pool
	name   string
	tracer trace.Tracer
}

// NewDatabaseStore creates a PostgreSQL backed store for the named collection.
// The caller owns the pool.
func NewDatabaseStore[T any](pool *pgxpool.Pool, name string, tracer trace.Tracer) Store[T] {
	return &dbStore[T]{pool: pool, name: name, tracer: tracer}
}

func (d *dbStore[T]) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, d.tracer, name,
		trace.WithAttributes(semconv.DBSystemPostgreSQL, otel.AttrStoreName.String(d.name)),
	)
}

func (d *dbStore[T]) Get(ctx context.Context) (*Snapshot[T], error) {
	ctx, span := d.startSpan(ctx, "dbStore.Get")
	defer span.End()

	var data []byte
	err := d.pool.QueryRow(ctx, selectSnapshotQuery, d.name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read store '%s': %w", d.name, err)
	}

	snapshot, err := decode[T](data)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to load store '%s': %w", d.name, err)
	}
	return snapshot, nil
}

func (d *dbStore[T]) Set(ctx context.Context, snapshot *Snapshot[T]) error {
	ctx, span := d.startSpan(ctx, "dbStore.Set")
	defer span.End()

	data, err := encode(snapshot)
	if err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to encode store '%s': %w", d.name, err)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, upsertSnapshotQuery, d.name, data, snapshot.LastModified); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to write store '%s': %w", d.name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to commit store '%s': %w", d.name, err)
	}
	return nil
}
