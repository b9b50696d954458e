// Package store provides the persistence primitive behind every entity collection.
// A store holds exactly one snapshot: the full collection plus a collection-wide
// modification timestamp. There are no partial or field-level writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSnapshot is returned when a persisted snapshot cannot be decoded.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the persisted state of one entity collection.
type Snapshot[T any] struct {
	// Entities maps entity names to entities. Names are unique within a snapshot.
	Entities map[string]*T `json:"entities"`

	// LastModified is updated on every structural mutation of the collection.
	LastModified time.Time `json:"lastModified"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot[T any]() *Snapshot[T] {
	return &Snapshot[T]{Entities: make(map[string]*T)}
}

// Store is the single durability mechanism of a collection.
type Store[T any] interface {
	// Get returns the persisted snapshot, or nil when nothing was stored yet.
	Get(ctx context.Context) (*Snapshot[T], error)

	// Set replaces the persisted snapshot.
	Set(ctx context.Context, snapshot *Snapshot[T]) error
}

func encode[T any](snapshot *Snapshot[T]) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: snapshot cannot be nil", ErrInvalidSnapshot)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func decode[T any](data []byte) (*Snapshot[T], error) {
	var snapshot Snapshot[T]
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if snapshot.Entities == nil {
		snapshot.Entities = make(map[string]*T)
	}
	return &snapshot, nil
}
