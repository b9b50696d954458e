package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// fileStore persists a snapshot as one JSON document per collection. A lock
// file next to the document keeps other processes sharing the directory out
// while a snapshot is read or replaced.
type fileStore[T any] struct {
	mu   sync.Mutex
	dir  string
	name string
	lock *flock.Flock
}

// NewFileStore creates a store writing <dir>/<name>.json.
func NewFileStore[T any](dir, name string) Store[T] {
	f := &fileStore[T]{dir: dir, name: name}
	f.lock = flock.New(f.path() + ".lock")
	return f
}

func (f *fileStore[T]) path() string {
	return filepath.Join(f.dir, f.name+".json")
}

// Get reads the snapshot. A missing file means nothing was stored yet.
func (f *fileStore[T]) Get(_ context.Context) (*Snapshot[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.RLock(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock store '%s': %w", f.name, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	// #nosec G304 -- path is built from the configured base dir and a fixed collection name
	data, err := os.ReadFile(f.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store '%s': %w", f.name, err)
	}

	snapshot, err := decode[T](data)
	if err != nil {
		return nil, fmt.Errorf("failed to load store '%s': %w", f.name, err)
	}
	return snapshot, nil
}

// Set writes the snapshot to a temporary file and renames it into place.
func (f *fileStore[T]) Set(_ context.Context, snapshot *Snapshot[T]) error {
	data, err := encode(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode store '%s': %w", f.name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("failed to create store directory for '%s': %w", f.name, err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock store '%s': %w", f.name, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	filePath := f.path()
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file for store '%s': %w", f.name, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename store file for '%s': %w", f.name, err)
	}

	return nil
}
