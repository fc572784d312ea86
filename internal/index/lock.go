// Package index implements the hybrid dense+sparse vector index (C2): an
// in-process HNSW graph for approximate nearest-neighbor dense search, a
// bleve BM25 index for sparse keyword search, fused by Reciprocal Rank
// Fusion, all guarded by a single-writer/many-reader file lock so only one
// process rebuilds the on-disk index at a time.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriteLock is a cross-process exclusive lock guarding index mutation.
// Readers never take this lock; the single-writer discipline is enforced by
// convention (only Store.Upsert/Delete/Save call Lock).
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriteLock creates a write lock for the given index directory, backed
// by a `<dir>/.index.lock` file.
func NewWriteLock(dir string) *WriteLock {
	lockPath := filepath.Join(dir, ".index.lock")
	return &WriteLock{path: lockPath, flock: flock.New(lockPath)}
}

// Lock acquires the exclusive lock, blocking until it is available.
func (l *WriteLock) Lock() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquiring write lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *WriteLock) TryLock() (bool, error) {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquiring write lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an already-unlocked WriteLock.
func (l *WriteLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("releasing write lock: %w", err)
	}
	l.locked = false
	return nil
}
