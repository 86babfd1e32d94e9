// Package storage persists history snapshots between process restarts.
package storage

import (
	"context"
	"errors"
)

// ErrNoSnapshot signals that nothing has been persisted yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Backend stores a single opaque snapshot document.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// NoopBackend keeps nothing; history lives only in memory.
type NoopBackend struct{}

// Load always returns ErrNoSnapshot.
func (NoopBackend) Load(context.Context) ([]byte, error) { return nil, ErrNoSnapshot }

// Save discards the snapshot.
func (NoopBackend) Save(context.Context, []byte) error { return nil }

// Close is a no-op.
func (NoopBackend) Close() error { return nil }
