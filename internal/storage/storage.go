package storage

import (
	"context"

	"github.com/google/uuid"
)

// Record is one serialized session as held by a Backend. Version is the
// session's commit counter and is what compare-and-set checks against.
type Record struct {
	ID      uuid.UUID
	Version int64
	Data    []byte
}

// Backend is durable session storage. Implementations must make Save a
// compare-and-set on version so a stale writer can never overwrite a
// newer commit.
type Backend interface {
	Ping(ctx context.Context) error
	Close() error

	// Load returns state.ErrNotFound when no record exists.
	Load(ctx context.Context, id uuid.UUID) (Record, error)
	// Create returns state.ErrState if a record with the id exists.
	Create(ctx context.Context, rec Record) error
	// Save replaces the record only if the stored version equals
	// expectedVersion; otherwise it returns state.ErrState.
	Save(ctx context.Context, rec Record, expectedVersion int64) error
	Delete(ctx context.Context, id uuid.UUID) error
}
