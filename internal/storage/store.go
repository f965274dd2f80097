package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

const DefaultCacheSize = 512

type cached struct {
	version int64
	data    []byte
}

// Store is the session repository used by the engine: a read-through
// LRU of serialized sessions in front of a durable Backend. The cache
// is only written after the backend accepts a write, so it never holds
// a version the backend does not.
type Store struct {
	backend Backend
	cache   *lru.Cache[uuid.UUID, cached]
	logger  *slog.Logger
}

func NewStore(backend Backend, cacheSize int, logger *slog.Logger) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[uuid.UUID, cached](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Store{backend: backend, cache: cache, logger: logger}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Store) Close() error {
	s.cache.Purge()
	return s.backend.Close()
}

// Get returns a private copy of the session; callers may mutate it freely.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*state.Session, error) {
	if c, ok := s.cache.Get(id); ok {
		return decode(c.data)
	}
	rec, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := decode(rec.Data)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, cached{version: rec.Version, data: rec.Data})
	return sess, nil
}

// Create persists a new session at version 1.
func (s *Store) Create(ctx context.Context, sess *state.Session) error {
	next := *sess
	next.Version = 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.backend.Create(ctx, Record{ID: sess.ID, Version: 1, Data: data}); err != nil {
		return err
	}
	sess.Version = 1
	s.cache.Add(sess.ID, cached{version: 1, data: data})
	return nil
}

// Save commits sess if nobody else has committed since it was loaded.
// sess.Version must be the version it was loaded at; on success it is
// advanced by one. A conflict returns state.ErrState and evicts the
// cached copy so the next Get reads the winner.
func (s *Store) Save(ctx context.Context, sess *state.Session) error {
	expected := sess.Version
	next := *sess
	next.Version = expected + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = s.backend.Save(ctx, Record{ID: sess.ID, Version: next.Version, Data: data}, expected)
	if err != nil {
		if errors.Is(err, state.ErrState) || errors.Is(err, state.ErrNotFound) {
			s.cache.Remove(sess.ID)
			s.logger.Warn("Discarded stale session write", "session_id", sess.ID, "expected_version", expected, "error", err)
		}
		return err
	}
	sess.Version = next.Version
	s.cache.Add(sess.ID, cached{version: next.Version, data: data})
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.cache.Remove(id)
	return s.backend.Delete(ctx, id)
}

func decode(data []byte) (*state.Session, error) {
	var sess state.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}
