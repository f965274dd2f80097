package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// MemoryBackend is an in-process Backend for tests and local runs.
type MemoryBackend struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]Record
	pingError error
	saveError error
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[uuid.UUID]Record)}
}

// SetPingError configures Ping to fail with err; nil restores success.
func (m *MemoryBackend) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes every Save fail with err; nil restores success.
func (m *MemoryBackend) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MemoryBackend) Close() error {
	return nil
}

func (m *MemoryBackend) Load(ctx context.Context, id uuid.UUID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, state.NotFoundf("session %s", id)
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return rec, nil
}

func (m *MemoryBackend) Create(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return state.Statef("session %s already exists", rec.ID)
	}
	rec.Data = append([]byte(nil), rec.Data...)
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryBackend) Save(ctx context.Context, rec Record, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	cur, ok := m.records[rec.ID]
	if !ok {
		return state.NotFoundf("session %s", rec.ID)
	}
	if cur.Version != expectedVersion {
		return state.Statef("session %s is at version %d, expected %d", rec.ID, cur.Version, expectedVersion)
	}
	rec.Data = append([]byte(nil), rec.Data...)
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Len reports how many sessions are stored.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
