package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	_, client := newRedis(t)
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"redis":  NewRedisBackend(client, time.Hour, quietLogger()),
		"sqlite": sqlite,
	}
}

func TestBackend_Contract(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Ping(ctx))

			id := uuid.New()
			_, err := b.Load(ctx, id)
			assert.ErrorIs(t, err, state.ErrNotFound)

			require.NoError(t, b.Create(ctx, Record{ID: id, Version: 1, Data: []byte(`{"v":1}`)}))
			err = b.Create(ctx, Record{ID: id, Version: 1, Data: []byte(`{}`)})
			assert.ErrorIs(t, err, state.ErrState)

			rec, err := b.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(1), rec.Version)
			assert.JSONEq(t, `{"v":1}`, string(rec.Data))

			require.NoError(t, b.Save(ctx, Record{ID: id, Version: 2, Data: []byte(`{"v":2}`)}, 1))

			// a writer still holding version 1 loses
			err = b.Save(ctx, Record{ID: id, Version: 2, Data: []byte(`{"v":"stale"}`)}, 1)
			assert.ErrorIs(t, err, state.ErrState)

			rec, err = b.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(2), rec.Version)
			assert.JSONEq(t, `{"v":2}`, string(rec.Data))

			err = b.Save(ctx, Record{ID: uuid.New(), Version: 2, Data: []byte(`{}`)}, 1)
			assert.ErrorIs(t, err, state.ErrNotFound)

			require.NoError(t, b.Delete(ctx, id))
			_, err = b.Load(ctx, id)
			assert.ErrorIs(t, err, state.ErrNotFound)
		})
	}
}

func TestRedisBackend_TTL(t *testing.T) {
	mr, client := newRedis(t)
	b := NewRedisBackend(client, time.Minute, quietLogger())
	id := uuid.New()
	require.NoError(t, b.Create(context.Background(), Record{ID: id, Version: 1, Data: []byte(`{}`)}))
	assert.Equal(t, time.Minute, mr.TTL("session:"+id.String()))

	mr.FastForward(2 * time.Minute)
	_, err := b.Load(context.Background(), id)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestSQLiteBackend_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	b, err := OpenSQLite(path, quietLogger())
	require.NoError(t, err)
	id := uuid.New()
	require.NoError(t, b.Create(context.Background(), Record{ID: id, Version: 1, Data: []byte(`{"a":1}`)}))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(path, quietLogger())
	require.NoError(t, err)
	defer b.Close()
	rec, err := b.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
}

func newSession() *state.Session {
	entry := state.Turn{
		Situation:  "The meeting room empties and Priya turns to you.",
		TurnOrder:  []string{"priya"},
		Directives: map[string]string{"priya": "Open neutrally."},
		Choices: []state.Choice{
			{Label: "a", Valence: state.ValencePositive},
			{Label: "b", Valence: state.ValenceNeutral},
			{Label: "c", Valence: state.ValenceNegative},
		},
	}
	chars := []state.CharacterInstance{{ID: "priya", Name: "Priya", Persona: "A manager."}}
	return state.NewSession(state.PlayerProfile{Role: "engineer"}, "m", "s", 100, 5, entry, chars)
}

func TestStore_CreateGetSave(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, err := NewStore(backend, 8, quietLogger())
	require.NoError(t, err)

	sess := newSession()
	require.NoError(t, store.Create(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	// mutating a returned copy must not leak into the cache
	got.HP = 1
	got.Characters[0].Remember()
	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, again.HP)

	again.HP = 90
	require.NoError(t, store.Save(ctx, again))
	assert.Equal(t, int64(2), again.Version)

	rec, err := backend.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)

	latest, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, latest.HP)
	assert.Equal(t, int64(2), latest.Version)
}

func TestStore_StaleSaveRejected(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(NewMemoryBackend(), 8, quietLogger())
	require.NoError(t, err)
	sess := newSession()
	require.NoError(t, store.Create(ctx, sess))

	a, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	b, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)

	a.HP = 80
	require.NoError(t, store.Save(ctx, a))

	b.HP = 10
	err = store.Save(ctx, b)
	assert.ErrorIs(t, err, state.ErrState)
	assert.Equal(t, int64(1), b.Version)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, got.HP)
}

func TestStore_FailedWriteLeavesCache(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, err := NewStore(backend, 8, quietLogger())
	require.NoError(t, err)
	sess := newSession()
	require.NoError(t, store.Create(ctx, sess))

	backend.SetSaveError(errors.New("disk full"))
	working, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	working.HP = 50
	require.Error(t, store.Save(ctx, working))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.HP)
	assert.Equal(t, int64(1), got.Version)
}

func TestStore_ReadThroughAfterEviction(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, err := NewStore(backend, 1, quietLogger())
	require.NoError(t, err)

	first, second := newSession(), newSession()
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 2, backend.Len())
}

func TestMemoryLocker(t *testing.T) {
	testLocker(t, NewMemoryLocker())
}

func TestRedisLocker(t *testing.T) {
	_, client := newRedis(t)
	testLocker(t, NewRedisLocker(client, time.Minute, quietLogger()))
}

func testLocker(t *testing.T, l Locker) {
	ctx := context.Background()
	id, other := uuid.New(), uuid.New()

	unlock, err := l.TryLock(ctx, id)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, id)
	assert.ErrorIs(t, err, state.ErrConcurrency)

	unlockOther, err := l.TryLock(ctx, other)
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock() // idempotent

	unlock, err = l.TryLock(ctx, id)
	require.NoError(t, err)
	unlock()
}

func TestLocker_OneWinnerUnderContention(t *testing.T) {
	_, client := newRedis(t)
	for name, l := range map[string]Locker{
		"memory": NewMemoryLocker(),
		"redis":  NewRedisLocker(client, time.Minute, quietLogger()),
	} {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins, conflicts := 0, 0
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.TryLock(context.Background(), id)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						t.Cleanup(unlock)
						wins++
					} else if errors.Is(err, state.ErrConcurrency) {
						conflicts++
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
			assert.Equal(t, 7, conflicts)
		})
	}
}

func TestRedisLocker_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, time.Second, quietLogger())
	id := uuid.New()

	unlockOld, err := l.TryLock(context.Background(), id)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlockNew, err := l.TryLock(context.Background(), id)
	require.NoError(t, err)

	unlockOld()
	assert.True(t, mr.Exists("session-lock:"+id.String()))

	unlockNew()
	assert.False(t, mr.Exists("session-lock:"+id.String()))
}

func TestRedisLocker_RenewedWhileHeld(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, 300*time.Millisecond, quietLogger())
	l.renewEvery = 20 * time.Millisecond
	id := uuid.New()
	key := "session-lock:" + id.String()

	unlock, err := l.TryLock(context.Background(), id)
	require.NoError(t, err)

	// hold well past the ttl, in steps shorter than it
	for range 5 {
		mr.FastForward(200 * time.Millisecond)
		require.Eventually(t, func() bool {
			return mr.TTL(key) > 200*time.Millisecond
		}, time.Second, 5*time.Millisecond)
	}
	_, err = l.TryLock(context.Background(), id)
	assert.ErrorIs(t, err, state.ErrConcurrency)

	unlock()
	assert.False(t, mr.Exists(key))

	// a released lock is no longer extended
	unlock, err = l.TryLock(context.Background(), id)
	require.NoError(t, err)
	unlock()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, mr.Exists(key))
}
