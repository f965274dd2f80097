package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

const DefaultLockTTL = 2 * time.Minute

// Locker grants exclusive per-session turn processing. TryLock never
// waits: if the session is held it returns state.ErrConcurrency.
type Locker interface {
	TryLock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
}

// RedisLocker is a Locker shared by every API instance using one Redis.
// The lock expires after ttl so a crashed holder cannot wedge a session;
// a live holder extends it every renewEvery until it unlocks.
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	renewEvery time.Duration
	logger     *slog.Logger
}

var _ Locker = (*RedisLocker)(nil)

// releaseScript deletes the lock only if we still own it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// renewScript extends the lock only if we still own it
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, ttl: ttl, renewEvery: ttl / 3, logger: logger}
}

func lockKey(id uuid.UUID) string {
	return "session-lock:" + id.String()
}

func (l *RedisLocker) TryLock(ctx context.Context, id uuid.UUID) (func(), error) {
	key := lockKey(id)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !ok {
		return nil, state.ErrConcurrency
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), id, key, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			// release must survive a cancelled request context
			if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); err != nil {
				l.logger.Error("Failed to release session lock", "session_id", id, "error", err)
			}
		})
	}, nil
}

// keepAlive extends the lock until stop is closed or the lock turns out
// to belong to someone else.
func (l *RedisLocker) keepAlive(ctx context.Context, id uuid.UUID, key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				l.logger.Warn("Failed to extend session lock", "session_id", id, "error", err)
				continue
			}
			if n == 0 {
				l.logger.Warn("Session lock lost while held", "session_id", id)
				return
			}
		}
	}
}

// MemoryLocker is a Locker for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

var _ Locker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[uuid.UUID]struct{})}
}

func (l *MemoryLocker) TryLock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return nil, state.ErrConcurrency
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, nil
}
