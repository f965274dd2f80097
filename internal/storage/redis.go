package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// RedisBackend stores each session as a hash at session:<id> with a
// version field and the serialized data.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps an existing client. ttl of zero keeps sessions
// forever; otherwise every write refreshes the expiry.
func NewRedisBackend(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBackend{client: client, ttl: ttl, logger: logger}
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

func (r *RedisBackend) Load(ctx context.Context, id uuid.UUID) (Record, error) {
	vals, err := r.client.HMGet(ctx, sessionKey(id), "version", "data").Result()
	if err != nil {
		r.logger.Error("Failed to load session", "session_id", id, "error", err)
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}
	return recordFromHash(id, vals)
}

func recordFromHash(id uuid.UUID, vals []any) (Record, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Record{}, state.NotFoundf("session %s", id)
	}
	vs, _ := vals[0].(string)
	data, _ := vals[1].(string)
	version, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("corrupt version for session %s: %w", id, err)
	}
	return Record{ID: id, Version: version, Data: []byte(data)}, nil
}

func (r *RedisBackend) Create(ctx context.Context, rec Record) error {
	key := sessionKey(rec.ID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return state.Statef("session %s already exists", rec.ID)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			r.write(ctx, p, key, rec)
			return nil
		})
		return err
	}, key)
	return r.casError(rec.ID, err)
}

func (r *RedisBackend) Save(ctx context.Context, rec Record, expectedVersion int64) error {
	key := sessionKey(rec.ID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		vs, err := tx.HGet(ctx, key, "version").Result()
		if errors.Is(err, redis.Nil) {
			return state.NotFoundf("session %s", rec.ID)
		}
		if err != nil {
			return err
		}
		current, err := strconv.ParseInt(vs, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt version for session %s: %w", rec.ID, err)
		}
		if current != expectedVersion {
			return state.Statef("session %s is at version %d, expected %d", rec.ID, current, expectedVersion)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			r.write(ctx, p, key, rec)
			return nil
		})
		return err
	}, key)
	return r.casError(rec.ID, err)
}

func (r *RedisBackend) write(ctx context.Context, p redis.Pipeliner, key string, rec Record) {
	p.HSet(ctx, key, "version", rec.Version, "data", rec.Data)
	if r.ttl > 0 {
		p.Expire(ctx, key, r.ttl)
	}
}

func (r *RedisBackend) casError(id uuid.UUID, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return state.Statef("session %s was modified concurrently", id)
	case errors.Is(err, state.ErrState), errors.Is(err, state.ErrNotFound):
		return err
	}
	r.logger.Error("Failed to write session", "session_id", id, "error", err)
	return fmt.Errorf("failed to write session: %w", err)
}

func (r *RedisBackend) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		r.logger.Error("Failed to delete session", "session_id", id, "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
