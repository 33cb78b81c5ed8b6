// Package idempotency remembers which todo an Idempotency-Key created, so a
// retried POST returns the original todo instead of creating a duplicate.
// Only ids are kept; the todo itself is always re-read from the database.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-api/internal/config"
	"todo-api/pkg/logger"
)

const keyPrefix = "idempotency:todos:"

// RedisStore keeps key -> todo id mappings in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to cfg.RedisURL and verifies it with a ping.
func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.PoolSize = cfg.RedisPoolSize
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info(ctx, "Redis idempotency store initialized", "pool_size", cfg.RedisPoolSize, "ttl", cfg.IdempotencyTTL.String())
	return NewStore(client, cfg.IdempotencyTTL), nil
}

// NewStore wraps an existing client.
func NewStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Lookup returns the todo id recorded for key, if any.
func (s *RedisStore) Lookup(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency lookup: corrupt value %q", v)
	}
	return id, true, nil
}

// Remember records id for key. An existing record is replaced, since Remember
// is only called after a new todo has been created for this key.
func (s *RedisStore) Remember(ctx context.Context, key string, id int64) error {
	if err := s.client.Set(ctx, redisKey(key), strconv.FormatInt(id, 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(key string) string {
	return keyPrefix + key
}
