// ABOUTME: Redis implementation of the cache Store using go-redis.
// ABOUTME: Maps redis.Nil to an absent result and leaves TTL handling to the server.

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store backed by a Redis server.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// RedisConfig holds the connection settings for the Redis cache.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{
		rdb:    rdb,
		logger: slog.Default().With("component", "cache"),
	}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests and by the
// subscriber store so both share one connection pool.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		logger: slog.Default().With("component", "cache"),
	}
}

// Client exposes the underlying go-redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

// Get returns the value for key, with ok reporting presence.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, true, nil
}

// SetEx stores value under key. Redis expires the key server-side.
func (s *RedisStore) SetEx(ctx context.Context, key string, ttlSeconds int, value []byte) error {
	var ttl time.Duration
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	s.logger.Debug("cache write", "key", key, "ttl_seconds", ttlSeconds, "bytes", len(value))
	return nil
}

// Del removes keys and returns how many existed.
func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del %v: %w", keys, err)
	}
	return n, nil
}

// Close shuts down the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
