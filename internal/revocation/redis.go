// Package revocation records logged-out token ids until their natural expiry.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fundimart:revoked:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps revoked ids as expiring keys.
type RedisStore struct {
	rdb    redisClient
	closer func() error
	now    func() time.Time
}

// NewRedisStore dials Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, closer: rdb.Close, now: time.Now}, nil
}

func newRedisStore(rdb redisClient, now func() time.Time) *RedisStore {
	return &RedisStore{rdb: rdb, closer: func() error { return nil }, now: now}
}

// Revoke marks tokenID revoked; ids already past until are ignored.
func (s *RedisStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, keyPrefix+tokenID, 1, ttl).Err()
}

// IsRevoked reports whether tokenID was revoked and has not expired yet.
func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks connectivity for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.closer()
}
