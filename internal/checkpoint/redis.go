// Package checkpoint persists the pipeline's window watermark so serve
// mode resumes where the last successful cycle ended instead of
// re-deriving a wall-clock lookback.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelworks/ise-enrich/internal/config"
)

// Store keeps the watermark in Redis under a single key.
type Store struct {
	rdb *redis.Client
	key string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{rdb: rdb, key: cfg.Key}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(rdb *redis.Client, key string) *Store {
	return &Store{rdb: rdb, key: key}
}

// LastWindowEnd reads the watermark. The second return is false when no
// watermark has been stored yet.
func (s *Store) LastWindowEnd(ctx context.Context) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %q: %w", val, err)
	}
	return t.UTC(), true, nil
}

// SetLastWindowEnd stores the watermark.
func (s *Store) SetLastWindowEnd(ctx context.Context, t time.Time) error {
	if err := s.rdb.Set(ctx, s.key, t.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("store watermark: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
