package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsoria/social-sync/pkg/database"
)

// Redis is a Store backed by Redis, shared across instances.
type Redis struct {
	redis  *database.Redis
	prefix string
}

// NewRedis creates a Redis-backed store. Keys are namespaced under prefix.
func NewRedis(r *database.Redis, prefix string) *Redis {
	return &Redis{redis: r, prefix: prefix}
}

func (s *Redis) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return val, nil
}

func (s *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.redis.Client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.redis.Client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s *Redis) Take(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Client.GetDel(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to take key: %w", err)
	}
	return val, nil
}

func (s *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	k := s.key(key)

	count, err := s.redis.Client.Incr(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment counter: %w", err)
	}

	// First increment opens the window.
	if count == 1 {
		if err := s.redis.Client.PExpire(ctx, k, ttl).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set counter expiry: %w", err)
		}
		return count, time.Now().Add(ttl), nil
	}

	remaining, err := s.redis.Client.PTTL(ctx, k).Result()
	if err != nil || remaining < 0 {
		// Counter without expiry (expire call lost); re-arm it.
		_ = s.redis.Client.PExpire(ctx, k, ttl).Err()
		remaining = ttl
	}

	return count, time.Now().Add(remaining), nil
}

var _ Store = (*Redis)(nil)
