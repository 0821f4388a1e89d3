package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deskly/deskbot/pkg/logger"
)

// Limiter throttles repeated actions per key. Implementations fail open:
// a backend error never blocks the caller.
type Limiter interface {
	// Allow reports whether another request under key fits within limit
	// requests per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Cooldown reports whether key is outside its cooldown period and, if
	// so, starts a new one.
	Cooldown(ctx context.Context, key string, period time.Duration) (bool, error)
}

type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(url string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisLimiter{client: redis.NewClient(opts)}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	k := hashKey("rl", key)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		logger.WarnContext(ctx, "Rate limit backend error, allowing request", "error", err)
		return true, err
	}
	if count == 1 {
		l.client.Expire(ctx, k, window)
	}
	return count <= int64(limit), nil
}

func (l *RedisLimiter) Cooldown(ctx context.Context, key string, period time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ok, err := l.client.SetNX(ctx, hashKey("cd", key), 1, period).Result()
	if err != nil {
		logger.WarnContext(ctx, "Cooldown backend error, allowing request", "error", err)
		return true, err
	}
	return ok, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Keys are hashed before they reach the backend so raw sender identities
// never appear in redis.
func hashKey(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", prefix, sum)
}

var _ Limiter = (*RedisLimiter)(nil)
