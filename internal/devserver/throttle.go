package devserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// LoginThrottle counts login attempts per account within a fixed window.
type LoginThrottle interface {
	Allow(ctx context.Context, email string) (bool, error)
	Reset(ctx context.Context, email string) error
}

func throttleKey(email string) string {
	return "login_attempts:" + strings.ToLower(strings.TrimSpace(email))
}

type MemoryThrottle struct {
	attempts *cache.Cache
	limit    int
	window   time.Duration
}

func NewMemoryThrottle(limit int, window time.Duration) *MemoryThrottle {
	return &MemoryThrottle{
		attempts: cache.New(window, 2*window),
		limit:    limit,
		window:   window,
	}
}

func (t *MemoryThrottle) Allow(_ context.Context, email string) (bool, error) {
	if t.limit <= 0 {
		return true, nil
	}
	key := throttleKey(email)
	// Add only succeeds for the first attempt, which fixes the window.
	_ = t.attempts.Add(key, 0, t.window)
	count, err := t.attempts.IncrementInt(key, 1)
	if err != nil {
		return false, fmt.Errorf("count login attempt: %w", err)
	}
	return count <= t.limit, nil
}

func (t *MemoryThrottle) Reset(_ context.Context, email string) error {
	t.attempts.Delete(throttleKey(email))
	return nil
}

// RedisThrottle shares the attempt counters between dev server instances.
type RedisThrottle struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
}

func NewRedisThrottle(client redis.UniversalClient, limit int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, limit: limit, window: window}
}

func (t *RedisThrottle) Allow(ctx context.Context, email string) (bool, error) {
	if t.limit <= 0 {
		return true, nil
	}
	key := throttleKey(email)

	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		t.client.Expire(ctx, key, t.window)
	}
	return count <= int64(t.limit), nil
}

func (t *RedisThrottle) Reset(ctx context.Context, email string) error {
	return t.client.Del(ctx, throttleKey(email)).Err()
}
