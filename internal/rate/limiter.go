package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a Redis fixed-window counter: at most Max hits per key inside each window.
// A nil *Window allows everything.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

// NewWindow returns a fixed-window limiter. Keys are namespaced by prefix.
func NewWindow(redisClient redis.UniversalClient, prefix string, max int, window time.Duration) *Window {
	return &Window{
		redis:  redisClient,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

func (w *Window) key(id string) string {
	return w.prefix + ":" + id
}

// Allow counts one hit for id and returns ErrRateLimited once the window budget is spent.
func (w *Window) Allow(ctx context.Context, id string) error {
	if w == nil || w.max <= 0 || id == "" {
		return nil
	}

	count, err := w.incrementWithTTL(ctx, w.key(id))
	if err != nil {
		return err
	}
	if count > int64(w.max) {
		return ErrRateLimited
	}

	return nil
}

// Count returns the hits recorded for id in the current window.
// Missing keys return zero and do not reveal account existence.
func (w *Window) Count(ctx context.Context, id string) (int, error) {
	if w == nil {
		return 0, nil
	}
	count, err := w.redis.Get(ctx, w.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counter for id.
func (w *Window) Reset(ctx context.Context, id string) error {
	if w == nil || id == "" {
		return nil
	}
	if err := w.redis.Del(ctx, w.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (w *Window) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
