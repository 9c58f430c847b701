package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAttemptsUnavailable indicates the attempt backend is unreachable.
	ErrAttemptsUnavailable = errors.New("attempt tracker backend unavailable")
)

// AttemptTracker counts consecutive login failures per key in a Redis hash
// {count, last}. The key expires one window after the last failure, which is when the
// policy would treat it as clean anyway.
type AttemptTracker struct {
	redis  redis.UniversalClient
	policy Policy
	prefix string
	now    func() time.Time
}

// NewAttemptTracker creates a tracker enforcing policy.
func NewAttemptTracker(redisClient redis.UniversalClient, policy Policy) *AttemptTracker {
	return &AttemptTracker{
		redis:  redisClient,
		policy: policy,
		prefix: "ala",
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (t *AttemptTracker) WithClock(now func() time.Time) *AttemptTracker {
	if now != nil {
		t.now = now
	}
	return t
}

func (t *AttemptTracker) key(id string) string {
	return t.prefix + ":" + id
}

// RecordFailure increments the failure counter for key and stamps the failure time in
// one transaction.
func (t *AttemptTracker) RecordFailure(ctx context.Context, key string) error {
	if t == nil || !t.policy.Track || key == "" {
		return nil
	}

	k := t.key(key)
	_, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, k, "count", 1)
		pipe.HSet(ctx, k, "last", t.now().UnixNano())
		if t.policy.Window > 0 {
			pipe.PExpire(ctx, k, t.policy.Window)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}

// Clear removes the record for key (e.g. after a successful login).
func (t *AttemptTracker) Clear(ctx context.Context, key string) error {
	if t == nil || key == "" {
		return nil
	}
	if err := t.redis.Del(ctx, t.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}

// IsLockedOut answers the policy for the current record. It never blocks anything itself.
func (t *AttemptTracker) IsLockedOut(ctx context.Context, key string) (bool, error) {
	if t == nil || !t.policy.Track || key == "" {
		return false, nil
	}

	count, last, err := t.Failures(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	return t.policy.Locked(count, last, t.now()), nil
}

// Failures returns the recorded count and last failure time for key.
func (t *AttemptTracker) Failures(ctx context.Context, key string) (int, time.Time, error) {
	if t == nil || key == "" {
		return 0, time.Time{}, nil
	}

	vals, err := t.redis.HMGet(ctx, t.key(key), "count", "last").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}

	count := parseInt(vals[0])
	if count <= 0 {
		return 0, time.Time{}, nil
	}
	return int(count), time.Unix(0, parseInt(vals[1])), nil
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
