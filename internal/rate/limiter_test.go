package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestWindowBudgetAndExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	w := NewWindow(client, "arq", 2, time.Minute)

	for i := 0; i < 2; i++ {
		if err := w.Allow(ctx, "a@example.com"); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i+1, err)
		}
	}
	if err := w.Allow(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := w.Allow(ctx, "b@example.com"); err != nil {
		t.Fatalf("other key should be independent, got %v", err)
	}

	if n, _ := w.Count(ctx, "a@example.com"); n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}

	mr.FastForward(61 * time.Second)
	if err := w.Allow(ctx, "a@example.com"); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}

	if err := w.Reset(ctx, "a@example.com"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n, _ := w.Count(ctx, "a@example.com"); n != 0 {
		t.Fatalf("expected count 0 after reset, got %d", n)
	}
}

func TestNilWindowAllows(t *testing.T) {
	var w *Window
	if err := w.Allow(context.Background(), "x"); err != nil {
		t.Fatalf("nil window should allow, got %v", err)
	}
}

func TestWindowRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	w := NewWindow(client, "arq", 1, time.Minute)
	if err := w.Allow(context.Background(), "x"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestLocalBurstThenRefill(t *testing.T) {
	l := NewLocal(1, 2)
	base := time.Unix(1_700_000_000, 0)
	now := base
	l.now = func() time.Time { return now }

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("expected burst of two to pass")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("expected third request to be throttled")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("expected another key to have its own bucket")
	}

	now = base.Add(time.Second)
	if !l.Allow("10.0.0.1") {
		t.Fatal("expected a token after one second")
	}
}

func TestLocalDisabled(t *testing.T) {
	if l := NewLocal(0, 5); l != nil {
		t.Fatal("expected nil limiter when rate is zero")
	}
	var l *Local
	if !l.Allow("x") {
		t.Fatal("nil limiter should allow")
	}
}
