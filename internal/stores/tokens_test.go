package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *TokenStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewTokenStore(client, "test")
}

func TestTokenStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	_, s := newTestStore(t)
	now := time.Now()

	rec := &TokenRecord{Owner: "u1", IssuedAt: now.UnixNano(), TTL: time.Minute}
	if err := s.Save(ctx, "h1", rec, true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Consume(ctx, "h1", now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if got.Owner != "u1" || got.TTL != time.Minute {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := s.Consume(ctx, "h1", now); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound on second consume, got %v", err)
	}
}

func TestTokenStoreConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	_, s := newTestStore(t)
	now := time.Now()

	if err := s.Save(ctx, "race", &TokenRecord{Owner: "u1", IssuedAt: now.UnixNano()}, true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Consume(ctx, "race", now)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrTokenNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", success)
	}
}

func TestTokenStoreExpiredIsDeletedOnAccess(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)
	issued := time.Now()

	if err := s.Save(ctx, "old", &TokenRecord{Owner: "u1", IssuedAt: issued.UnixNano(), TTL: time.Second}, true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	later := issued.Add(1500 * time.Millisecond)
	if _, err := s.Get(ctx, "old", later); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if mr.Exists("test:t:old") {
		t.Fatal("expected expired record to be deleted on access")
	}
	if _, err := s.Consume(ctx, "old", later); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after cleanup, got %v", err)
	}
}

func TestTokenStoreEvictsAfterTwiceTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)
	issued := time.Now()

	rec := &TokenRecord{Owner: "u1", IssuedAt: issued.UnixNano(), TTL: time.Minute}
	if err := s.Save(ctx, "stale", rec, true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := mr.TTL("test:t:stale"); ttl != 2*time.Minute {
		t.Fatalf("expected key ttl 2m, got %v", ttl)
	}

	mr.FastForward(2*time.Minute + time.Second)
	if _, err := s.Get(ctx, "stale", issued.Add(2*time.Minute+time.Second)); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound once evicted, got %v", err)
	}
}

func TestTokenStoreReplaceKeepsOneLive(t *testing.T) {
	ctx := context.Background()
	_, s := newTestStore(t)
	now := time.Now()

	for _, h := range []string{"a", "b"} {
		if err := s.Save(ctx, h, &TokenRecord{Owner: "u1", IssuedAt: now.UnixNano()}, true); err != nil {
			t.Fatalf("Save(%s) failed: %v", h, err)
		}
	}

	if _, err := s.Get(ctx, "a", now); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected replaced token to be gone, got %v", err)
	}
	if _, err := s.Get(ctx, "b", now); err != nil {
		t.Fatalf("expected latest token to be live, got %v", err)
	}
	if n, _ := s.Count(ctx, "u1"); n != 1 {
		t.Fatalf("expected one indexed token, got %d", n)
	}
}

func TestTokenStoreMultiAndDeleteOwner(t *testing.T) {
	ctx := context.Background()
	_, s := newTestStore(t)
	now := time.Now()

	for _, h := range []string{"d1", "d2", "d3"} {
		if err := s.Save(ctx, h, &TokenRecord{Owner: "u1", IssuedAt: now.UnixNano()}, false); err != nil {
			t.Fatalf("Save(%s) failed: %v", h, err)
		}
	}
	if n, _ := s.Count(ctx, "u1"); n != 3 {
		t.Fatalf("expected three tokens, got %d", n)
	}

	if err := s.Delete(ctx, "d2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "d2"); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if n, _ := s.Count(ctx, "u1"); n != 2 {
		t.Fatalf("expected two tokens, got %d", n)
	}

	if err := s.DeleteOwner(ctx, "u1"); err != nil {
		t.Fatalf("DeleteOwner failed: %v", err)
	}
	for _, h := range []string{"d1", "d3"} {
		if _, err := s.Get(ctx, h, now); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("expected %s to be revoked, got %v", h, err)
		}
	}
}

func TestTokenStoreRedisDown(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewTokenStore(client, "test")
	mr.Close()

	err = s.Save(ctx, "x", &TokenRecord{Owner: "u1"}, false)
	if !errors.Is(err, ErrTokenRedisUnavailable) {
		t.Fatalf("expected ErrTokenRedisUnavailable, got %v", err)
	}
}

func TestTokenRecordCodec(t *testing.T) {
	in := &TokenRecord{Owner: "owner-1", IssuedAt: 42, TTL: 3 * time.Second}
	data, err := encodeTokenRecord(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := decodeTokenRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}

	data[0] = 9
	if _, err := decodeTokenRecord(data); err == nil {
		t.Fatal("expected version mismatch to fail")
	}
}
