package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/limiters"
)

// AttemptTracker keeps login failures in the login_attempts table, one row per failure.
// Failures count as consecutive until a full window passes after the most recent one;
// at that point every row of the key is pruned the next time the key is touched.
type AttemptTracker struct {
	store  *Store
	policy limiters.Policy
	now    func() time.Time
}

var _ authcore.AttemptTracker = (*AttemptTracker)(nil)

// NewAttemptTracker returns a tracker enforcing the lockout section of cfg.
func NewAttemptTracker(store *Store, cfg authcore.LockoutConfig) *AttemptTracker {
	return &AttemptTracker{
		store: store,
		policy: limiters.Policy{
			Track:       cfg.TrackAttempts,
			MaxAttempts: cfg.MaxAttempts,
			Window:      cfg.Window,
		},
		now: time.Now,
	}
}

// WithClock replaces the time source.
func (t *AttemptTracker) WithClock(now func() time.Time) *AttemptTracker {
	if now != nil {
		t.now = now
	}
	return t
}

func (t *AttemptTracker) RecordFailure(ctx context.Context, key string) error {
	if t == nil || !t.policy.Track || key == "" {
		return nil
	}
	now := t.now()
	if err := t.prune(ctx, key, now); err != nil {
		return err
	}
	_, err := t.store.db.ExecContext(ctx, t.store.q("INSERT INTO login_attempts (attempt_key, attempted_at) VALUES (?, ?)"),
		key, now.UnixMilli())
	return mapErr(err)
}

// Clear forgets every failure recorded for key.
func (t *AttemptTracker) Clear(ctx context.Context, key string) error {
	if t == nil || key == "" {
		return nil
	}
	_, err := t.store.db.ExecContext(ctx, t.store.q("DELETE FROM login_attempts WHERE attempt_key = ?"), key)
	return mapErr(err)
}

func (t *AttemptTracker) IsLockedOut(ctx context.Context, key string) (bool, error) {
	if t == nil || !t.policy.Track || key == "" {
		return false, nil
	}
	now := t.now()
	if err := t.prune(ctx, key, now); err != nil {
		return false, err
	}

	var (
		count int
		last  sql.NullInt64
	)
	err := t.store.db.QueryRowContext(ctx, t.store.q(
		"SELECT COUNT(*), MAX(attempted_at) FROM login_attempts WHERE attempt_key = ?"), key).Scan(&count, &last)
	if err != nil {
		return false, mapErr(err)
	}
	if count == 0 || !last.Valid {
		return false, nil
	}
	return t.policy.Locked(count, time.UnixMilli(last.Int64), now), nil
}

// prune forgets the whole failure run of key once its latest failure is a full window
// old. Older rows inside a live run are kept so the count stays consecutive.
func (t *AttemptTracker) prune(ctx context.Context, key string, now time.Time) error {
	if t.policy.Window <= 0 {
		return nil
	}
	cutoff := now.Add(-t.policy.Window).UnixMilli()
	_, err := t.store.db.ExecContext(ctx, t.store.q(
		"DELETE FROM login_attempts WHERE attempt_key = ?"+
			" AND (SELECT MAX(attempted_at) FROM login_attempts WHERE attempt_key = ?) <= ?"), key, key, cutoff)
	return mapErr(err)
}
