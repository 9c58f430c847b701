package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
)

var (
	// ErrNotFound is returned for an unknown, consumed or evicted token.
	ErrNotFound = errors.New("token not found")
	// ErrExpired is returned when a token is read after its TTL but before Redis evicts it.
	ErrExpired = errors.New("token expired")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("token store unavailable")
)

// Mode selects how many live tokens an owner may hold.
type Mode int

const (
	// Single keeps at most one live token per owner; issuing replaces the previous one.
	Single Mode = iota
	// Multi keeps one token per device, each revocable on its own.
	Multi
)

// Issuer issues and redeems opaque tokens.
type Issuer struct {
	store *stores.TokenStore
	mode  Mode
	now   func() time.Time
}

// New returns an Issuer over store.
func New(store *stores.TokenStore, mode Mode) *Issuer {
	return &Issuer{store: store, mode: mode, now: time.Now}
}

// WithClock replaces the time source. Tests use it to step over expiry.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	if now != nil {
		i.now = now
	}
	return i
}

// Issue creates a token for owner. A zero ttl never expires by time.
func (i *Issuer) Issue(ctx context.Context, owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", errors.New("token owner is required")
	}

	token, err := internal.NewToken(owner)
	if err != nil {
		return "", err
	}

	record := &stores.TokenRecord{
		Owner:    owner,
		IssuedAt: i.now().UnixNano(),
		TTL:      ttl,
	}
	if err := i.store.Save(ctx, internal.HashToken(token), record, i.mode == Single); err != nil {
		return "", mapErr(err)
	}

	return token, nil
}

// Redeem consumes token and returns its owner. It succeeds at most once per token.
func (i *Issuer) Redeem(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}
	record, err := i.store.Consume(ctx, internal.HashToken(token), i.now())
	if err != nil {
		return "", mapErr(err)
	}
	return record.Owner, nil
}

// Lookup returns the owner of token without consuming it.
func (i *Issuer) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}
	record, err := i.store.Get(ctx, internal.HashToken(token), i.now())
	if err != nil {
		return "", mapErr(err)
	}
	return record.Owner, nil
}

// Revoke deletes token. Revoking an unknown token succeeds.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return mapErr(i.store.Delete(ctx, internal.HashToken(token)))
}

// RevokeOwner deletes every token held by owner.
func (i *Issuer) RevokeOwner(ctx context.Context, owner string) error {
	return mapErr(i.store.DeleteOwner(ctx, owner))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrTokenNotFound):
		return ErrNotFound
	case errors.Is(err, stores.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
