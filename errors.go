package authcore

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrInvalidCredentials is returned for an unknown identity or a wrong password. The two
	// cases are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotActive is returned when the password is correct but the account is inactive.
	ErrAccountNotActive = errors.New("account not active")
	// ErrLockedOut is returned while the login attempt policy refuses the identity.
	ErrLockedOut = errors.New("temporarily locked out")
	// ErrNotFound is returned for unknown users, groups, codes and tokens.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned for a token whose lifetime elapsed. The token is destroyed.
	// A token presented more than twice its lifetime after issue has already been evicted
	// and reports ErrNotFound instead.
	ErrExpired = errors.New("expired")
	// ErrDuplicateIdentity is returned when an identity, email, username or group name is taken.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrConsistencyViolation is returned when a multi-step store write was rolled back.
	ErrConsistencyViolation = errors.New("consistency violation")
	// ErrPasswordPolicy is returned for passwords outside the configured length bounds.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrRateLimited is returned when a throttle refuses the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable is returned when a backing store cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// publicErrors is ordered: the first sentinel matched wins.
var publicErrors = []error{
	ErrEngineNotReady,
	ErrInvalidCredentials,
	ErrAccountNotActive,
	ErrLockedOut,
	ErrNotFound,
	ErrExpired,
	ErrDuplicateIdentity,
	ErrConsistencyViolation,
	ErrPasswordPolicy,
	ErrRateLimited,
	ErrInvalidInput,
	ErrUnavailable,
}

// publicError collapses err to exactly one exported sentinel. Causes that carry more than
// the sentinel are logged, never returned.
func (e *Engine) publicError(ctx context.Context, op Operation, err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range publicErrors {
		if !errors.Is(err, sentinel) {
			continue
		}
		if err != sentinel {
			level := slog.LevelDebug
			if sentinel == ErrUnavailable || sentinel == ErrConsistencyViolation {
				level = slog.LevelWarn
			}
			e.logger.Log(ctx, level, "authcore: operation failed", "op", string(op), "error", err)
		}
		return sentinel
	}

	e.logger.Error("authcore: unexpected error", "op", string(op), "error", err)
	return ErrUnavailable
}
