package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Engine runs the credential flows. It keeps no per-user state between calls and is safe
// for concurrent use.
type Engine struct {
	config   Config
	store    CredentialStore
	sessions SessionStore
	attempts AttemptTracker
	notifier Notifier
	hasher   *password.Hasher
	logger   *slog.Logger
	now      func() time.Time
	hooks    hookRegistry

	recovery        *tokens.Issuer
	remember        *tokens.Issuer
	recoveryLimiter *limiters.RecoveryLimiter
	loginThrottle   *rate.Local
	audit           *audit.Dispatcher
	metrics         *Metrics
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// AuditDropped counts events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// attemptKey scopes failure records to identity, or identity and client IP.
func (e *Engine) attemptKey(ctx context.Context, identity string) string {
	if e.config.Lockout.TrackByIP {
		if ip := clientIPFromContext(ctx); ip != "" {
			return identity + "|" + ip
		}
	}
	return identity
}

func (e *Engine) recordFailure(ctx context.Context, key string) {
	if !e.config.Lockout.TrackAttempts {
		return
	}
	if err := e.attempts.RecordFailure(ctx, key); err != nil {
		e.logger.Warn("authcore: record login failure", "error", err)
		return
	}
	e.metricInc(MetricAttemptRecorded)
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < e.config.Identity.MinPasswordLength {
		return ErrPasswordPolicy
	}
	if limit := e.config.Identity.MaxPasswordLength; limit > 0 && n > limit {
		return ErrPasswordPolicy
	}
	if password.Scheme(e.config.Hash.Scheme) == password.SchemeBcrypt && len(pw) > password.BcryptMaxBytes {
		return ErrPasswordPolicy
	}
	return nil
}

// digestFor hashes pw for user. A stored legacy salt is reused while the legacy scheme
// is configured, so the credential keeps its salt column.
func (e *Engine) digestFor(user *User, pw string) (password.Digest, error) {
	if user != nil && user.Digest.Salt != "" && password.Scheme(e.config.Hash.Scheme) == password.SchemeLegacy {
		return e.hasher.HashWith(pw, password.SchemeLegacy, 0, user.Digest.Salt)
	}
	return e.hasher.Hash(pw)
}

// revokeRemembered drops every remember-me token of userID. Failures are logged; the
// tokens still expire on their own.
func (e *Engine) revokeRemembered(ctx context.Context, userID string) {
	if err := e.remember.RevokeOwner(ctx, userID); err != nil {
		e.logger.Warn("authcore: revoke remember tokens", "user_id", userID, "error", err)
	}
}

// destroySessions ends every session of userID. Failures are logged; sessions still
// expire on their own.
func (e *Engine) destroySessions(ctx context.Context, userID string) {
	if err := e.sessions.DestroyUser(ctx, userID); err != nil {
		e.logger.Warn("authcore: destroy sessions", "user_id", userID, "error", err)
	}
}

func (e *Engine) revokeRecovery(ctx context.Context, userID string) {
	if err := e.recovery.RevokeOwner(ctx, userID); err != nil {
		e.logger.Warn("authcore: revoke recovery token", "user_id", userID, "error", err)
	}
}

func (e *Engine) notify(ctx context.Context, template string, user *User, data map[string]string) error {
	recipient := user.Email
	if recipient == "" {
		recipient = user.Identity
	}
	if err := e.notifier.Send(ctx, template, recipient, data); err != nil {
		return fmt.Errorf("%w: notifier: %v", ErrUnavailable, err)
	}
	return nil
}

func (e *Engine) useNotifier() bool {
	return e.notifier != nil && e.config.Recovery.UseNotifier
}

// concealDelay approximates the latency of a real recovery issue.
func (e *Engine) concealDelay(ctx context.Context) {
	d := 20*time.Millisecond + time.Duration(mrand.IntN(20))*time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func tokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tokens.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, tokens.ErrExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// redisSessions adapts session.Store to SessionStore error semantics.
type redisSessions struct {
	store *session.Store
}

func (s redisSessions) Establish(ctx context.Context, userID, identity string) (string, error) {
	handle, err := s.store.Establish(ctx, userID, identity)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return handle, nil
}

func (s redisSessions) Destroy(ctx context.Context, handle string) error {
	err := s.store.Destroy(ctx, handle)
	if errors.Is(err, session.ErrInvalidHandle) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s redisSessions) DestroyUser(ctx context.Context, userID string) error {
	if err := s.store.DestroyAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s redisSessions) CurrentUserID(ctx context.Context, handle string) (string, error) {
	userID, err := s.store.CurrentUserID(ctx, handle)
	switch {
	case err == nil:
		return userID, nil
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrInvalidHandle):
		return "", ErrNotFound
	default:
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
