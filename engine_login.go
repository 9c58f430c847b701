package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Login verifies identity and pw and establishes a session. With remember set and
// remember-me enabled a remember token is issued as well.
//
// Unknown identities and wrong passwords both return [ErrInvalidCredentials] after the
// same hashing work. A locked out identity returns [ErrLockedOut] without revealing how
// long the lockout lasts.
func (e *Engine) Login(ctx context.Context, identity, pw string, remember bool) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	ev := HookEvent{Operation: OpLogin, Identity: identity}
	e.runHooks(ctx, BeforeVerify, ev)

	res, err := e.login(ctx, identity, pw, remember)
	if res != nil {
		ev.UserID = res.User.ID
	}
	e.metrics.Observe(MetricLoginLatency, time.Since(start))

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) login(ctx context.Context, identity, pw string, remember bool) (*LoginResult, error) {
	if identity == "" || pw == "" {
		e.hasher.Dummy(pw)
		return nil, ErrInvalidCredentials
	}
	if !e.loginThrottle.Allow(clientIPFromContext(ctx)) {
		return nil, ErrRateLimited
	}

	key := e.attemptKey(ctx, identity)
	if e.config.Lockout.TrackAttempts {
		locked, err := e.attempts.IsLockedOut(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if locked {
			e.hasher.Dummy(pw)
			return nil, ErrLockedOut
		}
	}

	user, err := e.store.FindByIdentity(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		e.hasher.Dummy(pw)
		e.recordFailure(ctx, key)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := e.hasher.Verify(pw, user.Digest)
	if err != nil {
		e.logger.Warn("authcore: stored digest unreadable", "user_id", user.ID, "error", err)
	}
	if !ok {
		e.recordFailure(ctx, key)
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrAccountNotActive
	}

	return e.establish(ctx, user, key, pw, remember)
}

// establish completes a verified login.
func (e *Engine) establish(ctx context.Context, user *User, attemptKey, pw string, remember bool) (*LoginResult, error) {
	if e.config.Lockout.TrackAttempts {
		if err := e.attempts.Clear(ctx, attemptKey); err != nil {
			e.logger.Warn("authcore: clear login attempts", "user_id", user.ID, "error", err)
		}
	}

	now := e.now()
	if err := e.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		e.logger.Warn("authcore: update last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin = now
	}

	if e.config.Hash.UpgradeOnLogin && e.hasher.NeedsRehash(user.Digest) {
		e.rehash(ctx, user, pw)
	}

	handle, err := e.sessions.Establish(ctx, user.ID, user.Identity)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)

	res := &LoginResult{User: user, SessionHandle: handle}
	if remember && e.config.Remember.Enabled {
		token, err := e.remember.Issue(ctx, user.ID, e.config.Remember.TTL)
		if err != nil {
			e.logger.Warn("authcore: issue remember token", "user_id", user.ID, "error", err)
		} else {
			res.RememberToken = token
		}
	}

	return res, nil
}

// rehash upgrades a digest produced by an old scheme or cost. Only the digest columns
// are written, and only if the stored digest is still the one verified. It never fails
// the login.
func (e *Engine) rehash(ctx context.Context, user *User, pw string) {
	digest, err := e.hasher.Hash(pw)
	if err != nil {
		e.logger.Warn("authcore: rehash", "user_id", user.ID, "error", err)
		return
	}
	if err := e.store.UpdateDigest(ctx, user.ID, user.Digest, digest); err != nil {
		if errors.Is(err, ErrNotFound) {
			e.logger.Debug("authcore: digest changed before rehash", "user_id", user.ID)
			return
		}
		e.logger.Warn("authcore: save rehashed digest", "user_id", user.ID, "error", err)
		return
	}
	user.Digest = digest
	e.metricInc(MetricRehash)
}

// LoginRemembered establishes a session from a remember token. With
// Remember.ExtendOnLogin the token is rotated and the new one returned.
func (e *Engine) LoginRemembered(ctx context.Context, token string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpLoginRemembered}
	e.runHooks(ctx, BeforeVerify, ev)

	res, err := e.loginRemembered(ctx, token)
	if res != nil {
		ev.UserID = res.User.ID
		ev.Identity = res.User.Identity
	}

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) loginRemembered(ctx context.Context, token string) (*LoginResult, error) {
	if token == "" || !e.config.Remember.Enabled {
		return nil, ErrNotFound
	}

	userID, err := e.remember.Lookup(ctx, token)
	if err != nil {
		return nil, tokenErr(err)
	}

	user, err := e.store.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		_ = e.remember.Revoke(ctx, token)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountNotActive
	}

	now := e.now()
	if err := e.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		e.logger.Warn("authcore: update last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin = now
	}

	handle, err := e.sessions.Establish(ctx, user.ID, user.Identity)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)

	res := &LoginResult{User: user, SessionHandle: handle, RememberToken: token}
	if e.config.Remember.ExtendOnLogin {
		if err := e.remember.Revoke(ctx, token); err != nil {
			e.logger.Warn("authcore: revoke rotated remember token", "user_id", user.ID, "error", err)
		}
		next, err := e.remember.Issue(ctx, user.ID, e.config.Remember.TTL)
		if err != nil {
			return nil, tokenErr(err)
		}
		res.RememberToken = next
	}

	return res, nil
}

// Logout destroys the session behind ref.Handle and revokes ref.RememberToken. Unknown or
// empty references are not an error.
func (e *Engine) Logout(ctx context.Context, ref SessionRef) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpLogout}
	e.runHooks(ctx, BeforeVerify, ev)

	var err error
	if ref.Handle != "" {
		if userID, lookupErr := e.sessions.CurrentUserID(ctx, ref.Handle); lookupErr == nil {
			ev.UserID = userID
		}
		err = e.sessions.Destroy(ctx, ref.Handle)
	}
	if err == nil && ref.RememberToken != "" {
		err = tokenErr(e.remember.Revoke(ctx, ref.RememberToken))
	}

	return e.finish(ctx, ev, err, nil)
}

// CurrentUser resolves handle to its user. Unknown, expired or destroyed handles return
// [ErrNotFound].
func (e *Engine) CurrentUser(ctx context.Context, handle string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if handle == "" {
		return nil, ErrNotFound
	}

	userID, err := e.sessions.CurrentUserID(ctx, handle)
	if err != nil {
		return nil, e.publicError(ctx, "current_user", err)
	}
	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, e.publicError(ctx, "current_user", err)
	}
	return user, nil
}

// LoggedIn reports whether handle names a live session of an existing user.
func (e *Engine) LoggedIn(ctx context.Context, handle string) bool {
	_, err := e.CurrentUser(ctx, handle)
	return err == nil
}
