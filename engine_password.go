package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/rate"
)

// ForgottenPassword issues a recovery code for identity, replacing any earlier one.
//
// With a Notifier and Recovery.UseNotifier the code is sent with the ForgotPassword
// template and not returned. An unknown identity returns [ErrNotFound] unless
// Recovery.ConcealUnknown is set, in which case an empty result is returned after a
// short random delay.
func (e *Engine) ForgottenPassword(ctx context.Context, identity string) (*RecoveryResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpForgottenPassword, Identity: identity}
	e.runHooks(ctx, BeforeVerify, ev)

	res, userID, err := e.forgottenPassword(ctx, identity)
	ev.UserID = userID

	if err = e.finish(ctx, ev, err, func() map[string]string {
		if res != nil && res.Delivered {
			return map[string]string{"delivery": "notifier"}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) forgottenPassword(ctx context.Context, identity string) (*RecoveryResult, string, error) {
	if identity == "" {
		return nil, "", ErrInvalidInput
	}

	if err := e.recoveryLimiter.CheckRequest(ctx, identity, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, "", ErrRateLimited
		}
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	user, err := e.store.FindByIdentity(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		if e.config.Recovery.ConcealUnknown {
			e.concealDelay(ctx)
			return &RecoveryResult{Identity: identity, Delivered: e.useNotifier()}, "", nil
		}
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}

	code, err := e.recovery.Issue(ctx, user.ID, e.config.Recovery.Expiration)
	if err != nil {
		return nil, user.ID, tokenErr(err)
	}

	if e.useNotifier() {
		err := e.notify(ctx, e.config.Templates.ForgotPassword, user, map[string]string{
			"identity":                user.Identity,
			"forgotten_password_code": code,
		})
		if err != nil {
			e.revokeRecovery(ctx, user.ID)
			return nil, user.ID, err
		}
		return &RecoveryResult{Identity: user.Identity, Delivered: true}, user.ID, nil
	}

	return &RecoveryResult{Identity: user.Identity, Code: code}, user.ID, nil
}

// ForgottenPasswordCheck returns the user a recovery code belongs to without consuming
// it. An expired code is destroyed and reported as [ErrExpired].
func (e *Engine) ForgottenPasswordCheck(ctx context.Context, code string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	userID, err := e.recovery.Lookup(ctx, code)
	if err != nil {
		return nil, e.publicError(ctx, "forgotten_password_check", tokenErr(err))
	}

	user, err := e.store.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		e.revokeRecovery(ctx, userID)
	}
	if err != nil {
		return nil, e.publicError(ctx, "forgotten_password_check", err)
	}
	return user, nil
}

// ForgottenPasswordComplete redeems a recovery code and replaces the password with a
// generated one. The account is activated and every remember token revoked. A code
// works once; the second call returns [ErrNotFound].
func (e *Engine) ForgottenPasswordComplete(ctx context.Context, code string) (*NewPasswordResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpForgottenPasswordComplete}
	e.runHooks(ctx, BeforeVerify, ev)

	res, user, err := e.completeRecovery(ctx, code, "")
	if user != nil {
		ev.UserID = user.ID
		ev.Identity = user.Identity
	}

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// ResetPasswordWithToken redeems a recovery code and sets newPassword. The password is
// checked against the policy before the code is consumed.
func (e *Engine) ResetPasswordWithToken(ctx context.Context, code, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpForgottenPasswordComplete}
	e.runHooks(ctx, BeforeVerify, ev)

	var (
		user *User
		err  = e.checkPasswordPolicy(newPassword)
	)
	if err == nil {
		_, user, err = e.completeRecovery(ctx, code, newPassword)
	}
	if user != nil {
		ev.UserID = user.ID
		ev.Identity = user.Identity
	}

	return e.finish(ctx, ev, err, nil)
}

// completeRecovery redeems code and stores pw, or a generated password when pw is empty.
func (e *Engine) completeRecovery(ctx context.Context, code, pw string) (*NewPasswordResult, *User, error) {
	userID, err := e.recovery.Redeem(ctx, code)
	if err != nil {
		return nil, nil, tokenErr(err)
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	generated := pw == ""
	if generated {
		pw, err = internal.NewPassword(e.generatedPasswordLength())
		if err != nil {
			return nil, user, err
		}
	}

	digest, err := e.digestFor(user, pw)
	if err != nil {
		return nil, user, err
	}
	user.Digest = digest
	user.Active = true
	user.ActivationCode = ""
	if err := e.store.Save(ctx, user); err != nil {
		return nil, user, err
	}
	e.revokeRemembered(ctx, user.ID)

	res := &NewPasswordResult{Identity: user.Identity}
	if !generated {
		return res, user, nil
	}

	if e.useNotifier() {
		err := e.notify(ctx, e.config.Templates.NewPassword, user, map[string]string{
			"identity":     user.Identity,
			"new_password": pw,
		})
		if err != nil {
			return nil, user, err
		}
		res.Delivered = true
		return res, user, nil
	}

	res.NewPassword = pw
	return res, user, nil
}

// generatedPasswordLength stays inside the configured policy.
func (e *Engine) generatedPasswordLength() int {
	n := e.config.Identity.MinPasswordLength + 4
	if limit := e.config.Identity.MaxPasswordLength; limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ChangePassword replaces the password of identity after verifying oldPassword. Every
// remember token of the user is revoked.
func (e *Engine) ChangePassword(ctx context.Context, identity, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpChangePassword, Identity: identity}
	e.runHooks(ctx, BeforeVerify, ev)

	userID, err := e.changePassword(ctx, identity, oldPassword, newPassword)
	ev.UserID = userID

	return e.finish(ctx, ev, err, nil)
}

func (e *Engine) changePassword(ctx context.Context, identity, oldPassword, newPassword string) (string, error) {
	user, err := e.store.FindByIdentity(ctx, identity)
	if err != nil {
		return "", err
	}

	ok, err := e.hasher.Verify(oldPassword, user.Digest)
	if err != nil {
		e.logger.Warn("authcore: stored digest unreadable", "user_id", user.ID, "error", err)
	}
	if !ok {
		return user.ID, ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return user.ID, err
	}

	return user.ID, e.storePassword(ctx, user, newPassword)
}

// ResetPassword sets newPassword for identity without the old one. Remember tokens and
// any outstanding recovery code are revoked.
func (e *Engine) ResetPassword(ctx context.Context, identity, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpResetPassword, Identity: identity}
	e.runHooks(ctx, BeforeVerify, ev)

	userID, err := e.resetPassword(ctx, identity, newPassword)
	ev.UserID = userID

	return e.finish(ctx, ev, err, nil)
}

func (e *Engine) resetPassword(ctx context.Context, identity, newPassword string) (string, error) {
	user, err := e.store.FindByIdentity(ctx, identity)
	if err != nil {
		return "", err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return user.ID, err
	}
	if err := e.storePassword(ctx, user, newPassword); err != nil {
		return user.ID, err
	}
	e.revokeRecovery(ctx, user.ID)
	return user.ID, nil
}

// storePassword swaps in a digest of pw. The swap fails with ErrNotFound if the stored
// digest changed after user was read.
func (e *Engine) storePassword(ctx context.Context, user *User, pw string) error {
	digest, err := e.digestFor(user, pw)
	if err != nil {
		return err
	}
	if err := e.store.UpdateDigest(ctx, user.ID, user.Digest, digest); err != nil {
		return err
	}
	user.Digest = digest
	e.revokeRemembered(ctx, user.ID)
	return nil
}
