package authcore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
)

func TestForgottenPasswordReturnsCodeOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "ada@example.com")

	rec, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	if rec.Code == "" || rec.Delivered {
		t.Fatalf("expected the code to be returned, got %+v", rec)
	}

	owner, err := env.engine.ForgottenPasswordCheck(ctx, rec.Code)
	if err != nil {
		t.Fatalf("ForgottenPasswordCheck failed: %v", err)
	}
	if owner.ID != user.ID {
		t.Fatalf("code resolved to %s, want %s", owner.ID, user.ID)
	}

	done, err := env.engine.ForgottenPasswordComplete(ctx, rec.Code)
	if err != nil {
		t.Fatalf("ForgottenPasswordComplete failed: %v", err)
	}
	if len(done.NewPassword) != 12 {
		t.Fatalf("expected a 12 character password, got %q", done.NewPassword)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", done.NewPassword, false); err != nil {
		t.Fatalf("Login with generated password failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", testPassword, false); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}

	if _, err := env.engine.ForgottenPasswordComplete(ctx, rec.Code); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected second redemption to fail with ErrNotFound, got %v", err)
	}
}

func TestForgottenPasswordNewCodeReplacesOld(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "ada@example.com")

	first, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	second, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}

	if _, err := env.engine.ForgottenPasswordCheck(ctx, first.Code); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected replaced code to be gone, got %v", err)
	}
	if _, err := env.engine.ForgottenPasswordCheck(ctx, second.Code); err != nil {
		t.Fatalf("current code rejected: %v", err)
	}
}

func TestForgottenPasswordConcurrentRedemption(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "ada@example.com")

	rec, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notFound  atomic.Int32
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.ForgottenPasswordComplete(ctx, rec.Code)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, authcore.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || notFound.Load() != workers-1 {
		t.Fatalf("expected exactly one redemption, got %d successes and %d not found", successes.Load(), notFound.Load())
	}
}

func TestForgottenPasswordThroughNotifier(t *testing.T) {
	env := newTestEnv(t, nil, withNotifier())
	ctx := context.Background()
	env.register(t, "ada@example.com")

	rec, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	if rec.Code != "" || !rec.Delivered {
		t.Fatalf("expected delivery without a returned code, got %+v", rec)
	}

	sent := env.messages()
	if len(sent) != 1 || sent[0].template != "forgot_password" || sent[0].recipient != "ada@example.com" {
		t.Fatalf("unexpected messages: %+v", sent)
	}
	code := sent[0].data["forgotten_password_code"]
	if code == "" || sent[0].data["identity"] != "ada@example.com" {
		t.Fatalf("unexpected message data: %v", sent[0].data)
	}

	done, err := env.engine.ForgottenPasswordComplete(ctx, code)
	if err != nil {
		t.Fatalf("ForgottenPasswordComplete failed: %v", err)
	}
	if done.NewPassword != "" || !done.Delivered {
		t.Fatalf("expected the new password to be delivered, got %+v", done)
	}

	sent = env.messages()
	if len(sent) != 2 || sent[1].template != "new_password" || sent[1].data["new_password"] == "" {
		t.Fatalf("unexpected messages: %+v", sent)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", sent[1].data["new_password"], false); err != nil {
		t.Fatalf("Login with delivered password failed: %v", err)
	}
}

func TestForgottenPasswordUnknownIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.ForgottenPassword(context.Background(), "ghost@example.com"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	concealed := newTestEnv(t, func(c *authcore.Config) { c.Recovery.ConcealUnknown = true })
	rec, err := concealed.engine.ForgottenPassword(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("expected concealed success, got %v", err)
	}
	if rec.Code != "" {
		t.Fatal("concealed result must not carry a code")
	}
}

func TestForgottenPasswordExpires(t *testing.T) {
	env := newTestEnv(t, func(c *authcore.Config) { c.Recovery.Expiration = time.Minute })
	ctx := context.Background()
	env.register(t, "ada@example.com")

	rec, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	env.advance(2 * time.Minute)

	if _, err := env.engine.ForgottenPasswordCheck(ctx, rec.Code); !errors.Is(err, authcore.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := env.engine.ForgottenPasswordComplete(ctx, rec.Code); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected the expired code to be destroyed, got %v", err)
	}
}

func TestForgottenPasswordRateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *authcore.Config) {
		c.Recovery.MaxRequests = 2
		c.Recovery.RequestWindow = time.Minute
	})
	ctx := authcore.WithClientIP(context.Background(), "203.0.113.7")
	env.register(t, "ada@example.com")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.ForgottenPassword(ctx, "ada@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	if _, err := env.engine.ForgottenPassword(ctx, "ada@example.com"); !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestResetPasswordWithToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "ada@example.com")

	rec, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}

	if err := env.engine.ResetPasswordWithToken(ctx, rec.Code, "short"); !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	// The policy failure must not burn the code.
	if err := env.engine.ResetPasswordWithToken(ctx, rec.Code, "battery-staple"); err != nil {
		t.Fatalf("ResetPasswordWithToken failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "battery-staple", false); err != nil {
		t.Fatalf("Login with new password failed: %v", err)
	}
}

func TestRecoveryRevokesRememberTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "ada@example.com")

	login, err := env.engine.Login(ctx, "ada@example.com", testPassword, true)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	rec, err := env.engine.ForgottenPassword(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	if _, err := env.engine.ForgottenPasswordComplete(ctx, rec.Code); err != nil {
		t.Fatalf("ForgottenPasswordComplete failed: %v", err)
	}
	if _, err := env.engine.LoginRemembered(ctx, login.RememberToken); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected remember token to be revoked, got %v", err)
	}
}
