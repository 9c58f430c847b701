package authcore_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestRegisterDefaultsAndDuplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	members, err := env.engine.Groups().CreateGroup(ctx, "members", "General users")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	res, err := env.engine.Register(ctx, authcore.RegisterRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.User.Active || res.User.Identity != "ada@example.com" || res.ActivationCode != "" {
		t.Fatalf("unexpected registration: %+v", res)
	}

	ok, err := env.engine.Groups().IsMember(ctx, res.User.ID, members.ID)
	if err != nil || !ok {
		t.Fatalf("expected default group membership, ok=%v err=%v", ok, err)
	}

	dupes := []authcore.RegisterRequest{
		{Email: "ada@example.com", Password: testPassword},
		{Username: "ada", Email: "other@example.com", Password: testPassword},
	}
	for _, req := range dupes {
		if _, err := env.engine.Register(ctx, req); !errors.Is(err, authcore.ErrDuplicateIdentity) {
			t.Fatalf("Register(%+v): expected ErrDuplicateIdentity, got %v", req, err)
		}
	}

	if _, err := env.engine.Register(ctx, authcore.RegisterRequest{Email: "bob@example.com", Password: "short"}); !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := env.engine.Register(ctx, authcore.RegisterRequest{Password: testPassword}); !errors.Is(err, authcore.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBcryptRejectsPasswordOverByteLimit(t *testing.T) {
	env := newTestEnv(t, func(c *authcore.Config) { c.Identity.MaxPasswordLength = 20 })
	ctx := context.Background()

	// Twenty runes, eighty bytes.
	long := strings.Repeat("\U0001F600", 20)
	_, err := env.engine.Register(ctx, authcore.RegisterRequest{Email: "ada@example.com", Password: long})
	if !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	env.register(t, "bob@example.com")
	if err := env.engine.ResetPassword(ctx, "bob@example.com", long); !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy on reset, got %v", err)
	}

	// Eighteen 4-byte runes fit in 72 bytes.
	if err := env.engine.ResetPassword(ctx, "bob@example.com", strings.Repeat("\U0001F600", 18)); err != nil {
		t.Fatalf("ResetPassword at the byte limit failed: %v", err)
	}
}

func TestIdentityChecks(t *testing.T) {
	env := newTestEnv(t, func(c *authcore.Config) { c.Identity.Field = "username" })
	ctx := context.Background()

	res, err := env.engine.Register(ctx, authcore.RegisterRequest{Username: "ada", Email: "ada@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.User.Identity != "ada" {
		t.Fatalf("expected username identity, got %q", res.User.Identity)
	}

	checks := []struct {
		name string
		fn   func(context.Context, string) (bool, error)
		in   string
		want bool
	}{
		{"identity", env.engine.IdentityExists, "ada", true},
		{"email", env.engine.EmailExists, "ada@example.com", true},
		{"username", env.engine.UsernameExists, "bob", false},
		{"empty", env.engine.IdentityExists, "", false},
	}
	for _, c := range checks {
		got, err := c.fn(ctx, c.in)
		if err != nil || got != c.want {
			t.Fatalf("%s(%q) = %v, %v; want %v", c.name, c.in, got, err, c.want)
		}
	}
}

func TestEmailActivation(t *testing.T) {
	env := newTestEnv(t, func(c *authcore.Config) { c.Activation.Email = true })
	ctx := context.Background()

	res, err := env.engine.Register(ctx, authcore.RegisterRequest{Email: "ada@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.User.Active || len(res.ActivationCode) != 40 {
		t.Fatalf("expected inactive account with a code, got %+v", res)
	}

	if _, err := env.engine.Login(ctx, "ada@example.com", testPassword, false); !errors.Is(err, authcore.ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
	if _, err := env.engine.ActivateByCode(ctx, "not-a-code"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}

	id, err := env.engine.ActivateByCode(ctx, res.ActivationCode)
	if err != nil {
		t.Fatalf("ActivateByCode failed: %v", err)
	}
	if id != res.User.ID {
		t.Fatalf("activated %s, want %s", id, res.User.ID)
	}
	if _, err := env.engine.ActivateByCode(ctx, res.ActivationCode); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected used code to be gone, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", testPassword, false); err != nil {
		t.Fatalf("Login after activation failed: %v", err)
	}
}

func TestEmailActivationThroughNotifier(t *testing.T) {
	env := newTestEnv(t, func(c *authcore.Config) { c.Activation.Email = true }, withNotifier())
	ctx := context.Background()

	res, err := env.engine.Register(ctx, authcore.RegisterRequest{Email: "ada@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.Delivered || res.ActivationCode != "" {
		t.Fatalf("expected delivered activation, got %+v", res)
	}

	sent := env.messages()
	if len(sent) != 1 || sent[0].template != "activate" {
		t.Fatalf("unexpected messages: %+v", sent)
	}
	if sent[0].data["id"] != res.User.ID || sent[0].data["activation"] == "" {
		t.Fatalf("unexpected activation data: %v", sent[0].data)
	}
}

func TestDeactivateIssuesNewCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "ada@example.com")
	login, err := env.engine.Login(ctx, "ada@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	code, err := env.engine.Deactivate(ctx, user.ID)
	if err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if env.engine.LoggedIn(ctx, login.SessionHandle) {
		t.Fatal("deactivation must end open sessions")
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", testPassword, false); !errors.Is(err, authcore.ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
	if _, err := env.engine.ActivateByCode(ctx, code); err != nil {
		t.Fatalf("ActivateByCode failed: %v", err)
	}
	if _, err := env.engine.Deactivate(ctx, "missing"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	ada := env.register(t, "ada@example.com")
	env.register(t, "bob@example.com")

	taken := "bob@example.com"
	if _, err := env.engine.UpdateUser(ctx, ada.ID, authcore.UserUpdate{Identity: &taken, Email: &taken}); !errors.Is(err, authcore.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	first := "Augusta"
	pw := "battery-staple"
	updated, err := env.engine.UpdateUser(ctx, ada.ID, authcore.UserUpdate{FirstName: &first, Password: &pw})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if updated.FirstName != "Augusta" || updated.Identity != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", updated)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", pw, false); err != nil {
		t.Fatalf("Login with updated password failed: %v", err)
	}

	short := "short"
	if _, err := env.engine.UpdateUser(ctx, ada.ID, authcore.UserUpdate{Password: &short}); !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := env.engine.UpdateUser(ctx, "missing", authcore.UserUpdate{FirstName: &first}); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "ada@example.com")

	login, err := env.engine.Login(ctx, "ada@example.com", testPassword, true)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.engine.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	if _, err := env.engine.User(ctx, user.ID); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if env.engine.LoggedIn(ctx, login.SessionHandle) {
		t.Fatal("session of a deleted user must not resolve")
	}
	if _, err := env.engine.LoginRemembered(ctx, login.RememberToken); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected remember token to be revoked, got %v", err)
	}
	if err := env.engine.DeleteUser(ctx, user.ID); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditAndHooks(t *testing.T) {
	var (
		before   []authcore.HookEvent
		failures []authcore.HookEvent
	)
	env := newTestEnv(t, func(c *authcore.Config) { c.Audit.Enabled = true }, withAudit(),
		func(_ *testEnv, b *authcore.Builder) {
			b.WithHook(authcore.OpLogin, authcore.BeforeVerify, func(_ context.Context, ev authcore.HookEvent) {
				before = append(before, ev)
			})
			b.WithHook(authcore.OpLogin, authcore.BeforeVerify, func(context.Context, authcore.HookEvent) {
				panic("hook bug")
			})
			b.WithHook(authcore.OpLogin, authcore.AfterFailure, func(_ context.Context, ev authcore.HookEvent) {
				failures = append(failures, ev)
			})
		})
	ctx := authcore.WithClientIP(context.Background(), "198.51.100.4")
	env.register(t, "ada@example.com")

	if _, err := env.engine.Login(ctx, "ada@example.com", "wrong-password", false); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials despite a panicking hook, got %v", err)
	}
	env.engine.Close()

	if len(before) != 1 || before[0].Identity != "ada@example.com" || before[0].Point != authcore.BeforeVerify {
		t.Fatalf("unexpected before hooks: %+v", before)
	}
	if len(failures) != 1 || failures[0].Err != authcore.ErrInvalidCredentials {
		t.Fatalf("unexpected failure hooks: %+v", failures)
	}

	var login *authcore.AuditEvent
	for len(env.audit.Events()) > 0 {
		ev := <-env.audit.Events()
		if ev.EventType == "login_failure" {
			login = &ev
		}
	}
	if login == nil {
		t.Fatal("no login_failure audit event")
	}
	if login.Error != "invalid_credentials" || login.IP != "198.51.100.4" || login.Success {
		t.Fatalf("unexpected audit event: %+v", login)
	}
}
