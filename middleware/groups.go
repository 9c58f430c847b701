package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// RequireAnyGroup admits members of at least one of refs (group ids or names).
func RequireAnyGroup(engine *authcore.Engine, refs ...string) func(http.Handler) http.Handler {
	return guard(engine, func(ctx context.Context, user *authcore.User) (bool, error) {
		return engine.Groups().IsInAnyOf(ctx, user.ID, refs...)
	})
}

// RequireAllGroups admits members of every group in refs.
func RequireAllGroups(engine *authcore.Engine, refs ...string) func(http.Handler) http.Handler {
	return guard(engine, func(ctx context.Context, user *authcore.User) (bool, error) {
		return engine.Groups().IsInAll(ctx, user.ID, refs...)
	})
}

// RequireAdmin admits members of the configured admin group.
func RequireAdmin(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(ctx context.Context, user *authcore.User) (bool, error) {
		return engine.Groups().IsAdmin(ctx, user.ID)
	})
}
