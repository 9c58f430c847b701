package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type userContextKey struct{}

// UserFromContext returns the user a guard resolved for this request.
func UserFromContext(ctx context.Context) (*authcore.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*authcore.User)
	return u, ok && u != nil
}

// HandleFromRequest returns the bearer session handle, if any.
func HandleFromRequest(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

// ClientIP attaches the remote host to the request context so the Engine can throttle and
// audit by address.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(authcore.WithClientIP(r.Context(), host)))
	})
}

// RequireSession rejects requests without a live session.
func RequireSession(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, nil)
}

func guard(engine *authcore.Engine, check func(ctx context.Context, user *authcore.User) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			handle, ok := HandleFromRequest(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := engine.CurrentUser(r.Context(), handle)
			if err != nil || !user.Active {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if check != nil {
				allowed, err := check(r.Context(), user)
				if err != nil {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				if !allowed {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
