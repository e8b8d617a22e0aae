package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/identity"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by a guard.
func PrincipalFromContext(ctx context.Context) (*otpgate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*otpgate.Principal)
	return p, ok
}

// WithPrincipal stores p on ctx the way the guards do. Handlers under test can
// use it to skip the guard.
func WithPrincipal(ctx context.Context, p *otpgate.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

type resolveFunc func(ctx context.Context, credential string) (*otpgate.Principal, error)

func guard(resolve resolveFunc, roles []identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolve == nil {
				unauthorized(w)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			ctx := otpgate.WithUserAgent(r.Context(), r.UserAgent())
			p, err := resolve(ctx, token)
			if err != nil {
				if errors.Is(err, otpgate.ErrUnauthorized) {
					unauthorized(w)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			if !roleAllowed(p.Role, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func roleAllowed(role identity.Role, roles []identity.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, allowed := range roles {
		if role == allowed {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="otpgate"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
