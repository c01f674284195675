package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type identityContextKey struct{}
type tokenContextKey struct{}

// IdentityFromContext returns the identity stored by Guard.
func IdentityFromContext(ctx context.Context) (authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(authcore.Identity)
	return id, ok
}

// TokenFromContext returns the bearer token accepted by Guard.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok
}

// Guard admits requests carrying a valid bearer token for an existing
// identity.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return RequireRoles(engine)
}

// RequireRoles admits requests whose identity holds one of roles. With no
// roles it behaves like Guard.
func RequireRoles(engine *authcore.Engine, roles ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, authcore.ErrTokenInvalid)
				return
			}

			id, err := engine.Authorize(r.Context(), token, roles...)
			if err != nil {
				if status, _ := authcore.PublicError(err); status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			ctx = context.WithValue(ctx, tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
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
