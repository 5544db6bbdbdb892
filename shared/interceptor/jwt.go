package interceptor

import (
	"context"
	"net/http"

	"github.com/vasapolrittideah/health-journal-api/shared/auth"
)

// TokenAuthenticator turns a raw bearer token into verified claims.
type TokenAuthenticator[C any] interface {
	Authenticate(ctx context.Context, token string) (C, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type claimsKey struct{}

// NewJWTMiddleware requires an "Authorization: Bearer <token>" header on
// every request it wraps. Verified claims are stored on the request context
// for ClaimsFromContext. A missing or malformed header is reported to
// onError as auth.ErrMissingToken.
func NewJWTMiddleware[C any](authenticator TokenAuthenticator[C], onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, r, err)
				return
			}

			claims, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by NewJWTMiddleware.
func ClaimsFromContext[C any](ctx context.Context) (C, bool) {
	claims, ok := ctx.Value(claimsKey{}).(C)
	return claims, ok
}
