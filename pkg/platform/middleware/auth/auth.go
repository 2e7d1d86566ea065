package auth

import (
	"context"
	"net/http"
	"strings"

	"vidgate/internal/identity/models"
	"vidgate/pkg/requestcontext"
)

// Resolver turns a bearer token into a resolution. Verification is
// fail-open: bad, revoked, or orphaned tokens resolve to anonymous
// instead of producing an error.
type Resolver interface {
	Resolve(ctx context.Context, tokenString string) models.Resolution
}

// ResolveIdentity extracts the bearer token, resolves it, and attaches
// the identity and session ids to the context. Anonymous requests pass
// through untouched; handlers that need an identity use RequireIdentity.
func ResolveIdentity(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res := resolver.Resolve(ctx, BearerToken(r))
			if !res.Anonymous() {
				ctx = requestcontext.WithIdentityID(ctx, res.Identity.ID)
				ctx = requestcontext.WithSessionID(ctx, res.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity rejects anonymous requests with 401. It must run
// after ResolveIdentity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.IdentityID(r.Context()).IsNil() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"a valid token is required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from the Authorization header, or ""
// when absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
