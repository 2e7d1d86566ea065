package admin

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"vidgate/pkg/requestcontext"
)

// RequireAdminKey guards operational endpoints. The cleartext key from
// the X-Admin-Key header is compared against the configured bcrypt hash,
// so the deployment never stores the key itself.
func RequireAdminKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if keyHash == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin key mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin key required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
