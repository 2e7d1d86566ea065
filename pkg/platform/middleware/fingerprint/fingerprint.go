// Package fingerprint derives the client fingerprint the abuse guard
// keys on: a hash of the client IP and User-Agent. It is deliberately
// coarse -- the goal is grouping mass issuance from one client, not
// tracking individuals.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"vidgate/pkg/requestcontext"
)

// Middleware computes the fingerprint from the client metadata already
// in the context, so it must run after the metadata middleware.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fp := Derive(requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx))
		next.ServeHTTP(w, r.WithContext(requestcontext.WithFingerprint(ctx, fp)))
	})
}

// Derive hashes the client IP and User-Agent into a stable fingerprint.
func Derive(clientIP, userAgent string) string {
	sum := sha256.Sum256([]byte(clientIP + "\x00" + userAgent))
	return hex.EncodeToString(sum[:])
}
