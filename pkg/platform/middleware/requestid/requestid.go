package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"vidgate/pkg/requestcontext"
)

const Header = "X-Request-ID"

// Middleware attaches a request id to the context and echoes it in the
// response. An id supplied by the client is kept so log lines can be
// correlated across hops.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
