package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidgate/pkg/platform/middleware/auth"
	"vidgate/pkg/platform/middleware/fingerprint"
	"vidgate/pkg/platform/middleware/metadata"
	"vidgate/pkg/platform/middleware/requestid"
	"vidgate/pkg/platform/middleware/requesttime"
)

// HealthChecker reports backend liveness for the health endpoint.
type HealthChecker func(ctx context.Context) error

// NewRouter assembles the full HTTP surface: identity lifecycle, the
// metered API, the admin plane, health, and metrics.
func NewRouter(
	authHandler *AuthHandler,
	apiHandler *APIHandler,
	adminHandler *AdminHandler,
	resolver auth.Resolver,
	health HealthChecker,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(fingerprint.Middleware)
	r.Use(auth.ResolveIdentity(resolver))

	authHandler.Register(r)
	apiHandler.Register(r)
	adminHandler.Register(r)

	r.Get("/healthz", handleHealth(health, logger))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(health HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "error", err.Error())
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
