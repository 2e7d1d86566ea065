package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vidgate/internal/cache"
	"vidgate/internal/identity/models"
	"vidgate/internal/quota"
	"vidgate/internal/upstream"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/middleware/auth"
	"vidgate/pkg/requestcontext"
)

// QuotaCharger is the request-path quota gate.
type QuotaCharger interface {
	Charge(ctx context.Context, identityID id.IdentityID, cost int64, window time.Duration) (*quota.Quota, error)
}

// ResponseCache serves upstream responses, cached or fresh.
type ResponseCache interface {
	GetOrFetch(ctx context.Context, class upstream.EndpointClass, params url.Values) (*cache.Entry, bool, error)
}

// UsageRecorder appends to the per-identity call history.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, identityID id.IdentityID, entry models.UsageEntry)
}

// APIHandler serves the proxied, metered API surface. Every route
// charges quota before consulting the cache: a cached response still
// costs a unit, which keeps accounting independent of cache luck.
type APIHandler struct {
	quotas      QuotaCharger
	cache       ResponseCache
	usage       UsageRecorder
	quotaWindow time.Duration
	logger      *slog.Logger
}

func NewAPIHandler(quotas QuotaCharger, responseCache ResponseCache, usage UsageRecorder, quotaWindow time.Duration, logger *slog.Logger) *APIHandler {
	if quotaWindow <= 0 {
		quotaWindow = 24 * time.Hour
	}
	return &APIHandler{
		quotas:      quotas,
		cache:       responseCache,
		usage:       usage,
		quotaWindow: quotaWindow,
		logger:      logger,
	}
}

// Register wires the metered routes. All of them require a resolved
// identity.
func (h *APIHandler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(auth.RequireIdentity)
	api.Get("/search", h.classHandler(upstream.ClassSearch))
	api.Get("/videos", h.classHandler(upstream.ClassVideo))
	api.Get("/channels", h.classHandler(upstream.ClassChannel))
	api.Get("/playlists", h.classHandler(upstream.ClassPlaylist))
	api.Get("/trending", h.classHandler(upstream.ClassTrending))
	r.Mount("/api", api)
}

func (h *APIHandler) classHandler(class upstream.EndpointClass) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identityID := requestcontext.IdentityID(ctx)

		q, err := h.quotas.Charge(ctx, identityID, class.Cost(), h.quotaWindow)
		if err != nil {
			writeError(w, err)
			return
		}

		params := r.URL.Query()
		entry, hit, err := h.cache.GetOrFetch(ctx, class, params)
		if err != nil {
			writeError(w, err)
			return
		}

		h.usage.RecordUsage(ctx, identityID, models.UsageEntry{
			Query: params.Encode(),
			Class: string(class),
			Cost:  class.Cost(),
		})

		if hit {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		w.Header().Set("X-Cache-Key", entry.Key)
		w.Header().Set("X-Quota-Used", strconv.FormatInt(q.Used, 10))
		w.Header().Set("X-Quota-Limit", strconv.FormatInt(q.Limit, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(entry.Value)
	}
}
