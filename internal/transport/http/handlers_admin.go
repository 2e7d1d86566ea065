package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vidgate/internal/cache"
	"vidgate/internal/upstream"
	dErrors "vidgate/pkg/domain-errors"
	"vidgate/pkg/platform/middleware/admin"
)

// CacheAdmin is the operational surface of the response cache.
type CacheAdmin interface {
	InvalidateClass(ctx context.Context, class upstream.EndpointClass) (int, error)
	InvalidateAll(ctx context.Context) (int, error)
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	Warm(ctx context.Context, targets []cache.WarmTarget) (int, error)
	Stats(ctx context.Context) (*cache.Stats, error)
	Popular(ctx context.Context, limit int) ([]cache.PopularEntry, error)
}

// Sweeper triggers an immediate reaper pass.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// AdminHandler serves the key-guarded operational endpoints.
type AdminHandler struct {
	cache   CacheAdmin
	sweeper Sweeper
	keyHash string
	logger  *slog.Logger
}

func NewAdminHandler(cacheAdmin CacheAdmin, sweeper Sweeper, keyHash string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		cache:   cacheAdmin,
		sweeper: sweeper,
		keyHash: keyHash,
		logger:  logger,
	}
}

// Register wires the admin routes behind the admin key guard. With no
// key hash configured the whole surface stays dark.
func (h *AdminHandler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(admin.RequireAdminKey(h.keyHash, h.logger))
	adminRouter.Post("/cache/invalidate", h.handleInvalidate)
	adminRouter.Post("/cache/warm", h.handleWarm)
	adminRouter.Get("/cache/stats", h.handleStats)
	adminRouter.Get("/cache/popular", h.handlePopular)
	adminRouter.Post("/cleanup", h.handleCleanup)
	r.Mount("/admin", adminRouter)
}

type invalidateRequest struct {
	// Pattern is an exact cache key or glob; Class selects one endpoint
	// class. Pattern wins when both are set; with neither, everything
	// goes.
	Pattern string `json:"pattern"`
	Class   string `json:"class"`
}

func (h *AdminHandler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req invalidateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	var removed int
	var err error
	switch {
	case req.Pattern != "":
		removed, err = h.cache.InvalidatePattern(ctx, req.Pattern)
	case req.Class != "":
		removed, err = h.cache.InvalidateClass(ctx, upstream.EndpointClass(req.Class))
	default:
		removed, err = h.cache.InvalidateAll(ctx)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"invalidated": removed})
}

type warmRequest struct {
	Targets []cache.WarmTarget `json:"targets"`
}

func (h *AdminHandler) handleWarm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req warmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "targets are required"))
		return
	}

	// Warming is fire-and-forget: the batch is paced and can outlive the
	// admin request that triggered it.
	warmCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := h.cache.Warm(warmCtx, req.Targets); err != nil {
			h.logger.Warn("cache warm run aborted", "error", err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]int{"targets": len(req.Targets)})
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) handlePopular(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	ranked, err := h.cache.Popular(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": ranked})
}

func (h *AdminHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cleanup failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
