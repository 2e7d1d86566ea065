package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidgate/internal/identity/service"
	id "vidgate/pkg/domain"
	dErrors "vidgate/pkg/domain-errors"
	"vidgate/pkg/platform/middleware/auth"
	"vidgate/pkg/requestcontext"
)

// IdentityService is the slice of the identity manager the auth
// endpoints need.
type IdentityService interface {
	Create(ctx context.Context, label string) (*service.TokenGrant, error)
	Renew(ctx context.Context, tokenString string) (*service.TokenGrant, error)
	Revoke(ctx context.Context, tokenString string) error
	Details(ctx context.Context, identityID id.IdentityID, currentSessionID id.SessionID) (*service.IdentityDetails, error)
}

// AuthHandler serves the identity lifecycle endpoints.
type AuthHandler struct {
	identities IdentityService
	logger     *slog.Logger
}

func NewAuthHandler(identities IdentityService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identities: identities, logger: logger}
}

// Register wires the auth routes. The "me" endpoint requires a resolved
// identity; the rest operate on the presented token directly.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/token", h.handleIssue)
	r.Post("/auth/renew", h.handleRenew)
	r.Post("/auth/logout", h.handleLogout)
	r.With(auth.RequireIdentity).Get("/auth/me", h.handleMe)
}

type issueRequest struct {
	Label string `json:"label"`
}

func (h *AuthHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	if len(req.Label) > 64 {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "label too long"))
		return
	}

	grant, err := h.identities.Create(ctx, req.Label)
	if err != nil {
		h.logger.WarnContext(ctx, "identity issuance refused",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, grant)
}

func (h *AuthHandler) handleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenString := auth.BearerToken(r)
	if tokenString == "" {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}

	grant, err := h.identities.Renew(ctx, tokenString)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenString := auth.BearerToken(r)
	if tokenString == "" {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}

	if err := h.identities.Revoke(ctx, tokenString); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	details, err := h.identities.Details(ctx, requestcontext.IdentityID(ctx), requestcontext.SessionID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}
