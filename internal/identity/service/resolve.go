package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vidgate/internal/identity/models"
	id "vidgate/pkg/domain"
	audit "vidgate/pkg/platform/audit"
	"vidgate/pkg/platform/sentinel"
	"vidgate/pkg/requestcontext"
)

// Resolve verifies a bearer token and attaches an identity to the
// request. It never returns an error: any failure (bad signature,
// revoked jti, unknown identity) resolves to anonymous, and the caller
// branches on the resolution. A lapsed-but-authentic token triggers
// implicit renewal instead of failing.
func (s *Service) Resolve(ctx context.Context, tokenString string) models.Resolution {
	if tokenString == "" {
		return models.Resolution{}
	}
	now := s.clock()

	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		s.logger.DebugContext(ctx, "token verification failed",
			slog.String("error", err.Error()))
		return models.Resolution{}
	}
	if s.isRevoked(ctx, claims.ID) {
		return models.Resolution{}
	}

	identityID, err := claims.IdentityID()
	if err != nil {
		return models.Resolution{}
	}

	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "identity lookup failed",
				slog.String("identity_id", identityID.String()),
				slog.String("error", err.Error()))
		}
		return models.Resolution{}
	}

	if identity.Expired(now) {
		if err := s.autoRenew(ctx, identity, now); err != nil {
			s.logger.WarnContext(ctx, "implicit renewal failed",
				slog.String("identity_id", identityID.String()),
				slog.String("error", err.Error()))
			return models.Resolution{}
		}
	}

	var sessionID id.SessionID
	if session, err := s.sessions.FindActiveByIdentity(ctx, identityID); err == nil && session.TokenJTI == claims.ID {
		sessionID = session.ID
		session.LastActivity = now
		if session.ExpiresAt.Before(identity.ExpiresAt) {
			session.ExpiresAt = identity.ExpiresAt
		}
		if err := s.sessions.Save(ctx, session); err != nil {
			s.logger.WarnContext(ctx, "failed to touch session",
				slog.String("session_id", session.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	return models.Resolution{Identity: identity, SessionID: sessionID}
}

// autoRenew extends a lapsed identity in place. The quota reset is a
// conditional update, so concurrent requests arriving with the same
// lapsed token produce exactly one fresh window; the expiry extension
// itself is idempotent and safe to repeat.
func (s *Service) autoRenew(ctx context.Context, identity *models.Identity, now time.Time) error {
	reset, err := s.renewQuotaWindow(ctx, identity.ID, now)
	if err != nil {
		return err
	}

	identity.ExpiresAt = now.Add(s.cfg.IdentityTTL)
	if err := s.identities.ExtendExpiry(ctx, identity.ID, identity.ExpiresAt); err != nil {
		return err
	}

	if reset {
		if s.metrics != nil {
			s.metrics.IdentitiesRenewed.WithLabelValues("auto").Inc()
		}
		audit.Log(ctx, s.logger, s.emitter, audit.Event{
			IdentityID: identity.ID,
			Action:     string(audit.EventIdentityAutoRenewed),
			RequestID:  requestcontext.RequestID(ctx),
		})
	}
	return nil
}
