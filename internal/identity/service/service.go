// Package service orchestrates the anonymous identity lifecycle: token
// issuance behind the abuse guard, fail-open verification with implicit
// renewal, explicit renewal, and logout into the revocation ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidgate/internal/identity/models"
	"vidgate/internal/identity/store"
	"vidgate/internal/identity/token"
	"vidgate/internal/platform/metrics"
	"vidgate/internal/quota"
	id "vidgate/pkg/domain"
	dErrors "vidgate/pkg/domain-errors"
	audit "vidgate/pkg/platform/audit"
	"vidgate/pkg/platform/sentinel"
	"vidgate/pkg/requestcontext"
)

// QuotaLedger is the slice of the quota service this package needs.
type QuotaLedger interface {
	Get(ctx context.Context, identityID id.IdentityID) (*quota.Quota, error)
	Init(ctx context.Context, identityID id.IdentityID, limit int64, resetsAt time.Time) error
	ResetIfExpired(ctx context.Context, identityID id.IdentityID, now, newResetsAt time.Time) (bool, error)
	Reset(ctx context.Context, identityID id.IdentityID, newResetsAt time.Time) error
}

// Config carries the issuance policy.
type Config struct {
	// IdentityTTL is the identity lifetime; token expiry mirrors it.
	IdentityTTL time.Duration

	// QuotaLimit is the per-identity unit budget per quota window.
	QuotaLimit int64

	// AbuseSessionThreshold is the maximum number of live sessions one
	// client fingerprint may hold before issuance is refused.
	AbuseSessionThreshold int
}

// TokenGrant is the result of issuance and renewal: the signed token
// plus the snapshot the client renders.
type TokenGrant struct {
	Token     string                  `json:"token"`
	ExpiresAt time.Time               `json:"expires_at"`
	SessionID string                  `json:"session_id"`
	Identity  models.IdentitySnapshot `json:"identity"`
}

// Service implements the identity and session manager.
type Service struct {
	identities  store.IdentityStore
	sessions    store.SessionStore
	revocations store.RevocationStore
	quotas      QuotaLedger
	codec       *token.Codec
	cfg         Config

	logger  *slog.Logger
	emitter audit.Emitter
	metrics *metrics.Metrics
	clock   func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(identities store.IdentityStore, sessions store.SessionStore, revocations store.RevocationStore, quotas QuotaLedger, codec *token.Codec, cfg Config, opts ...Option) (*Service, error) {
	if identities == nil || sessions == nil || revocations == nil || quotas == nil || codec == nil {
		return nil, fmt.Errorf("identity service requires all stores and the token codec")
	}
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = 24 * time.Hour
	}
	if cfg.QuotaLimit <= 0 {
		cfg.QuotaLimit = 100
	}
	if cfg.AbuseSessionThreshold <= 0 {
		cfg.AbuseSessionThreshold = 25
	}

	s := &Service{
		identities:  identities,
		sessions:    sessions,
		revocations: revocations,
		quotas:      quotas,
		codec:       codec,
		cfg:         cfg,
		logger:      slog.Default(),
		clock:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Create issues a fresh anonymous identity with a full quota window and
// a live session. Issuance is refused when the client fingerprint
// already holds too many live sessions.
func (s *Service) Create(ctx context.Context, label string) (*TokenGrant, error) {
	now := s.clock()
	fingerprint := requestcontext.Fingerprint(ctx)

	if fingerprint != "" {
		active, err := s.sessions.CountActiveByFingerprint(ctx, fingerprint, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check session count")
		}
		if active >= s.cfg.AbuseSessionThreshold {
			if s.metrics != nil {
				s.metrics.AbuseRejections.Inc()
			}
			audit.Log(ctx, s.logger, s.emitter, audit.Event{
				Action:      string(audit.EventAbuseDetected),
				Reason:      fmt.Sprintf("%d live sessions", active),
				Fingerprint: fingerprint,
				IP:          requestcontext.ClientIP(ctx),
				RequestID:   requestcontext.RequestID(ctx),
			})
			return nil, dErrors.New(dErrors.CodeAbuseDetected, "too many active sessions for this client")
		}
	}

	identityID := id.NewIdentityID()
	if label == "" {
		label = defaultLabel(identityID)
	}

	identity := &models.Identity{
		ID:        identityID,
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.IdentityTTL),
	}
	if err := s.identities.Save(ctx, identity); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save identity")
	}

	if err := s.quotas.Init(ctx, identityID, s.cfg.QuotaLimit, identity.ExpiresAt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to init quota")
	}

	grant, err := s.grantSession(ctx, identity, 0, now)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IdentitiesCreated.Inc()
	}
	audit.Log(ctx, s.logger, s.emitter, audit.Event{
		IdentityID:  identityID,
		Action:      string(audit.EventIdentityCreated),
		Fingerprint: fingerprint,
		IP:          requestcontext.ClientIP(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	})

	return grant, nil
}

// Renew extends a live identity and re-signs its token: the quota
// window starts over, the expiry moves out by a full TTL, and the
// previous token's jti enters the revocation ledger so both cannot
// circulate.
func (s *Service) Renew(ctx context.Context, tokenString string) (*TokenGrant, error) {
	now := s.clock()

	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if revoked := s.isRevoked(ctx, claims.ID); revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}

	identityID, err := claims.IdentityID()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}

	identity, err := s.identities.FindByID(ctx, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "identity no longer exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}

	identity.ExpiresAt = now.Add(s.cfg.IdentityTTL)
	if err := s.identities.ExtendExpiry(ctx, identityID, identity.ExpiresAt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to extend identity")
	}
	if err := s.resetQuotaWindow(ctx, identityID, identity.ExpiresAt); err != nil {
		return nil, err
	}

	grant, err := s.grantSession(ctx, identity, 0, now)
	if err != nil {
		return nil, err
	}

	// The superseded token dies with the renewal.
	if err := s.revocations.Revoke(ctx, models.RevokedToken{
		JTI:        claims.ID,
		IdentityID: identityID,
		Reason:     models.RevocationReasonRevoked,
		RevokedAt:  now,
		ExpiresAt:  identity.ExpiresAt,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke superseded token",
			slog.String("identity_id", identityID.String()),
			slog.String("error", err.Error()))
	}

	if s.metrics != nil {
		s.metrics.IdentitiesRenewed.WithLabelValues("explicit").Inc()
	}
	audit.Log(ctx, s.logger, s.emitter, audit.Event{
		IdentityID: identityID,
		Action:     string(audit.EventIdentityRenewed),
		RequestID:  requestcontext.RequestID(ctx),
	})

	return grant, nil
}

// Revoke logs the presented token out: its session is deactivated and
// the jti enters the revocation ledger until the token's own expiry.
// Revoking an already-revoked token is a no-op.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	now := s.clock()

	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	identityID, err := claims.IdentityID()
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}

	expiresAt := now
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, models.RevokedToken{
		JTI:        claims.ID,
		IdentityID: identityID,
		Reason:     models.RevocationReasonLogout,
		RevokedAt:  now,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}

	if session, err := s.sessions.FindActiveByIdentity(ctx, identityID); err == nil && session.TokenJTI == claims.ID {
		session.Deactivate(now)
		if err := s.sessions.Save(ctx, session); err != nil {
			s.logger.WarnContext(ctx, "failed to deactivate session",
				slog.String("session_id", session.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	if s.metrics != nil {
		s.metrics.SessionsRevoked.Inc()
	}
	audit.Log(ctx, s.logger, s.emitter, audit.Event{
		IdentityID: identityID,
		Action:     string(audit.EventSessionRevoked),
		Reason:     models.RevocationReasonLogout.String(),
		RequestID:  requestcontext.RequestID(ctx),
	})

	return nil
}

// grantSession signs a token for the identity and installs it as the
// authoritative session, deactivating any previous one.
func (s *Service) grantSession(ctx context.Context, identity *models.Identity, quotaUsed int64, now time.Time) (*TokenGrant, error) {
	signed, jti, err := s.codec.Issue(identity.ID, quotaUsed, s.cfg.QuotaLimit, identity.ExpiresAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}

	if previous, err := s.sessions.FindActiveByIdentity(ctx, identity.ID); err == nil {
		previous.Deactivate(now)
		if err := s.sessions.Save(ctx, previous); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate previous session")
		}
	}

	session := &models.Session{
		ID:           id.NewSessionID(),
		IdentityID:   identity.ID,
		TokenJTI:     jti,
		Fingerprint:  requestcontext.Fingerprint(ctx),
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Status:       models.SessionStatusActive,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    identity.ExpiresAt,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}

	return &TokenGrant{
		Token:     signed,
		ExpiresAt: identity.ExpiresAt,
		SessionID: session.ID.String(),
		Identity:  s.snapshot(identity, quotaUsed),
	}, nil
}

// resetQuotaWindow starts a fresh window on explicit renewal. A reaped
// record is re-initialized rather than treated as an error.
func (s *Service) resetQuotaWindow(ctx context.Context, identityID id.IdentityID, newResetsAt time.Time) error {
	err := s.quotas.Reset(ctx, identityID, newResetsAt)
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		if err := s.quotas.Init(ctx, identityID, s.cfg.QuotaLimit, newResetsAt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reinit quota")
		}
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset quota window")
}

// renewQuotaWindow advances a lapsed quota window. A reaped record is
// re-initialized rather than treated as an error.
func (s *Service) renewQuotaWindow(ctx context.Context, identityID id.IdentityID, now time.Time) (bool, error) {
	newResetsAt := now.Add(s.cfg.IdentityTTL)
	reset, err := s.quotas.ResetIfExpired(ctx, identityID, now, newResetsAt)
	if err == nil {
		return reset, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		if err := s.quotas.Init(ctx, identityID, s.cfg.QuotaLimit, newResetsAt); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reinit quota")
		}
		return true, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to renew quota window")
}

// isRevoked consults the revocation ledger, failing open on backend
// errors so a ledger outage degrades lookups instead of all traffic.
func (s *Service) isRevoked(ctx context.Context, jti string) bool {
	revoked, err := s.revocations.IsRevoked(ctx, jti)
	if err != nil {
		s.logger.WarnContext(ctx, "revocation lookup failed",
			slog.String("error", err.Error()))
		return false
	}
	return revoked
}

func (s *Service) snapshot(identity *models.Identity, quotaUsed int64) models.IdentitySnapshot {
	remaining := s.cfg.QuotaLimit - quotaUsed
	if remaining < 0 {
		remaining = 0
	}
	return models.IdentitySnapshot{
		ID:             identity.ID.String(),
		Label:          identity.Label,
		QuotaUsed:      quotaUsed,
		QuotaLimit:     s.cfg.QuotaLimit,
		QuotaRemaining: remaining,
		CreatedAt:      identity.CreatedAt,
		ExpiresAt:      identity.ExpiresAt,
	}
}

func defaultLabel(identityID id.IdentityID) string {
	raw := identityID.String()
	if len(raw) >= 8 {
		raw = raw[:8]
	}
	return "viewer-" + raw
}
