package service

import (
	"context"
	"errors"

	"vidgate/internal/identity/models"
	"vidgate/internal/identity/store"
	id "vidgate/pkg/domain"
	dErrors "vidgate/pkg/domain-errors"
	"vidgate/pkg/platform/sentinel"
)

// IdentityDetails is the full identity view: the snapshot plus session
// summaries and the recent usage log.
type IdentityDetails struct {
	Identity models.IdentitySnapshot `json:"identity"`
	Sessions []models.SessionSummary `json:"sessions"`
	Usage    []models.UsageEntry     `json:"recent_usage"`
}

// Details composes the identity view for the "who am I" endpoint.
// currentSessionID marks which session summary belongs to the caller.
func (s *Service) Details(ctx context.Context, identityID id.IdentityID, currentSessionID id.SessionID) (*IdentityDetails, error) {
	identity, err := s.identities.FindByID(ctx, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}

	used := int64(0)
	if q, err := s.quotas.Get(ctx, identityID); err == nil {
		used = q.Used
	}

	sessions, err := s.sessions.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	summaries := make([]models.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary(session.ID == currentSessionID))
	}

	usage, err := s.identities.ListUsage(ctx, identityID, store.UsageLogCap)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list usage")
	}

	return &IdentityDetails{
		Identity: s.snapshot(identity, used),
		Sessions: summaries,
		Usage:    usage,
	}, nil
}

// RecordUsage appends one call to the identity's bounded usage history.
// Failures are not propagated: the call already happened, and history is
// best-effort bookkeeping.
func (s *Service) RecordUsage(ctx context.Context, identityID id.IdentityID, entry models.UsageEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock()
	}
	if err := s.identities.AppendUsage(ctx, identityID, entry); err != nil {
		s.logger.WarnContext(ctx, "failed to record usage",
			"identity_id", identityID.String(),
			"error", err.Error())
	}
}
