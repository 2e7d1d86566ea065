// Package store defines persistence contracts for the identity domain.
//
// Implementations return sentinel errors (pkg/platform/sentinel) for
// infrastructure facts; the service layer translates them into domain
// errors. Every store treats expired-but-not-yet-reaped records as
// absent (lazy expiry); DeleteExpired is the reaper's eager half.
package store

import (
	"context"
	"time"

	"vidgate/internal/identity/models"
	id "vidgate/pkg/domain"
)

// UsageLogCap bounds the per-identity call history.
const UsageLogCap = 50

type IdentityStore interface {
	// Save upserts the identity record.
	Save(ctx context.Context, identity *models.Identity) error

	// FindByID returns sentinel.ErrNotFound for unknown ids. Records
	// whose expiry has lapsed but which the reaper has not collected yet
	// are still returned: the auto-renewal path needs to distinguish
	// "lapsed" from "gone", so callers check Expired themselves.
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)

	// ExtendExpiry moves the identity's expiry forward. Idempotent;
	// last writer wins.
	ExtendExpiry(ctx context.Context, identityID id.IdentityID, expiresAt time.Time) error

	// AppendUsage records a call in the bounded usage history.
	AppendUsage(ctx context.Context, identityID id.IdentityID, entry models.UsageEntry) error

	// ListUsage returns the most recent usage entries, newest first.
	ListUsage(ctx context.Context, identityID id.IdentityID, limit int) ([]models.UsageEntry, error)

	// DeleteExpired removes identities whose expiry precedes now and
	// returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type SessionStore interface {
	// Save upserts the session record and its indexes.
	Save(ctx context.Context, session *models.Session) error

	// FindByID returns sentinel.ErrNotFound for unknown sessions.
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)

	// FindActiveByIdentity returns the single authoritative session.
	FindActiveByIdentity(ctx context.Context, identityID id.IdentityID) (*models.Session, error)

	// ListByIdentity returns all sessions for an identity, any status.
	ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]*models.Session, error)

	// CountActiveByFingerprint counts live sessions sharing a client
	// fingerprint; the abuse guard reads this.
	CountActiveByFingerprint(ctx context.Context, fingerprint string, now time.Time) (int, error)

	// DeleteExpired removes sessions whose expiry precedes now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RevocationStore is the revocation ledger. Lookups fail open at the
// service layer: an error here downgrades to "not revoked" rather than
// failing the request.
type RevocationStore interface {
	// Revoke upserts a ledger entry; a token appears at most once.
	Revoke(ctx context.Context, token models.RevokedToken) error

	// IsRevoked reports whether the jti is in the ledger and not yet
	// past its natural expiry.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired reclaims entries whose natural expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
