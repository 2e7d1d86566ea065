// Package models defines the identity domain records: the anonymous
// principal, its live session, and the revocation ledger entry.
package models

import (
	"fmt"
	"time"

	"github.com/mssola/useragent"

	id "vidgate/pkg/domain"
)

// Identity is the anonymous principal tracked by the gateway. The quota
// counter itself lives in the quota ledger; the identity record carries
// the label and lifecycle window.
type Identity struct {
	ID        id.IdentityID
	Label     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the identity's sliding window has lapsed.
// Stores must treat expired-but-not-yet-reaped records as already gone;
// this check is the lazy half of that contract.
func (i *Identity) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// SessionStatus tracks the session lifecycle. Old sessions are
// deactivated rather than deleted on renewal so their history survives
// until the reaper collects them.
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusDeactivated SessionStatus = "deactivated"
)

// Session binds an identity to its current bearer token and client
// metadata. At most one active session per identity is authoritative.
type Session struct {
	ID           id.SessionID
	IdentityID   id.IdentityID
	TokenJTI     string
	Fingerprint  string
	IPAddress    string
	UserAgent    string
	Status       SessionStatus
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Active reports whether the session is live at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.Status == SessionStatusActive && !now.After(s.ExpiresAt)
}

// Deactivate marks the session inactive without deleting it.
func (s *Session) Deactivate(now time.Time) {
	s.Status = SessionStatusDeactivated
	s.LastActivity = now
}

// RevocationReason records why a token entered the revocation ledger.
type RevocationReason string

const (
	RevocationReasonLogout   RevocationReason = "logout"
	RevocationReasonSecurity RevocationReason = "security"
	RevocationReasonExpired  RevocationReason = "expired"
	RevocationReasonRevoked  RevocationReason = "revoked"
)

func (r RevocationReason) String() string { return string(r) }

// RevokedToken is a revocation ledger entry. ExpiresAt equals the token's
// own signed expiry, so the entry is reclaimable exactly when the token
// would have died anyway.
type RevokedToken struct {
	JTI        string
	IdentityID id.IdentityID
	Reason     RevocationReason
	RevokedAt  time.Time
	ExpiresAt  time.Time
}

// UsageEntry is one element of the bounded per-identity call log.
type UsageEntry struct {
	Query     string    `json:"query,omitempty"`
	Class     string    `json:"class"`
	Cost      int64     `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

// IdentitySnapshot is the wire shape returned alongside tokens and from
// the identity endpoint. Quota fields are merged in from the quota ledger.
type IdentitySnapshot struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	QuotaUsed      int64     `json:"quota_used"`
	QuotaLimit     int64     `json:"quota_limit"`
	QuotaRemaining int64     `json:"quota_remaining"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SessionSummary describes a session for the identity endpoint.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Device       string    `json:"device"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsCurrent    bool      `json:"is_current"`
}

// Summary builds the wire representation of a session. The device label
// is derived from the stored User-Agent.
func (s *Session) Summary(current bool) SessionSummary {
	return SessionSummary{
		SessionID:    s.ID.String(),
		Device:       DeviceLabel(s.UserAgent),
		IPAddress:    s.IPAddress,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		IsCurrent:    current,
	}
}

// DeviceLabel renders a human-readable device description from a raw
// User-Agent string, e.g. "Chrome 120 on Linux".
func DeviceLabel(rawUA string) string {
	if rawUA == "" {
		return "unknown"
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	osInfo := ua.OSInfo()
	if osInfo.Name == "" {
		return fmt.Sprintf("%s %s", name, version)
	}
	return fmt.Sprintf("%s %s on %s", name, version, osInfo.Name)
}

// Resolution is the fail-open outcome of token verification: either an
// authenticated identity or anonymous. Callers branch explicitly instead
// of handling errors.
type Resolution struct {
	Identity  *Identity
	SessionID id.SessionID
}

// Anonymous reports whether no identity could be attached to the request.
func (r Resolution) Anonymous() bool { return r.Identity == nil }
