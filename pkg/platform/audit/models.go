package audit

import (
	"context"
	"log/slog"
	"time"

	id "vidgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring.
	// Examples: abuse refusals, revocations, quota exhaustion.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and
	// operational visibility. These can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory `json:"category"`
	Timestamp   time.Time     `json:"timestamp"`
	IdentityID  id.IdentityID `json:"identity_id,omitempty"`
	Action      string        `json:"action"`
	Reason      string        `json:"reason,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	IP          string        `json:"ip,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	// Identity events
	EventIdentityCreated     AuditEvent = "identity_created"
	EventIdentityRenewed     AuditEvent = "identity_renewed"
	EventIdentityAutoRenewed AuditEvent = "identity_auto_renewed"
	EventSessionRevoked      AuditEvent = "session_revoked"
	EventAbuseDetected       AuditEvent = "abuse_detected"

	// Quota events
	EventQuotaExceeded         AuditEvent = "quota_exceeded"
	EventUpstreamQuotaExceeded AuditEvent = "upstream_quota_exceeded"

	// Cache events
	EventCacheInvalidated AuditEvent = "cache_invalidated"
	EventCacheWarmed      AuditEvent = "cache_warmed"

	// Reaper events
	EventReaperSweep AuditEvent = "reaper_sweep"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Security events - feed into alerting
	EventAbuseDetected:         CategorySecurity,
	EventSessionRevoked:        CategorySecurity,
	EventQuotaExceeded:         CategorySecurity,
	EventUpstreamQuotaExceeded: CategorySecurity,

	// Operations events - routine activity, can be sampled
	EventIdentityCreated:     CategoryOperations,
	EventIdentityRenewed:     CategoryOperations,
	EventIdentityAutoRenewed: CategoryOperations,
	EventCacheInvalidated:    CategoryOperations,
	EventCacheWarmed:         CategoryOperations,
	EventReaperSweep:         CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events and answers per-identity queries.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]Event, error)
}

// Emitter is the narrow interface services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Log emits an event through the publisher and logs it, tolerating a nil
// publisher so services stay wireable in tests without audit plumbing.
func Log(ctx context.Context, logger *slog.Logger, emitter Emitter, event Event) {
	if logger != nil {
		logger.InfoContext(ctx, "audit", "action", event.Action, "identity_id", event.IdentityID.String(), "reason", event.Reason)
	}
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to emit audit event", "error", err, "action", event.Action)
	}
}
