// Package quota implements the per-identity usage ledger.
//
// The ledger's one hard rule: committed usage never exceeds the limit.
// Consume is therefore a single conditional update against the store --
// "increment by cost only if the result stays within the limit" -- not a
// read-check followed by an unconditional increment, which overshoots
// under concurrent requests.
package quota

import (
	"context"
	"fmt"
	"time"

	id "vidgate/pkg/domain"
)

// Quota is a point-in-time view of an identity's usage window.
type Quota struct {
	IdentityID id.IdentityID
	Used       int64
	Limit      int64
	ResetsAt   time.Time
}

// Remaining returns the unconsumed budget, never negative.
func (q *Quota) Remaining() int64 {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// HasRemaining reports whether another unit call would be admitted.
func (q *Quota) HasRemaining() bool {
	return q.Used < q.Limit
}

// ExceededError reports quota exhaustion with the data callers surface
// to the client: current usage, the limit, and when the window resets.
type ExceededError struct {
	Used     int64
	Limit    int64
	ResetsAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d, resets at %s", e.Used, e.Limit, e.ResetsAt.Format(time.RFC3339))
}

// Store is the quota ledger's persistence contract. Implementations must
// make Consume and ResetIfExpired single atomic operations.
type Store interface {
	// Get returns the quota record, or sentinel.ErrNotFound.
	Get(ctx context.Context, identityID id.IdentityID) (*Quota, error)

	// Init creates the quota record for a fresh identity.
	Init(ctx context.Context, identityID id.IdentityID, limit int64, resetsAt time.Time) error

	// Consume atomically increments usage by cost if and only if the
	// resulting value stays within the limit at the moment of the write.
	// The returned quota reflects the committed state either way;
	// allowed reports whether the increment happened. A missing record
	// fails closed (allowed=false, zero limit).
	Consume(ctx context.Context, identityID id.IdentityID, cost int64) (quota *Quota, allowed bool, err error)

	// ResetIfExpired zeroes usage and advances the reset time, but only
	// if the stored reset time has already passed. Returns whether the
	// reset happened; concurrent callers observe exactly one true per
	// expiry crossing.
	ResetIfExpired(ctx context.Context, identityID id.IdentityID, now, newResetsAt time.Time) (bool, error)

	// Reset unconditionally zeroes usage and advances the reset time
	// (explicit renewal).
	Reset(ctx context.Context, identityID id.IdentityID, newResetsAt time.Time) error

	// DeleteExpired removes records whose reset time lapsed longer ago
	// than the retention grace.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
