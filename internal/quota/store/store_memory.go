package store

import (
	"context"
	"sync"
	"time"

	"vidgate/internal/quota"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

// retentionGrace keeps lapsed windows around briefly so the auto-renewal
// path can still observe them before the sweep.
const retentionGrace = time.Hour

// InMemoryStore keeps quota records in memory. The conditional increment
// holds the write lock across check and mutation, so concurrent Consume
// calls serialize and can never overshoot the limit.
type InMemoryStore struct {
	mu     sync.RWMutex
	quotas map[id.IdentityID]*quota.Quota
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		quotas: make(map[id.IdentityID]*quota.Quota),
	}
}

func (s *InMemoryStore) Get(_ context.Context, identityID id.IdentityID) (*quota.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotas[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *q
	return &out, nil
}

func (s *InMemoryStore) Init(_ context.Context, identityID id.IdentityID, limit int64, resetsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[identityID] = &quota.Quota{
		IdentityID: identityID,
		Used:       0,
		Limit:      limit,
		ResetsAt:   resetsAt,
	}
	return nil
}

func (s *InMemoryStore) Consume(_ context.Context, identityID id.IdentityID, cost int64) (*quota.Quota, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[identityID]
	if !ok {
		// Fail closed: no record means no budget.
		return &quota.Quota{IdentityID: identityID}, false, nil
	}
	if q.Used+cost > q.Limit {
		out := *q
		return &out, false, nil
	}
	q.Used += cost
	out := *q
	return &out, true, nil
}

func (s *InMemoryStore) ResetIfExpired(_ context.Context, identityID id.IdentityID, now, newResetsAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[identityID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if !now.After(q.ResetsAt) {
		return false, nil
	}
	q.Used = 0
	q.ResetsAt = newResetsAt
	return true, nil
}

func (s *InMemoryStore) Reset(_ context.Context, identityID id.IdentityID, newResetsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	q.Used = 0
	q.ResetsAt = newResetsAt
	return nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for identityID, q := range s.quotas {
		if now.Sub(q.ResetsAt) > retentionGrace {
			delete(s.quotas, identityID)
			removed++
		}
	}
	return removed, nil
}
