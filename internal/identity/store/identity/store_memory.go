package identity

import (
	"context"
	"sync"
	"time"

	"vidgate/internal/identity/models"
	"vidgate/internal/identity/store"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

// InMemoryStore keeps identities in memory. It backs unit tests and
// single-process dev mode; it intentionally favors clarity over
// performance.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[id.IdentityID]models.Identity
	usage      map[id.IdentityID][]models.UsageEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		identities: make(map[id.IdentityID]models.Identity),
		usage:      make(map[id.IdentityID][]models.UsageEntry),
	}
}

func (s *InMemoryStore) Save(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.ID] = *identity
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, identityID id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &identity, nil
}

func (s *InMemoryStore) ExtendExpiry(_ context.Context, identityID id.IdentityID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.ExpiresAt = expiresAt
	s.identities[identityID] = identity
	return nil
}

func (s *InMemoryStore) AppendUsage(_ context.Context, identityID id.IdentityID, entry models.UsageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append([]models.UsageEntry{entry}, s.usage[identityID]...)
	if len(log) > store.UsageLogCap {
		log = log[:store.UsageLogCap]
	}
	s.usage[identityID] = log
	return nil
}

func (s *InMemoryStore) ListUsage(_ context.Context, identityID id.IdentityID, limit int) ([]models.UsageEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.usage[identityID]
	if limit > 0 && len(log) > limit {
		log = log[:limit]
	}
	out := make([]models.UsageEntry, len(log))
	copy(out, log)
	return out, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for identityID, identity := range s.identities {
		if now.After(identity.ExpiresAt) {
			delete(s.identities, identityID)
			delete(s.usage, identityID)
			removed++
		}
	}
	return removed, nil
}
