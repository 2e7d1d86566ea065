package revocation

import (
	"context"
	"sync"
	"time"

	"vidgate/internal/identity/models"
)

// InMemoryStore is a process-local revocation ledger for tests and dev
// mode. A jti appears at most once; Revoke upserts.
type InMemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]models.RevokedToken
	clock   func() time.Time
}

type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		revoked: make(map[string]models.RevokedToken),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Revoke(_ context.Context, token models.RevokedToken) error {
	if token.JTI == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token.JTI] = token
	return nil
}

func (s *InMemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	// Past its natural expiry the entry is meaningless.
	if s.clock().After(token.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for jti, token := range s.revoked {
		if now.After(token.ExpiresAt) {
			delete(s.revoked, jti)
			removed++
		}
	}
	return removed, nil
}
