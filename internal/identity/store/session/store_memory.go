package session

import (
	"context"
	"sync"
	"time"

	"vidgate/internal/identity/models"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in memory for unit tests and dev mode.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]models.Session)}
}

func (s *InMemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &session, nil
}

func (s *InMemoryStore) FindActiveByIdentity(_ context.Context, identityID id.IdentityID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.IdentityID == identityID && session.Status == models.SessionStatusActive {
			out := session
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID id.IdentityID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.IdentityID == identityID {
			copied := session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountActiveByFingerprint(_ context.Context, fingerprint string, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, session := range s.sessions {
		if session.Fingerprint == fingerprint && session.Active(now) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sessionID, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, sessionID)
			removed++
		}
	}
	return removed, nil
}
