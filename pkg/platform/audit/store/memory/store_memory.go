package memory

import (
	"context"
	"sync"

	id "vidgate/pkg/domain"
	audit "vidgate/pkg/platform/audit"
)

// InMemoryStore keeps audit events in memory. It backs unit tests and
// single-process deployments; production fans events out to Kafka as well.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.IdentityID == identityID {
			out = append(out, e)
		}
	}
	return out, nil
}
