package store

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"vidgate/internal/cache"
	"vidgate/pkg/platform/sentinel"
)

// InMemoryStore keeps cache entries in a map. Expiry is lazy: a lapsed
// entry reads as a miss and is removed on the spot.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry
	clock   func() time.Time
}

type Option func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]*cache.Entry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	now := s.clock()
	if entry.Expired(now) {
		delete(s.entries, key)
		return nil, sentinel.ErrNotFound
	}

	entry.Hits++
	entry.LastAccessed = now
	out := *entry
	return &out, nil
}

func (s *InMemoryStore) Set(_ context.Context, entry *cache.Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	stored.ExpiresAt = s.clock().Add(ttl)
	s.entries[stored.Key] = &stored
	return nil
}

func (s *InMemoryStore) DeleteMatching(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return removed, err
		}
		if ok {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) Stats(_ context.Context) (*cache.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &cache.Stats{
		ByClass: make(map[string]int),
	}
	now := s.clock()
	for _, entry := range s.entries {
		stats.Entries++
		if entry.Expired(now) {
			stats.Expired++
			continue
		}
		stats.Active++
		stats.TotalHits += entry.Hits
		stats.ByClass[string(entry.Class)]++
	}
	if stats.Active > 0 {
		stats.AvgHits = float64(stats.TotalHits) / float64(stats.Active)
	}
	return stats, nil
}

func (s *InMemoryStore) Popular(_ context.Context, limit int) ([]cache.PopularEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	ranked := make([]cache.PopularEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Expired(now) {
			continue
		}
		ranked = append(ranked, cache.PopularEntry{Key: entry.Key, Hits: entry.Hits, LastAccessed: entry.LastAccessed})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Hits != ranked[j].Hits {
			return ranked[i].Hits > ranked[j].Hits
		}
		return ranked[i].Key < ranked[j].Key
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
