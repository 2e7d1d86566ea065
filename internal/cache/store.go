package cache

import (
	"context"
	"time"
)

// Store is the cache's persistence contract. Implementations expire
// entries lazily on read; DeleteExpired reclaims what reads never touch.
type Store interface {
	// Get returns the live entry for key, recording the hit (hit count
	// and last-access time), or sentinel.ErrNotFound on a miss or a
	// lapsed entry.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores the entry with the given lifetime, replacing any
	// previous value under the same key.
	Set(ctx context.Context, entry *Entry, ttl time.Duration) error

	// DeleteMatching removes every entry whose key matches the glob
	// pattern and returns how many were removed.
	DeleteMatching(ctx context.Context, pattern string) (int, error)

	// DeleteExpired removes lapsed entries.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Stats summarizes the live contents.
	Stats(ctx context.Context) (*Stats, error)

	// Popular returns the top entries by hit count, most popular first.
	Popular(ctx context.Context, limit int) ([]PopularEntry, error)
}
