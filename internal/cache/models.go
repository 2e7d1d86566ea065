package cache

import (
	"encoding/json"
	"time"

	"vidgate/internal/upstream"
)

// TTLFor returns the cache lifetime for an endpoint class. Volatile
// families (search, trending) expire quickly; near-static metadata
// lives longer.
func TTLFor(class upstream.EndpointClass) time.Duration {
	switch class {
	case upstream.ClassSearch:
		return 30 * time.Minute
	case upstream.ClassVideo:
		return time.Hour
	case upstream.ClassChannel:
		return 2 * time.Hour
	case upstream.ClassPlaylist:
		return time.Hour
	case upstream.ClassTrending:
		return 15 * time.Minute
	}
	return 30 * time.Minute
}

// Entry is one cached upstream response.
type Entry struct {
	Key          string                 `json:"key"`
	Class        upstream.EndpointClass `json:"class"`
	Value        json.RawMessage        `json:"value"`
	Hits         int64                  `json:"hits"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessed time.Time              `json:"last_accessed"`
	ExpiresAt    time.Time              `json:"expires_at"`
}

// Expired reports whether the entry's lifetime has lapsed.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats summarizes the cache's contents. Expired counts entries whose
// lifetime has lapsed but which no read or sweep has reclaimed yet; hit
// figures cover live entries only.
type Stats struct {
	Entries   int            `json:"entries"`
	Active    int            `json:"active"`
	Expired   int            `json:"expired"`
	TotalHits int64          `json:"total_hits"`
	AvgHits   float64        `json:"avg_hits"`
	ByClass   map[string]int `json:"by_class"`
}

// PopularEntry is one row of the hit ranking, without the payload.
type PopularEntry struct {
	Key          string    `json:"key"`
	Hits         int64     `json:"hits"`
	LastAccessed time.Time `json:"last_accessed"`
}
