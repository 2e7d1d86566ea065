package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vidgate/internal/cache"
	"vidgate/pkg/platform/sentinel"
)

// The hit counter and last-access time live in sorted sets, not in the
// entry payload, so recording a hit is one atomic pipeline instead of a
// read-modify-write of the JSON value.
const (
	indexPrefix  = "cache:index:"
	hitsIndexKey = indexPrefix + "hits"
	lastIndexKey = indexPrefix + "last"
)

// RedisStore persists cache entries as JSON values with native TTLs.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

type RedisOption func(*RedisStore)

// WithRedisClock sets the clock function for testability.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}

	now := s.clock()
	if entry.Expired(now) {
		// TTL should have reclaimed this already; treat as a miss.
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, hitsIndexKey, key)
		pipe.ZRem(ctx, lastIndexKey, key)
		_, _ = pipe.Exec(ctx)
		return nil, sentinel.ErrNotFound
	}

	pipe := s.client.TxPipeline()
	hits := pipe.ZIncrBy(ctx, hitsIndexKey, 1, key)
	pipe.ZAdd(ctx, lastIndexKey, redis.Z{Score: float64(now.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record cache hit: %w", err)
	}
	entry.Hits = int64(hits.Val())
	entry.LastAccessed = now
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry *cache.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	now := s.clock()
	stored := *entry
	stored.ExpiresAt = now.Add(ttl)
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	// An upsert starts counting from scratch: a repopulated key must not
	// inherit the hit score of the value it replaced.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stored.Key, data, ttl)
	pipe.ZAdd(ctx, hitsIndexKey, redis.Z{Score: 0, Member: stored.Key})
	pipe.ZAdd(ctx, lastIndexKey, redis.Z{Score: float64(now.Unix()), Member: stored.Key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, indexPrefix) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, hitsIndexKey, key)
		pipe.ZRem(ctx, lastIndexKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("invalidate cache entry: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("invalidate cache: %w", err)
	}
	return removed, nil
}

// DeleteExpired prunes index members whose value the TTL already
// reclaimed. The values themselves never need sweeping.
func (s *RedisStore) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	removed := 0
	var cursor uint64
	for {
		members, next, err := s.client.ZScan(ctx, hitsIndexKey, cursor, "*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("sweep cache index: %w", err)
		}
		// ZScan yields member/score pairs.
		for i := 0; i < len(members); i += 2 {
			key := members[i]
			exists, err := s.client.Exists(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("sweep cache index: %w", err)
			}
			if exists == 0 {
				pipe := s.client.TxPipeline()
				pipe.ZRem(ctx, hitsIndexKey, key)
				pipe.ZRem(ctx, lastIndexKey, key)
				if _, err := pipe.Exec(ctx); err != nil {
					return removed, fmt.Errorf("sweep cache index: %w", err)
				}
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *RedisStore) Stats(ctx context.Context) (*cache.Stats, error) {
	stats := &cache.Stats{
		ByClass: make(map[string]int),
	}

	iter := s.client.Scan(ctx, 0, "cache:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, indexPrefix) {
			continue
		}
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var entry cache.Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		hits, err := s.client.ZScore(ctx, hitsIndexKey, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read cache stats: %w", err)
		}
		stats.Active++
		stats.TotalHits += int64(hits)
		stats.ByClass[string(entry.Class)]++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("read cache stats: %w", err)
	}

	// Index members without a live value are entries the TTL reclaimed
	// but no read or sweep has pruned yet.
	card, err := s.client.ZCard(ctx, hitsIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read cache stats: %w", err)
	}
	if stale := int(card) - stats.Active; stale > 0 {
		stats.Expired = stale
	}
	stats.Entries = stats.Active + stats.Expired
	if stats.Active > 0 {
		stats.AvgHits = float64(stats.TotalHits) / float64(stats.Active)
	}
	return stats, nil
}

func (s *RedisStore) Popular(ctx context.Context, limit int) ([]cache.PopularEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	// Over-fetch to compensate for index members whose value lapsed.
	ranked, err := s.client.ZRevRangeWithScores(ctx, hitsIndexKey, 0, int64(limit*2)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read cache ranking: %w", err)
	}

	out := make([]cache.PopularEntry, 0, limit)
	for _, z := range ranked {
		key, ok := z.Member.(string)
		if !ok {
			continue
		}
		exists, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read cache ranking: %w", err)
		}
		if exists == 0 {
			_ = s.client.ZRem(ctx, hitsIndexKey, key).Err()
			_ = s.client.ZRem(ctx, lastIndexKey, key).Err()
			continue
		}

		row := cache.PopularEntry{Key: key, Hits: int64(z.Score)}
		last, err := s.client.ZScore(ctx, lastIndexKey, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read cache ranking: %w", err)
		}
		if last > 0 {
			row.LastAccessed = time.Unix(int64(last), 0)
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
