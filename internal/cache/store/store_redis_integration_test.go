//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vidgate/internal/cache"
	cachestore "vidgate/internal/cache/store"
	"vidgate/internal/upstream"
	"vidgate/pkg/platform/sentinel"
	"vidgate/pkg/testutil/containers"
)

type CacheRedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cachestore.RedisStore
}

func TestCacheRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheRedisSuite))
}

func (s *CacheRedisSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = cachestore.NewRedisStore(s.redis.Client)
}

func (s *CacheRedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CacheRedisSuite) entry(class upstream.EndpointClass, query string) *cache.Entry {
	params := url.Values{"q": {query}}
	key := cache.Key{Class: class, Params: params}
	now := time.Now().Truncate(time.Second)
	return &cache.Entry{
		Key:       key.String(),
		Class:     class,
		Value:     json.RawMessage(`{"items":[]}`),
		CreatedAt: now,
	}
}

func (s *CacheRedisSuite) TestSetAndGetRecordsHits() {
	ctx := context.Background()
	entry := s.entry(upstream.ClassSearch, "gophers")

	s.Require().NoError(s.store.Set(ctx, entry, time.Minute))

	first, err := s.store.Get(ctx, entry.Key)
	s.Require().NoError(err)
	s.Equal(int64(1), first.Hits)
	s.JSONEq(`{"items":[]}`, string(first.Value))

	second, err := s.store.Get(ctx, entry.Key)
	s.Require().NoError(err)
	s.Equal(int64(2), second.Hits)
}

func (s *CacheRedisSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "cache:search:q=nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CacheRedisSuite) TestTTLEviction() {
	ctx := context.Background()
	entry := s.entry(upstream.ClassVideo, "short-lived")

	s.Require().NoError(s.store.Set(ctx, entry, 100*time.Millisecond))

	time.Sleep(150 * time.Millisecond)

	_, err := s.store.Get(ctx, entry.Key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CacheRedisSuite) TestDeleteMatchingByClass() {
	ctx := context.Background()
	search := s.entry(upstream.ClassSearch, "one")
	video := s.entry(upstream.ClassVideo, "two")
	s.Require().NoError(s.store.Set(ctx, search, time.Minute))
	s.Require().NoError(s.store.Set(ctx, video, time.Minute))

	removed, err := s.store.DeleteMatching(ctx, cache.ClassPattern(upstream.ClassSearch))
	s.Require().NoError(err)
	s.Equal(1, removed)

	_, err = s.store.Get(ctx, search.Key)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Get(ctx, video.Key)
	s.NoError(err)
}

func (s *CacheRedisSuite) TestDeleteMatchingAll() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, s.entry(upstream.ClassSearch, "one"), time.Minute))
	s.Require().NoError(s.store.Set(ctx, s.entry(upstream.ClassChannel, "two"), time.Minute))

	removed, err := s.store.DeleteMatching(ctx, cache.AllPattern())
	s.Require().NoError(err)
	s.Equal(2, removed)
}

func (s *CacheRedisSuite) TestDeleteExpiredPrunesIndex() {
	ctx := context.Background()
	entry := s.entry(upstream.ClassTrending, "stale")
	s.Require().NoError(s.store.Set(ctx, entry, 100*time.Millisecond))
	_, err := s.store.Get(ctx, entry.Key)
	s.Require().NoError(err)

	time.Sleep(150 * time.Millisecond)

	removed, err := s.store.DeleteExpired(ctx, time.Now())
	s.Require().NoError(err)
	s.Equal(1, removed, "index member for the lapsed value is pruned")

	ranked, err := s.store.Popular(ctx, 10)
	s.Require().NoError(err)
	s.Empty(ranked)
}

func (s *CacheRedisSuite) TestSetResetsHitCounter() {
	ctx := context.Background()
	entry := s.entry(upstream.ClassSearch, "gophers")
	s.Require().NoError(s.store.Set(ctx, entry, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := s.store.Get(ctx, entry.Key)
		s.Require().NoError(err)
	}

	// Overwriting the key starts a fresh entry: the first read after the
	// upsert counts as its first hit, not the fourth.
	s.Require().NoError(s.store.Set(ctx, s.entry(upstream.ClassSearch, "gophers"), time.Minute))

	got, err := s.store.Get(ctx, entry.Key)
	s.Require().NoError(err)
	s.Equal(int64(1), got.Hits)
}

func (s *CacheRedisSuite) TestHitPersistsLastAccess() {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	clocked := cachestore.NewRedisStore(s.redis.Client, cachestore.WithRedisClock(func() time.Time { return now }))

	entry := s.entry(upstream.ClassSearch, "gophers")
	s.Require().NoError(clocked.Set(ctx, entry, time.Minute))

	now = now.Add(45 * time.Second)
	got, err := clocked.Get(ctx, entry.Key)
	s.Require().NoError(err)
	s.Equal(now.Unix(), got.LastAccessed.Unix())

	// The access time survives in the index, not just the returned copy.
	ranked, err := clocked.Popular(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(ranked, 1)
	s.Equal(now.Unix(), ranked[0].LastAccessed.Unix())
}

func (s *CacheRedisSuite) TestStats() {
	ctx := context.Background()
	search := s.entry(upstream.ClassSearch, "one")
	video := s.entry(upstream.ClassVideo, "two")
	s.Require().NoError(s.store.Set(ctx, search, time.Minute))
	s.Require().NoError(s.store.Set(ctx, video, time.Minute))

	_, err := s.store.Get(ctx, search.Key)
	s.Require().NoError(err)
	_, err = s.store.Get(ctx, search.Key)
	s.Require().NoError(err)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.Entries)
	s.Equal(2, stats.Active)
	s.Equal(0, stats.Expired)
	s.Equal(int64(2), stats.TotalHits)
	s.Equal(1.0, stats.AvgHits)
	s.Equal(1, stats.ByClass["search"])
	s.Equal(1, stats.ByClass["video"])
}

func (s *CacheRedisSuite) TestPopularOrdering() {
	ctx := context.Background()
	hot := s.entry(upstream.ClassSearch, "hot")
	cold := s.entry(upstream.ClassSearch, "cold")
	s.Require().NoError(s.store.Set(ctx, hot, time.Minute))
	s.Require().NoError(s.store.Set(ctx, cold, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := s.store.Get(ctx, hot.Key)
		s.Require().NoError(err)
	}
	_, err := s.store.Get(ctx, cold.Key)
	s.Require().NoError(err)

	ranked, err := s.store.Popular(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(ranked, 2)
	s.Equal(hot.Key, ranked[0].Key)
	s.Equal(int64(3), ranked[0].Hits)
	s.Equal(cold.Key, ranked[1].Key)
}
