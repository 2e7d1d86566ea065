//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	quotastore "vidgate/internal/quota/store"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
	"vidgate/pkg/testutil/containers"
)

type QuotaRedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *quotastore.RedisStore
}

func TestQuotaRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(QuotaRedisSuite))
}

func (s *QuotaRedisSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = quotastore.NewRedisStore(s.redis.Client)
}

func (s *QuotaRedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *QuotaRedisSuite) TestInitAndGet() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	resetsAt := time.Now().Add(24 * time.Hour)

	s.Require().NoError(s.store.Init(ctx, identityID, 100, resetsAt))

	q, err := s.store.Get(ctx, identityID)
	s.Require().NoError(err)
	s.Equal(int64(0), q.Used)
	s.Equal(int64(100), q.Limit)
	s.Equal(resetsAt.Unix(), q.ResetsAt.Unix())
}

func (s *QuotaRedisSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), id.NewIdentityID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *QuotaRedisSuite) TestConsumeWithinAndBeyondLimit() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	s.Require().NoError(s.store.Init(ctx, identityID, 2, time.Now().Add(time.Hour)))

	q, allowed, err := s.store.Consume(ctx, identityID, 1)
	s.Require().NoError(err)
	s.True(allowed)
	s.Equal(int64(1), q.Used)

	_, allowed, err = s.store.Consume(ctx, identityID, 1)
	s.Require().NoError(err)
	s.True(allowed)

	q, allowed, err = s.store.Consume(ctx, identityID, 1)
	s.Require().NoError(err)
	s.False(allowed)
	s.Equal(int64(2), q.Used, "denied consumption leaves usage unchanged")
}

func (s *QuotaRedisSuite) TestConsumeMissingFailsClosed() {
	_, allowed, err := s.store.Consume(context.Background(), id.NewIdentityID(), 1)
	s.Require().NoError(err)
	s.False(allowed)
}

func (s *QuotaRedisSuite) TestConcurrentConsumeNeverOvershoots() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	const limit = 30
	s.Require().NoError(s.store.Init(ctx, identityID, limit, time.Now().Add(time.Hour)))

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := s.store.Consume(ctx, identityID, 1)
			s.NoError(err)
			if allowed {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(limit), granted.Load())

	q, err := s.store.Get(ctx, identityID)
	s.Require().NoError(err)
	s.Equal(int64(limit), q.Used)
}

func (s *QuotaRedisSuite) TestResetIfExpiredExactlyOnce() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	now := time.Now()
	s.Require().NoError(s.store.Init(ctx, identityID, 10, now.Add(-time.Minute)))
	_, _, err := s.store.Consume(ctx, identityID, 3)
	s.Require().NoError(err)

	var resets atomic.Int64
	var wg sync.WaitGroup
	newResetsAt := now.Add(24 * time.Hour)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reset, err := s.store.ResetIfExpired(ctx, identityID, now, newResetsAt)
			s.NoError(err)
			if reset {
				resets.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), resets.Load(), "concurrent renewals observe exactly one reset")

	q, err := s.store.Get(ctx, identityID)
	s.Require().NoError(err)
	s.Equal(int64(0), q.Used)
	s.Equal(newResetsAt.Unix(), q.ResetsAt.Unix())
}

func (s *QuotaRedisSuite) TestResetIfExpiredNotYet() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	now := time.Now()
	s.Require().NoError(s.store.Init(ctx, identityID, 10, now.Add(time.Hour)))

	reset, err := s.store.ResetIfExpired(ctx, identityID, now, now.Add(24*time.Hour))
	s.Require().NoError(err)
	s.False(reset)
}

func (s *QuotaRedisSuite) TestResetIfExpiredMissing() {
	_, err := s.store.ResetIfExpired(context.Background(), id.NewIdentityID(), time.Now(), time.Now().Add(time.Hour))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *QuotaRedisSuite) TestResetUnconditional() {
	ctx := context.Background()
	identityID := id.NewIdentityID()
	s.Require().NoError(s.store.Init(ctx, identityID, 10, time.Now().Add(time.Hour)))
	_, _, err := s.store.Consume(ctx, identityID, 4)
	s.Require().NoError(err)

	newResetsAt := time.Now().Add(48 * time.Hour)
	s.Require().NoError(s.store.Reset(ctx, identityID, newResetsAt))

	q, err := s.store.Get(ctx, identityID)
	s.Require().NoError(err)
	s.Equal(int64(0), q.Used)
	s.Equal(newResetsAt.Unix(), q.ResetsAt.Unix())
}

func (s *QuotaRedisSuite) TestResetMissing() {
	err := s.store.Reset(context.Background(), id.NewIdentityID(), time.Now().Add(time.Hour))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
