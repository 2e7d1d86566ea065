package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

func TestInMemoryStore_InitAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()
	resetsAt := time.Now().Add(24 * time.Hour)

	require.NoError(t, s.Init(ctx, identityID, 100, resetsAt))

	q, err := s.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Used)
	assert.Equal(t, int64(100), q.Limit)
	assert.True(t, q.ResetsAt.Equal(resetsAt))
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get(context.Background(), id.NewIdentityID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ConsumeWithinLimit(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()
	require.NoError(t, s.Init(ctx, identityID, 3, time.Now().Add(time.Hour)))

	for want := int64(1); want <= 3; want++ {
		q, allowed, err := s.Consume(ctx, identityID, 1)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, q.Used)
	}

	q, allowed, err := s.Consume(ctx, identityID, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), q.Used, "denied call must not change usage")
}

func TestInMemoryStore_ConsumeMissingFailsClosed(t *testing.T) {
	s := NewInMemoryStore()
	q, allowed, err := s.Consume(context.Background(), id.NewIdentityID(), 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(0), q.Limit)
}

func TestInMemoryStore_ConsumeConcurrentNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()

	const limit = 50
	const callers = 200
	require.NoError(t, s.Init(ctx, identityID, limit, time.Now().Add(time.Hour)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := s.Consume(ctx, identityID, 1)
			assert.NoError(t, err)
			if allowed {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, granted)

	q, err := s.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, int64(limit), q.Used)
}

func TestInMemoryStore_ResetIfExpired(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()
	now := time.Now()
	require.NoError(t, s.Init(ctx, identityID, 10, now.Add(-time.Minute)))

	_, _, err := s.Consume(ctx, identityID, 5)
	require.NoError(t, err)

	newResetsAt := now.Add(24 * time.Hour)
	reset, err := s.ResetIfExpired(ctx, identityID, now, newResetsAt)
	require.NoError(t, err)
	assert.True(t, reset)

	q, err := s.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Used)
	assert.True(t, q.ResetsAt.Equal(newResetsAt))

	// Second attempt against the same crossing sees the window fresh.
	reset, err = s.ResetIfExpired(ctx, identityID, now, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestInMemoryStore_ResetIfExpiredConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()
	now := time.Now()
	require.NoError(t, s.Init(ctx, identityID, 10, now.Add(-time.Minute)))

	const callers = 50
	newResetsAt := now.Add(24 * time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	resets := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reset, err := s.ResetIfExpired(ctx, identityID, now, newResetsAt)
			assert.NoError(t, err)
			if reset {
				mu.Lock()
				resets++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, resets, "only one caller wins the reset")
}

func TestInMemoryStore_ResetIfExpiredNotYet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()
	now := time.Now()
	require.NoError(t, s.Init(ctx, identityID, 10, now.Add(time.Hour)))

	reset, err := s.ResetIfExpired(ctx, identityID, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestInMemoryStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	identityID := id.NewIdentityID()
	now := time.Now()
	require.NoError(t, s.Init(ctx, identityID, 10, now.Add(time.Hour)))
	_, _, err := s.Consume(ctx, identityID, 7)
	require.NoError(t, err)

	newResetsAt := now.Add(24 * time.Hour)
	require.NoError(t, s.Reset(ctx, identityID, newResetsAt))

	q, err := s.Get(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Used)
	assert.True(t, q.ResetsAt.Equal(newResetsAt))

	assert.ErrorIs(t, s.Reset(ctx, id.NewIdentityID(), newResetsAt), sentinel.ErrNotFound)
}

func TestInMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Now()

	stale := id.NewIdentityID()
	fresh := id.NewIdentityID()
	lapsedWithinGrace := id.NewIdentityID()
	require.NoError(t, s.Init(ctx, stale, 10, now.Add(-2*time.Hour)))
	require.NoError(t, s.Init(ctx, fresh, 10, now.Add(time.Hour)))
	require.NoError(t, s.Init(ctx, lapsedWithinGrace, 10, now.Add(-30*time.Minute)))

	removed, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, stale)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.Get(ctx, fresh)
	assert.NoError(t, err)
	_, err = s.Get(ctx, lapsedWithinGrace)
	assert.NoError(t, err, "lapsed records survive until the grace passes")
}
