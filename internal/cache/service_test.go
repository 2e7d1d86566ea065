package cache_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidgate/internal/cache"
	"vidgate/internal/cache/store"
	"vidgate/internal/upstream"
	dErrors "vidgate/pkg/domain-errors"
)

type stubFetcher struct {
	calls    int
	response json.RawMessage
	err      error
}

func (f *stubFetcher) Fetch(_ context.Context, _ upstream.EndpointClass, _ url.Values) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func newService(t *testing.T, fetcher cache.Fetcher) *cache.Service {
	t.Helper()
	svc, err := cache.New(store.NewInMemoryStore(), fetcher, cache.WithWarmPace(time.Millisecond))
	require.NoError(t, err)
	return svc
}

func TestService_MissThenHit(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{"items":[1]}`)}
	svc := newService(t, fetcher)
	params := url.Values{"q": {"gophers"}}

	entry, hit, err := svc.GetOrFetch(ctx, upstream.ClassSearch, params)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `{"items":[1]}`, string(entry.Value))
	assert.Equal(t, 1, fetcher.calls)

	entry, hit, err = svc.GetOrFetch(ctx, upstream.ClassSearch, params)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"items":[1]}`, string(entry.Value))
	assert.Equal(t, 1, fetcher.calls, "hit must not reach the upstream")
}

func TestService_ParamOrderSharesEntry(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"x"}, "maxResults": {"5"}})
	require.NoError(t, err)
	_, hit, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"maxResults": {"5"}, "q": {"x"}})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, fetcher.calls)
}

func TestService_UpstreamQuotaExhausted(t *testing.T) {
	fetcher := &stubFetcher{err: upstream.ErrQuotaExhausted}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(context.Background(), upstream.ClassVideo, url.Values{"id": {"abc"}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamQuota))
}

func TestService_UpstreamNotFound(t *testing.T) {
	fetcher := &stubFetcher{err: upstream.ErrNotFound}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(context.Background(), upstream.ClassVideo, url.Values{"id": {"nope"}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestService_UpstreamFailure(t *testing.T) {
	fetcher := &stubFetcher{err: upstream.ErrRateLimited}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(context.Background(), upstream.ClassChannel, url.Values{"id": {"abc"}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestService_InvalidateClass(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"a"}})
	require.NoError(t, err)
	_, _, err = svc.GetOrFetch(ctx, upstream.ClassVideo, url.Values{"id": {"b"}})
	require.NoError(t, err)

	removed, err := svc.InvalidateClass(ctx, upstream.ClassSearch)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, hit, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"a"}})
	require.NoError(t, err)
	assert.False(t, hit, "invalidated class refetches")
	_, hit, err = svc.GetOrFetch(ctx, upstream.ClassVideo, url.Values{"id": {"b"}})
	require.NoError(t, err)
	assert.True(t, hit, "other classes are untouched")
}

func TestService_InvalidateClassRejectsUnknown(t *testing.T) {
	svc := newService(t, &stubFetcher{response: json.RawMessage(`{}`)})
	_, err := svc.InvalidateClass(context.Background(), upstream.EndpointClass("bogus"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestService_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"a"}})
	require.NoError(t, err)
	_, _, err = svc.GetOrFetch(ctx, upstream.ClassVideo, url.Values{"id": {"b"}})
	require.NoError(t, err)

	removed, err := svc.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestService_Warm(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	targets := []cache.WarmTarget{
		{Class: upstream.ClassTrending},
		{Class: upstream.ClassSearch, Params: url.Values{"q": {"go"}}},
	}

	warmed, err := svc.Warm(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, 2, warmed)
	assert.Equal(t, 2, fetcher.calls)

	// A second run finds everything cached.
	warmed, err = svc.Warm(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, 0, warmed)
	assert.Equal(t, 2, fetcher.calls)
}

func TestService_WarmSkipsBadTargets(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	targets := []cache.WarmTarget{
		{Class: upstream.EndpointClass("bogus")},
		{Class: upstream.ClassSearch, Params: url.Values{"q": {"go"}}},
	}

	warmed, err := svc.Warm(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, 1, warmed, "unknown class is skipped, not fatal")
	assert.Equal(t, 1, fetcher.calls)
}

func TestService_WarmSkipsFailingFetches(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{err: upstream.ErrNotFound}
	svc := newService(t, fetcher)

	warmed, err := svc.Warm(ctx, []cache.WarmTarget{
		{Class: upstream.ClassTrending},
		{Class: upstream.ClassSearch, Params: url.Values{"q": {"go"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, warmed)
	assert.Equal(t, 2, fetcher.calls, "every target is still attempted")
}

func TestService_InvalidatePattern(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	_, _, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"go"}})
	require.NoError(t, err)
	_, _, err = svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"rust"}})
	require.NoError(t, err)

	removed, err := svc.InvalidatePattern(ctx, "search:q=go")
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "pattern is anchored under the cache namespace")

	_, hit, err := svc.GetOrFetch(ctx, upstream.ClassSearch, url.Values{"q": {"rust"}})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestService_InvalidatePatternRequiresPattern(t *testing.T) {
	svc := newService(t, &stubFetcher{response: json.RawMessage(`{}`)})
	_, err := svc.InvalidatePattern(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestService_StatsAndPopular(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{response: json.RawMessage(`{}`)}
	svc := newService(t, fetcher)

	params := url.Values{"q": {"hot"}}
	_, _, err := svc.GetOrFetch(ctx, upstream.ClassSearch, params)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err = svc.GetOrFetch(ctx, upstream.ClassSearch, params)
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, int64(3), stats.TotalHits)
	assert.Equal(t, 3.0, stats.AvgHits)

	ranked, err := svc.Popular(ctx, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, int64(3), ranked[0].Hits)
}
