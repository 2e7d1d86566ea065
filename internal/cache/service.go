package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vidgate/internal/upstream"
	dErrors "vidgate/pkg/domain-errors"
	audit "vidgate/pkg/platform/audit"
	"vidgate/pkg/platform/sentinel"
	"vidgate/pkg/requestcontext"
)

var tracer = otel.Tracer("vidgate/internal/cache")

// Fetcher produces a fresh upstream response for a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, class upstream.EndpointClass, params url.Values) (json.RawMessage, error)
}

// Service fronts the upstream with the response cache. Concurrent
// misses on the same key each fetch and the last write wins; the
// duplicate upstream calls are accepted rather than coordinated away.
type Service struct {
	store   Store
	fetcher Fetcher
	emitter audit.Emitter
	logger  *slog.Logger

	// warmPace spaces warming fetches so a warm run does not burst
	// against the upstream.
	warmPace time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func WithWarmPace(pace time.Duration) Option {
	return func(s *Service) {
		if pace > 0 {
			s.warmPace = pace
		}
	}
}

func New(store Store, fetcher Fetcher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("upstream fetcher is required")
	}

	svc := &Service{
		store:    store,
		fetcher:  fetcher,
		logger:   slog.Default(),
		warmPace: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// GetOrFetch serves the response for an endpoint class and parameter
// set, from cache when live, from the upstream otherwise. The hit flag
// reports which path served the call.
func (s *Service) GetOrFetch(ctx context.Context, class upstream.EndpointClass, params url.Values) (*Entry, bool, error) {
	key := Key{Class: class, Params: params}.String()

	ctx, span := tracer.Start(ctx, "cache.GetOrFetch",
		trace.WithAttributes(
			attribute.String("cache.class", string(class)),
			attribute.String("cache.key", key),
		))
	defer span.End()

	entry, err := s.store.Get(ctx, key)
	if err == nil {
		cacheHits.WithLabelValues(string(class)).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry, true, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "cache read failed")
	}

	cacheMisses.WithLabelValues(string(class)).Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))

	fresh, err := s.fetch(ctx, class, params, key)
	if err != nil {
		return nil, false, err
	}
	return fresh, false, nil
}

func (s *Service) fetch(ctx context.Context, class upstream.EndpointClass, params url.Values, key string) (*Entry, error) {
	value, err := s.fetcher.Fetch(ctx, class, params)
	if err != nil {
		if errors.Is(err, upstream.ErrQuotaExhausted) {
			audit.Log(ctx, s.logger, s.emitter, audit.Event{
				Action:    string(audit.EventUpstreamQuotaExceeded),
				Reason:    string(class),
				RequestID: requestcontext.RequestID(ctx),
			})
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamQuota, "upstream quota exhausted")
		}
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "upstream resource not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "upstream fetch failed")
	}

	now := time.Now()
	entry := &Entry{
		Key:          key,
		Class:        class,
		Value:        value,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := s.store.Set(ctx, entry, TTLFor(class)); err != nil {
		// A failed write degrades to pass-through, not an error.
		cacheErrors.WithLabelValues("set").Inc()
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
	return entry, nil
}

// InvalidateClass drops every cached response of one endpoint class.
func (s *Service) InvalidateClass(ctx context.Context, class upstream.EndpointClass) (int, error) {
	if !class.Valid() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "unknown endpoint class")
	}
	return s.invalidate(ctx, ClassPattern(class), string(class))
}

// InvalidateAll drops the whole cache.
func (s *Service) InvalidateAll(ctx context.Context) (int, error) {
	return s.invalidate(ctx, AllPattern(), "all")
}

// InvalidatePattern drops entries whose key matches an exact key or glob
// pattern. The pattern is anchored under the cache key namespace so a
// stray "*" cannot reach unrelated keys.
func (s *Service) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "pattern is required")
	}
	if !strings.HasPrefix(pattern, keyPrefix) {
		pattern = keyPrefix + pattern
	}
	return s.invalidate(ctx, pattern, "pattern")
}

func (s *Service) invalidate(ctx context.Context, pattern, scope string) (int, error) {
	removed, err := s.store.DeleteMatching(ctx, pattern)
	if err != nil {
		cacheErrors.WithLabelValues("invalidate").Inc()
		return removed, dErrors.Wrap(err, dErrors.CodeInternal, "cache invalidation failed")
	}

	cacheInvalidations.WithLabelValues(scope).Add(float64(removed))
	audit.Log(ctx, s.logger, s.emitter, audit.Event{
		Action:    string(audit.EventCacheInvalidated),
		Reason:    fmt.Sprintf("%s: %d entries", scope, removed),
		RequestID: requestcontext.RequestID(ctx),
	})
	return removed, nil
}

// WarmTarget names one query to pre-fetch.
type WarmTarget struct {
	Class  upstream.EndpointClass `json:"class"`
	Params url.Values             `json:"params"`
}

// Warm pre-fetches the given targets, pacing requests so the run does
// not burst against the upstream. Targets already cached are skipped, and
// a failing target is logged and skipped rather than failing the batch.
// Returns how many entries were fetched.
func (s *Service) Warm(ctx context.Context, targets []WarmTarget) (int, error) {
	warmed := 0
	for i, target := range targets {
		if i > 0 {
			select {
			case <-ctx.Done():
				return warmed, dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "cache warm aborted")
			case <-time.After(s.warmPace):
			}
		}

		if !target.Class.Valid() {
			s.logger.WarnContext(ctx, "skipping warm target with unknown class",
				"class", string(target.Class))
			continue
		}

		key := Key{Class: target.Class, Params: target.Params}.String()
		if _, err := s.store.Get(ctx, key); err == nil {
			continue
		}

		if _, err := s.fetch(ctx, target.Class, target.Params, key); err != nil {
			s.logger.WarnContext(ctx, "failed to warm cache entry",
				"key", key,
				"error", err.Error())
			continue
		}
		warmed++
	}

	audit.Log(ctx, s.logger, s.emitter, audit.Event{
		Action:    string(audit.EventCacheWarmed),
		Reason:    fmt.Sprintf("%d entries", warmed),
		RequestID: requestcontext.RequestID(ctx),
	})
	return warmed, nil
}

// Stats summarizes the live cache contents.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cache stats failed")
	}
	return stats, nil
}

// Popular returns the most requested cache entries.
func (s *Service) Popular(ctx context.Context, limit int) ([]PopularEntry, error) {
	ranked, err := s.store.Popular(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cache ranking failed")
	}
	return ranked, nil
}
