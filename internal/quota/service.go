package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidgate/internal/platform/metrics"
	id "vidgate/pkg/domain"
	dErrors "vidgate/pkg/domain-errors"
	audit "vidgate/pkg/platform/audit"
	"vidgate/pkg/platform/sentinel"
	"vidgate/pkg/requestcontext"
)

type Service struct {
	store   Store
	emitter audit.Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}

	svc := &Service{
		store: store,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Get returns the current quota for an identity.
func (s *Service) Get(ctx context.Context, identityID id.IdentityID) (*Quota, error) {
	quota, err := s.store.Get(ctx, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "quota not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get quota")
	}
	return quota, nil
}

// HasRemaining reports whether the identity can afford another unit call.
func (s *Service) HasRemaining(ctx context.Context, identityID id.IdentityID) (bool, error) {
	quota, err := s.Get(ctx, identityID)
	if err != nil {
		return false, err
	}
	return quota.HasRemaining(), nil
}

// Init creates the quota window for a freshly issued identity.
func (s *Service) Init(ctx context.Context, identityID id.IdentityID, limit int64, resetsAt time.Time) error {
	if err := s.store.Init(ctx, identityID, limit, resetsAt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to init quota")
	}
	return nil
}

// Consume accounts one countable call. On exhaustion it returns an
// ExceededError wrapped with CodeQuotaExceeded; the caller reports it and
// never retries.
func (s *Service) Consume(ctx context.Context, identityID id.IdentityID, cost int64) (*Quota, error) {
	if cost <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cost must be positive")
	}

	quota, allowed, err := s.store.Consume(ctx, identityID, cost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume quota")
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.QuotaExceeded.Inc()
		}
		audit.Log(ctx, s.logger, s.emitter, audit.Event{
			IdentityID: identityID,
			Action:     string(audit.EventQuotaExceeded),
			Reason:     fmt.Sprintf("%d/%d", quota.Used, quota.Limit),
			RequestID:  requestcontext.RequestID(ctx),
		})
		exceeded := &ExceededError{Used: quota.Used, Limit: quota.Limit, ResetsAt: quota.ResetsAt}
		return quota, dErrors.Wrap(exceeded, dErrors.CodeQuotaExceeded, "quota exceeded")
	}
	return quota, nil
}

// Charge is the request-path gate: it advances the window first if its
// reset time has passed, then consumes. The window advance is the same
// conditional update the renewal path uses, so a lapsed window observed
// by many concurrent requests still resets exactly once.
func (s *Service) Charge(ctx context.Context, identityID id.IdentityID, cost int64, window time.Duration) (*Quota, error) {
	now := time.Now()
	if _, err := s.store.ResetIfExpired(ctx, identityID, now, now.Add(window)); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance quota window")
	}
	return s.Consume(ctx, identityID, cost)
}

// ResetIfExpired performs the exactly-once auto-renewal reset.
func (s *Service) ResetIfExpired(ctx context.Context, identityID id.IdentityID, now, newResetsAt time.Time) (bool, error) {
	reset, err := s.store.ResetIfExpired(ctx, identityID, now, newResetsAt)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset quota")
	}
	return reset, nil
}

// Reset zeroes usage for an explicit renewal.
func (s *Service) Reset(ctx context.Context, identityID id.IdentityID, newResetsAt time.Time) error {
	if identityID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "identity_id is required")
	}
	if err := s.store.Reset(ctx, identityID, newResetsAt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset quota")
	}
	return nil
}
