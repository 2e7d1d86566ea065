package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgate_upstream_retries_total",
		Help: "Total retry attempts against the upstream by endpoint class",
	}, []string{"class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgate_upstream_retry_exhausted_total",
		Help: "Total times the retry ceiling was hit by endpoint class",
	}, []string{"class"})
)

// RetryConfig bounds the backoff loop. MaxAttempts is a hard ceiling
// counting the initial request.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff runs fn up to the attempt ceiling, sleeping an
// exponentially growing, jittered interval between attempts. Errors the
// classifier marks non-retryable return immediately; context
// cancellation aborts mid-backoff.
func retryWithBackoff(ctx context.Context, logger *slog.Logger, cfg RetryConfig, class EndpointClass, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.InfoContext(ctx, "upstream request succeeded after retry",
					slog.String("class", string(class)),
					slog.Int("attempt", attempt))
			}
			return nil
		}

		lastErr = err
		if !retryable(err) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()

		// Jitter at +/-20% spreads concurrent retries apart.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		logger.DebugContext(ctx, "retrying upstream request",
			slog.String("class", string(class)),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", jitter))

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.WarnContext(ctx, "upstream retry attempts exhausted",
		slog.String("class", string(class)),
		slog.Int("max_attempts", cfg.MaxAttempts))

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
