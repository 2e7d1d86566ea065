// Package reaper periodically reclaims lapsed records across every
// store: identities past their lifetime, their sessions, spent
// revocation entries, stale quota windows, and dead cache index
// members. Authoritative stores expire most records natively; the
// sweep is the backstop that keeps the rest bounded.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	audit "vidgate/pkg/platform/audit"
	"vidgate/pkg/requestcontext"
)

// Sweeper is one store's expiry hook.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SweeperFunc adapts a function to the Sweeper interface.
type SweeperFunc func(ctx context.Context, now time.Time) (int, error)

func (f SweeperFunc) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return f(ctx, now)
}

type target struct {
	name    string
	sweeper Sweeper
}

// Reaper runs the sweep across its registered targets on an interval.
type Reaper struct {
	targets  []target
	interval time.Duration
	emitter  audit.Emitter
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Reaper)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(r *Reaper) {
		r.emitter = emitter
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(r *Reaper) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func New(interval time.Duration, opts ...Option) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}

	r := &Reaper{
		interval: interval,
		logger:   slog.Default(),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a named store to the sweep.
func (r *Reaper) Register(name string, sweeper Sweeper) {
	r.targets = append(r.targets, target{name: name, sweeper: sweeper})
}

// Sweep runs DeleteExpired across every target concurrently. Targets
// fail independently; the first error is returned after all finish.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.clock()
	counts := make([]int, len(r.targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range r.targets {
		g.Go(func() error {
			removed, err := t.sweeper.DeleteExpired(gctx, now)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", t.name, err)
			}
			counts[i] = removed
			return nil
		})
	}
	err := g.Wait()

	total := 0
	for i, t := range r.targets {
		total += counts[i]
		if counts[i] > 0 {
			r.logger.InfoContext(ctx, "reaped expired records",
				slog.String("store", t.name),
				slog.Int("removed", counts[i]))
		}
	}

	if err != nil {
		return total, err
	}

	audit.Log(ctx, r.logger, r.emitter, audit.Event{
		Action:    string(audit.EventReaperSweep),
		Reason:    fmt.Sprintf("%d records", total),
		RequestID: requestcontext.RequestID(ctx),
	})
	return total, nil
}

// Run sweeps on the configured interval until the context is done. An
// initial sweep runs immediately.
func (r *Reaper) Run(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		r.logger.ErrorContext(ctx, "reaper sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reaper sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
