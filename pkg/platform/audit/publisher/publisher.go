// Package publisher delivers audit events to a store and optional sinks.
//
// Emission is synchronous by default; WithAsyncBuffer switches to a
// buffered channel drained by a background goroutine, so hot request
// paths never block on audit persistence. Close drains the buffer.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "vidgate/pkg/domain"
	audit "vidgate/pkg/platform/audit"
)

// Sink receives a copy of every event, typically a Kafka producer.
// Sink failures are logged, never propagated: audit fan-out must not
// fail the emitting operation.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

type Publisher struct {
	store  audit.Store
	sink   Sink
	logger *slog.Logger

	inbox chan audit.Event
	done  chan struct{}
	once  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithSink adds a fan-out sink.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

// WithLogger sets a logger for delivery errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit delivers an event. In async mode a full buffer falls back to a
// synchronous write rather than dropping the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
			return nil
		default:
			// Buffer full; deliver inline.
		}
	}
	return p.deliver(ctx, event)
}

// List returns events recorded for an identity.
func (p *Publisher) List(ctx context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	return p.store.ListByIdentity(ctx, identityID)
}

// Close drains any buffered events, stops the background goroutine, and
// releases the sink when it holds resources, in that order: buffered
// events must still reach the sink before it shuts down.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			<-p.done
		}
		if closer, ok := p.sink.(interface{ Close() }); ok {
			closer.Close()
		}
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.deliver(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to deliver audit event", "error", err, "action", event.Action)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil && p.logger != nil {
			p.logger.Error("audit sink publish failed", "error", err, "action", event.Action)
		}
	}
	return p.store.Append(ctx, event)
}
