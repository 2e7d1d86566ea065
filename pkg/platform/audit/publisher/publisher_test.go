package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vidgate/pkg/domain"
	audit "vidgate/pkg/platform/audit"
	"vidgate/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	identityID := id.IdentityID(uuid.New())
	event := audit.Event{
		IdentityID: identityID,
		Action:     string(audit.EventIdentityCreated),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), identityID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventIdentityCreated), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	identityID := id.IdentityID(uuid.New())
	event := audit.Event{
		IdentityID: identityID,
		Action:     string(audit.EventQuotaExceeded),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	// Close drains the buffer before returning.
	pub.Close()

	events, err := store.ListByIdentity(context.Background(), identityID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	identityID := id.IdentityID(uuid.New())
	for range 10 {
		event := audit.Event{
			IdentityID: identityID,
			Action:     string(audit.EventIdentityCreated),
		}
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByIdentity(context.Background(), identityID)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Publish(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type closableSink struct {
	recordingSink
	closed int
}

func (s *closableSink) Close() {
	s.closed++
}

func TestPublisher_CloseReleasesSink(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &closableSink{}
	pub := NewPublisher(store, WithSink(sink), WithAsyncBuffer(10))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		IdentityID: id.IdentityID(uuid.New()),
		Action:     string(audit.EventIdentityCreated),
	}))

	pub.Close()
	pub.Close()

	assert.Equal(t, 1, sink.closed, "sink closes exactly once")
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.events, 1, "buffered events reach the sink before it closes")
}

func TestPublisher_FanOutToSink(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &recordingSink{}
	pub := NewPublisher(store, WithSink(sink))
	defer pub.Close()

	event := audit.Event{
		IdentityID: id.IdentityID(uuid.New()),
		Action:     string(audit.EventSessionRevoked),
		Timestamp:  time.Now(),
	}
	require.NoError(t, pub.Emit(context.Background(), event))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, string(audit.EventSessionRevoked), sink.events[0].Action)
}
