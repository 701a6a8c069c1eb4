package messaging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, Logger: quietLogger()})
}

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) handle(ev shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.Event(nil), r.events...)
}

func TestInMemoryBusRoutesByType(t *testing.T) {
	bus := syncBus()
	var typed, all recorder
	require.NoError(t, bus.Subscribe(shared.EventMatchCreated, typed.handle))
	require.NoError(t, bus.SubscribeAll(all.handle))

	require.NoError(t, bus.Publish(shared.NewMatchCreatedEvent("m1", "a", "b", 80, time.Now())))
	require.NoError(t, bus.Publish(shared.NewTypingEvent("m1", "a", true)))

	assert.Len(t, typed.all(), 1)
	assert.Len(t, all.all(), 2)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().Published)
}

func TestInMemoryBusClosed(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewTypingEvent("m", "u", true)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestAsyncBusDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: quietLogger()})
	var rec recorder
	require.NoError(t, bus.SubscribeAll(rec.handle))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewTypingEvent("m", "u", true)))
	}
	require.NoError(t, bus.Close())
	assert.Len(t, rec.all(), 20)
}

func TestPusherRoundTrip(t *testing.T) {
	bus := syncBus()
	var got []Envelope
	require.NoError(t, bus.Subscribe(EventDelivery, func(ev shared.Event) error {
		env, err := DecodeDelivery(ev)
		if err != nil {
			return err
		}
		got = append(got, env)
		return nil
	}))

	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := shared.NewMessageSentEvent("msg-1", "m1", "alice", "hi", sent)
	NewPusher(bus, quietLogger()).Push(context.Background(), []shared.Delivery{
		shared.ToUser("bob", msg),
		shared.ToMatchRoom("m1", msg),
		{Audience: shared.AudienceUser},
	})

	require.Len(t, got, 2)
	assert.Equal(t, shared.AudienceUser, got[0].Audience)
	assert.Equal(t, "bob", got[0].Target)
	assert.Equal(t, shared.EventMessageSent, got[0].Type)
	assert.Equal(t, "hi", got[0].Data["content"])
	assert.Equal(t, shared.AudienceMatchRoom, got[1].Audience)
	assert.Equal(t, "m1", got[1].Target)
}

func TestDecodeDeliveryRejectsOtherEvents(t *testing.T) {
	_, err := DecodeDelivery(shared.NewTypingEvent("m", "u", true))
	assert.Error(t, err)
}

// fakeRedis loops published messages back to subscribers.
type fakeRedis struct {
	mu   sync.Mutex
	subs []chan RedisMessage
	sent []string
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message.(string))
	for _, s := range f.subs {
		s <- RedisMessage{Channel: channel, Payload: message.(string)}
	}
	return nil
}

func (f *fakeRedis) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	f.subs = append(f.subs, ch)
	return ch, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisBusSkipsOwnMessagesAndReplaysRemote(t *testing.T) {
	fr := &fakeRedis{}
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         fr,
		InstanceID:     "self",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
		Logger:         quietLogger(),
	})
	require.NoError(t, err)
	defer bus.Close()

	var rec recorder
	require.NoError(t, bus.SubscribeAll(rec.handle))

	require.NoError(t, bus.Publish(shared.NewTypingEvent("m1", "alice", true)))
	require.Len(t, fr.sent, 1)

	remote, err := json.Marshal(eventEnvelope{
		InstanceID:  "other",
		EventType:   shared.EventMatchArchived,
		AggregateID: "m2",
		OccurredAt:  time.Now(),
		Payload:     map[string]interface{}{"match_id": "m2"},
	})
	require.NoError(t, err)
	fr.subs[0] <- RedisMessage{Payload: string(remote)}

	assert.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	events := rec.all()
	assert.Equal(t, shared.EventTypingIndicator, events[0].EventType())
	assert.Equal(t, shared.EventMatchArchived, events[1].EventType())
	assert.Equal(t, "m2", events[1].AggregateID())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(func(shared.Event) error { panic("boom") }, Recovery(quietLogger()), Logging(quietLogger(), 0))
	err := h(shared.NewTypingEvent("m", "u", true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
