package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// DefaultChannel is the pub/sub channel shared by all API instances.
const DefaultChannel = "fitmatch:events"

// RedisClient is the slice of Redis pub/sub the fan-out bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one message received from a subscription.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig configures RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to DefaultChannel.
	ChannelName string

	// InstanceID tags outgoing messages so an instance can skip its own.
	// Generated when empty.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *slog.Logger
}

// RedisEventBus delivers every event locally and mirrors it to the channel;
// messages from other instances are replayed on the local bus.
type RedisEventBus struct {
	*InMemoryEventBus

	client   RedisClient
	channel  string
	instance string
	logger   *slog.Logger

	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

// NewRedisEventBus subscribes to the channel and starts the replay loop.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = DefaultChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	inbox, err := config.Client.Subscribe(ctx, config.ChannelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", config.ChannelName, err)
	}

	b := &RedisEventBus{
		InMemoryEventBus: NewInMemoryEventBus(config.LocalBusConfig),
		client:           config.Client,
		channel:          config.ChannelName,
		instance:         config.InstanceID,
		logger:           config.Logger.With("instance_id", config.InstanceID),
		stop:             cancel,
		done:             make(chan struct{}),
	}
	go b.replay(ctx, inbox)
	return b, nil
}

// Publish mirrors event to Redis, then delivers it locally. A Redis failure
// is logged and local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}
	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instance,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.InMemoryEventBus.Publish(event); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, string(data)); err != nil {
		b.logger.Error("redis publish failed", "event_type", event.EventType(), "error", err)
	}
	return nil
}

func (b *RedisEventBus) replay(ctx context.Context, inbox <-chan RedisMessage) {
	defer close(b.done)
	for {
		var msg RedisMessage
		var ok bool
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-inbox:
			if !ok {
				return
			}
		}
		if msg.Err != nil {
			b.logger.Error("redis subscription error", "error", msg.Err)
			continue
		}

		var env eventEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.Warn("dropping malformed event", "error", err)
			continue
		}
		if env.InstanceID == b.instance {
			continue
		}
		if err := b.InMemoryEventBus.Publish(remoteEvent{env}); err != nil {
			b.logger.Error("replaying remote event failed", "event_type", env.EventType, "error", err)
		}
	}
}

// Close stops the replay loop, drains the local bus and closes the client.
func (b *RedisEventBus) Close() error {
	var err error
	b.once.Do(func() {
		b.stop()
		<-b.done
		_ = b.InMemoryEventBus.Close()
		err = b.client.Close()
	})
	return err
}

// eventEnvelope is the wire form of an event on the channel.
type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// remoteEvent replays an envelope as a shared.Event.
type remoteEvent struct{ env eventEnvelope }

func (e remoteEvent) EventType() shared.EventType     { return e.env.EventType }
func (e remoteEvent) AggregateID() string             { return e.env.AggregateID }
func (e remoteEvent) OccurredAt() time.Time           { return e.env.OccurredAt }
func (e remoteEvent) Payload() map[string]interface{} { return e.env.Payload }
