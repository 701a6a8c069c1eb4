package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// EventDelivery is the bus event type that carries an addressed domain event.
const EventDelivery shared.EventType = "push.delivery"

// Envelope is an addressed event as the real-time layer sees it.
type Envelope struct {
	Audience   shared.Audience        `json:"-"`
	Target     string                 `json:"-"`
	Type       shared.EventType       `json:"type"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data"`
}

type deliveryEvent struct {
	shared.BaseEvent
	d shared.Delivery
}

func (e deliveryEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"audience":    string(e.d.Audience),
		"target":      e.d.Target,
		"type":        string(e.d.Event.EventType()),
		"occurred_at": e.d.Event.OccurredAt().Format(time.RFC3339Nano),
		"data":        e.d.Event.Payload(),
	}
}

// DecodeDelivery rebuilds an Envelope from a delivery event. It accepts both
// local events and events replayed from Redis.
func DecodeDelivery(ev shared.Event) (Envelope, error) {
	if ev.EventType() != EventDelivery {
		return Envelope{}, fmt.Errorf("not a delivery: %s", ev.EventType())
	}
	p := ev.Payload()
	audience, _ := p["audience"].(string)
	target, _ := p["target"].(string)
	typ, _ := p["type"].(string)
	if audience == "" || target == "" || typ == "" {
		return Envelope{}, errors.New("delivery is missing audience, target or type")
	}

	env := Envelope{
		Audience: shared.Audience(audience),
		Target:   target,
		Type:     shared.EventType(typ),
	}
	if s, ok := p["occurred_at"].(string); ok {
		env.OccurredAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	switch data := p["data"].(type) {
	case map[string]interface{}:
		env.Data = data
	case nil:
		env.Data = map[string]interface{}{}
	default:
		return Envelope{}, fmt.Errorf("delivery data has type %T", data)
	}
	return env, nil
}

// Pusher publishes outbox deliveries after the originating write committed.
type Pusher struct {
	bus    shared.EventPublisher
	logger *slog.Logger
}

// NewPusher creates a Pusher over bus.
func NewPusher(bus shared.EventPublisher, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{bus: bus, logger: logger}
}

// Push publishes every delivery. Failures are logged and never surface to
// the caller: the write they describe has already succeeded.
func (p *Pusher) Push(ctx context.Context, deliveries []shared.Delivery) {
	for _, d := range deliveries {
		if ctx.Err() != nil {
			p.logger.Warn("push abandoned", "remaining", len(deliveries), "error", ctx.Err())
			return
		}
		if d.Event == nil || d.Target == "" {
			continue
		}
		ev := deliveryEvent{BaseEvent: shared.NewBaseEvent(EventDelivery, d.Target), d: d}
		if err := p.bus.Publish(ev); err != nil {
			p.logger.Error("push failed",
				"event_type", d.Event.EventType(),
				"audience", d.Audience,
				"target", d.Target,
				"error", err,
			)
		}
	}
}
