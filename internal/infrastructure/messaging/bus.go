// Package messaging carries domain events between the application layer and
// real-time subscribers. An in-memory bus serves single-instance deployments;
// the Redis bus fans events out across API instances.
package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned once Close has been called.
	ErrEventBusClosed = errors.New("event bus is closed")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// anyEvent keys handlers registered through SubscribeAll.
const anyEvent shared.EventType = ""

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands events to a fixed set of workers instead of running
	// handlers on the publishing goroutine.
	AsyncMode bool

	WorkerPoolSize int
	Logger         *slog.Logger
}

type dispatch struct {
	event    shared.Event
	handlers []shared.EventHandler
}

// InMemoryEventBus dispatches events to handlers registered in this process.
// Handler errors are logged and counted, never returned to the publisher.
type InMemoryEventBus struct {
	mu     sync.RWMutex
	routes map[shared.EventType][]shared.EventHandler
	closed bool

	queue   chan dispatch
	workers sync.WaitGroup

	logger  *slog.Logger
	metrics *EventBusMetrics
}

// NewInMemoryEventBus creates the bus and, in async mode, starts its workers.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 4
	}

	b := &InMemoryEventBus{
		routes:  make(map[shared.EventType][]shared.EventHandler),
		logger:  config.Logger,
		metrics: &EventBusMetrics{},
	}
	if config.AsyncMode {
		b.queue = make(chan dispatch, config.WorkerPoolSize*64)
		for i := 0; i < config.WorkerPoolSize; i++ {
			b.workers.Add(1)
			go b.work()
		}
	}
	return b
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if eventType == anyEvent {
		return errors.New("event type is required")
	}
	return b.add(eventType, handler)
}

// SubscribeAll registers handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(anyEvent, handler)
}

func (b *InMemoryEventBus) add(key shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.routes[key] = append(b.routes[key], handler)
	return nil
}

// Publish routes event to its type handlers followed by the catch-all ones.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	b.metrics.published.Add(1)

	typed, all := b.routes[event.EventType()], b.routes[anyEvent]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(all))
	handlers = append(append(handlers, typed...), all...)
	d := dispatch{event: event, handlers: handlers}

	if b.queue == nil {
		b.mu.RUnlock()
		b.run(d)
		return nil
	}
	// Enqueue under the read lock so Close cannot close the queue
	// underneath a sender.
	if len(handlers) > 0 {
		b.queue <- d
	}
	b.mu.RUnlock()
	return nil
}

func (b *InMemoryEventBus) work() {
	defer b.workers.Done()
	for d := range b.queue {
		b.run(d)
	}
}

func (b *InMemoryEventBus) run(d dispatch) {
	for _, h := range d.handlers {
		start := time.Now()
		err := h(d.event)
		if err == nil {
			b.metrics.succeeded.Add(1)
			continue
		}
		b.metrics.failed.Add(1)
		b.logger.Error("event handler failed",
			"event_type", d.event.EventType(),
			"aggregate_id", d.event.AggregateID(),
			"duration", time.Since(start),
			"error", err,
		)
	}
}

// Close rejects further events and waits until queued ones are handled.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	return nil
}

// Metrics returns the bus counters.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts bus activity.
type EventBusMetrics struct {
	published atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	Published          int64   `json:"published"`
	HandlerSuccesses   int64   `json:"handlerSuccesses"`
	HandlerFailures    int64   `json:"handlerFailures"`
	HandlerSuccessRate float64 `json:"handlerSuccessRate"`
}

// Snapshot returns the current counters. The success rate is 1 before any
// handler has run.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	ok, failed := m.succeeded.Load(), m.failed.Load()
	rate := 1.0
	if ok+failed > 0 {
		rate = float64(ok) / float64(ok+failed)
	}
	return EventBusMetricsSnapshot{
		Published:          m.published.Load(),
		HandlerSuccesses:   ok,
		HandlerFailures:    failed,
		HandlerSuccessRate: rate,
	}
}
