// Package messaging implements the in-process event bus. Delivery is
// synchronous and strictly ordered; every published event is also appended to
// the persistent event log.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/pkg/logger"
)

// Handler receives events. A returned error is logged and counted; it never
// stops delivery to the remaining handlers.
//
// ctx marks the call as running inside a delivery and carries the bus logger.
// Handlers that publish or call back into the ledger must pass ctx on, so the
// nested call queues its event instead of waiting for the delivery it runs in.
type Handler func(ctx context.Context, event participant.Event) error

type deliveringKey struct{}

// InDelivery reports whether ctx belongs to a handler invocation.
func InDelivery(ctx context.Context) bool {
	v, _ := ctx.Value(deliveringKey{}).(bool)
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// EventBus fans events out to subscribers in registration order.
//
// Events are queued with a sequence number and drained one at a time by
// whichever caller finds the bus idle. Every other caller waits until its own
// event has been delivered. A handler that triggers another publish sees its
// event delivered after the current one finishes, so all subscribers observe
// the same order.
type EventBus struct {
	mu          sync.RWMutex
	subs        []subscription
	nextID      uint64
	middlewares []Middleware
	closed      bool

	qmu       sync.Mutex
	drained   *sync.Cond
	queue     []queuedEvent
	enqueued  uint64
	delivered uint64
	draining  bool

	log     participant.EventLog
	logger  *slog.Logger
	metrics *EventBusMetrics
}

type queuedEvent struct {
	seq   uint64
	event participant.Event
}

type subscription struct {
	id      uint64
	handler Handler
}

// EventBusConfig contains configuration for EventBus.
type EventBusConfig struct {
	// Log persists every published event. Optional.
	Log participant.EventLog

	// Logger for structured logging
	Logger *slog.Logger

	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// DefaultEventBusConfig returns sensible defaults.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{EnableMetrics: true}
}

// NewEventBus creates a new event bus. Panics in handlers are always recovered.
func NewEventBus(config EventBusConfig) *EventBus {
	bus := &EventBus{
		log:    config.Log,
		logger: logger.OrDefault(config.Logger).With(logger.Component("event_bus")),
	}
	bus.drained = sync.NewCond(&bus.qmu)
	bus.middlewares = []Middleware{RecoveryMiddleware(bus.logger)}

	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	return bus
}

// Use appends middleware wrapping every handler. Middleware registered later
// runs closer to the handler.
func (b *EventBus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// Subscribe registers handler and returns an idempotent unsubscribe function.
func (b *EventBus) Subscribe(handler Handler) (func(), error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrEventBusClosed
	}

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	b.logger.Debug("subscribed handler", logger.Subscribers(len(b.subs)))

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}, nil
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish appends event to the log and returns once it has been delivered.
// Called from inside a handler it only queues the event.
func (b *EventBus) Publish(ctx context.Context, event participant.Event) error {
	seq, err := b.Enqueue(ctx, event)
	if err != nil {
		return err
	}
	b.Flush(ctx, seq)
	return nil
}

// Enqueue appends event to the log and the delivery queue without delivering
// it and returns its sequence number. Callers holding their own locks enqueue
// first and Flush after unlocking.
func (b *EventBus) Enqueue(ctx context.Context, event participant.Event) (uint64, error) {
	if event == nil {
		return 0, errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return 0, ErrEventBusClosed
	}

	b.qmu.Lock()
	defer b.qmu.Unlock()

	if b.log != nil {
		// The log is best effort; in-memory delivery still happens.
		if err := b.log.Append(ctx, event); err != nil {
			if b.metrics != nil {
				b.metrics.RecordLogFailure()
			}
			b.logger.Error("failed to append event to log",
				logger.EventKind(string(event.Kind())),
				logger.Err(err),
			)
		}
	}

	b.enqueued++
	b.queue = append(b.queue, queuedEvent{seq: b.enqueued, event: event})
	return b.enqueued, nil
}

// Flush returns once the event numbered seq has been delivered. If the bus is
// idle the caller drains the queue itself; otherwise it waits for the running
// drain. Inside a handler (see InDelivery) it returns at once, leaving the
// event to the drain already in progress. A zero seq returns immediately.
func (b *EventBus) Flush(ctx context.Context, seq uint64) {
	b.qmu.Lock()
	defer b.qmu.Unlock()

	for b.delivered < seq {
		if !b.draining {
			if len(b.queue) == 0 {
				return
			}
			b.drainLocked(ctx)
			continue
		}
		if InDelivery(ctx) {
			return
		}
		b.drained.Wait()
	}
}

// drainLocked delivers queued events in order. qmu is held on entry and exit
// and released around each delivery.
func (b *EventBus) drainLocked(ctx context.Context) {
	b.draining = true

	dctx := context.WithValue(context.WithoutCancel(ctx), deliveringKey{}, true)
	dctx = logger.WithContext(dctx, b.logger)

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue[0] = queuedEvent{}
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		b.deliver(dctx, next.event)

		b.qmu.Lock()
		b.delivered = max(b.delivered, next.seq)
		b.drained.Broadcast()
	}

	b.draining = false
	b.drained.Broadcast()
}

// deliver runs every current subscriber against event. The subscriber list is
// snapshotted so handlers may subscribe or unsubscribe during delivery.
func (b *EventBus) deliver(ctx context.Context, event participant.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	middlewares := b.middlewares
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordPublish(event.Kind())
	}

	if len(subs) == 0 {
		b.logger.Debug("no handlers for event", logger.EventKind(string(event.Kind())))
		return
	}

	for _, s := range subs {
		handler := chain(s.handler, middlewares)

		start := time.Now()
		err := handler(ctx, event)
		duration := time.Since(start)

		if b.metrics != nil {
			b.metrics.RecordHandlerExecution(event.Kind(), duration, err == nil)
		}

		if err != nil {
			b.logger.Error("handler error",
				logger.EventKind(string(event.Kind())),
				logger.ParticipantID(event.AggregateID()),
				logger.Latency(duration),
				logger.Err(err),
			)
		}
	}
}

// Recent returns up to n of the latest logged events, oldest first.
func (b *EventBus) Recent(ctx context.Context, n int) ([]participant.Event, error) {
	if b.log == nil {
		return []participant.Event{}, nil
	}
	return b.log.Recent(ctx, n)
}

// Close drops all subscribers and pending events and releases every caller
// waiting in Flush. Nothing is delivered afterwards. Calling Close again is a
// no-op.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = nil
	b.mu.Unlock()

	b.qmu.Lock()
	b.queue = nil
	b.delivered = b.enqueued
	b.drained.Broadcast()
	b.qmu.Unlock()

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the current metrics, nil if disabled.
func (b *EventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)
