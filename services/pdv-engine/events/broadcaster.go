package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// Handler receives a published event. Handlers run in registration order; a
// panicking handler must not prevent the remaining ones from running.
type Handler func(event models.Event)

// Outbound is the channel to the other terminals (Kafka in this deployment).
type Outbound interface {
	Publish(ctx context.Context, event models.Event) error
}

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	eventType models.EventType
	id        int
}

type subscriber struct {
	id      int
	handler Handler
}

// Broadcaster fans events out to local subscribers and, for non-local event
// types, to the outbound channel. Publishing never blocks the caller on
// delivery: outbound sends go through a buffered queue drained by a single
// goroutine, and a full queue drops the event rather than stalling a sale.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[models.EventType][]subscriber

	outbound Outbound
	queue    chan models.Event
	done     chan struct{}
	closeOnce sync.Once
	logger   *zap.Logger
}

// NewBroadcaster creates a broadcaster. outbound may be nil for a terminal
// running disconnected; local delivery still works.
func NewBroadcaster(outbound Outbound, logger *zap.Logger) *Broadcaster {
	b := &Broadcaster{
		subs:     make(map[models.EventType][]subscriber),
		outbound: outbound,
		queue:    make(chan models.Event, 256),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go b.drainOutbound()
	return b
}

// Subscribe registers a handler for one event type.
func (b *Broadcaster) Subscribe(eventType models.EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscriber{id: b.nextID, handler: handler})
	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Unknown subscriptions
// are a no-op.
func (b *Broadcaster) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.eventType]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to local subscribers in registration order and
// enqueues it for the outbound channel. Fire-and-forget: callers never wait
// for delivery confirmation.
func (b *Broadcaster) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	list := make([]subscriber, len(b.subs[event.Type]))
	copy(list, b.subs[event.Type])
	b.mu.Unlock()

	for _, s := range list {
		b.invoke(s, event)
	}

	if b.outbound == nil || event.Type == models.EventCartChanged {
		return
	}

	b.enqueueOutbound(event)
}

// DispatchLocal delivers an event to local subscribers only. Used for events
// arriving from the bus so they are never echoed back outbound.
func (b *Broadcaster) DispatchLocal(event models.Event) {
	b.mu.Lock()
	list := make([]subscriber, len(b.subs[event.Type]))
	copy(list, b.subs[event.Type])
	b.mu.Unlock()

	for _, s := range list {
		b.invoke(s, event)
	}
}

func (b *Broadcaster) enqueueOutbound(event models.Event) {

	select {
	case b.queue <- event:
	default:
		b.logger.Warn("outbound event queue full, dropping event",
			zap.String("type", string(event.Type)))
	}
}

func (b *Broadcaster) invoke(s subscriber, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", string(event.Type)),
				zap.Int("subscriber", s.id),
				zap.Any("panic", r))
		}
	}()
	s.handler(event)
}

func (b *Broadcaster) drainOutbound() {
	for {
		select {
		case <-b.done:
			return
		case event := <-b.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.outbound.Publish(ctx, event); err != nil {
				b.logger.Warn("outbound publish failed",
					zap.String("type", string(event.Type)), zap.Error(err))
			}
			cancel()
		}
	}
}

// Close stops the outbound drain goroutine.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
