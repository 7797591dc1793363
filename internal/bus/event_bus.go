// Package bus provides the in-process publish/subscribe primitive every
// other component communicates through.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler is a subscriber callback. A returned error is isolated by the bus:
// it is logged and reported on the handler_error topic, never surfaced to the
// publisher or to other subscribers.
type Handler func(event models.Event) error

// Subscription is an opaque handle identifying one subscribed handler.
// The zero value is not subscribed; unsubscribing it is a no-op.
type Subscription struct {
	topic string
	id    string
}

type subscriber struct {
	id      string
	handler Handler
}

// EventBus is a topic-keyed subscriber table with synchronous, FIFO,
// fire-and-forget delivery. Events are not persisted or replayed: a
// subscriber that joins after publication never sees past events.
type EventBus struct {
	mu     sync.RWMutex
	topics map[string][]subscriber
	logger zerolog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		topics: make(map[string][]subscriber),
		logger: logger.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers handler for topic. Handlers on the same topic are
// invoked in subscription order.
func (b *EventBus) Subscribe(topic string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscriber{id: uuid.NewString(), handler: handler}
	b.topics[topic] = append(b.topics[topic], sub)

	b.logger.Debug().Str("topic", topic).Str("subscription", sub.id).Msg("Handler subscribed")
	return Subscription{topic: topic, id: sub.id}
}

// Unsubscribe removes the handler identified by sub. Removing an unknown or
// already-removed subscription is a no-op.
func (b *EventBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			b.logger.Debug().Str("topic", sub.topic).Str("subscription", sub.id).Msg("Handler unsubscribed")
			return
		}
	}
}

// Publish delivers payload to every subscriber of topic, synchronously on
// the caller's goroutine, in subscription order. Publishing with zero
// subscribers is a no-op. Handlers run outside the bus lock, so they may
// subscribe, unsubscribe or publish reentrantly.
func (b *EventBus) Publish(topic string, payload any) {
	event := models.Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, event)
	}
}

// deliver invokes one handler, containing both returned errors and panics.
func (b *EventBus) deliver(s subscriber, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.reportHandlerFailure(event.Topic, s.id, fmt.Errorf("handler panicked: %v", r))
		}
	}()

	if err := s.handler(event); err != nil {
		b.reportHandlerFailure(event.Topic, s.id, err)
	}
}

// reportHandlerFailure logs a contained handler failure and republishes it on
// the handler_error topic. Failures of handler_error subscribers themselves
// are only logged, so a broken error handler cannot recurse.
func (b *EventBus) reportHandlerFailure(topic, subscriptionID string, err error) {
	b.logger.Error().
		Err(err).
		Str("topic", topic).
		Str("subscription", subscriptionID).
		Msg("Event handler failed")

	if topic == constants.TopicHandlerError {
		return
	}

	b.Publish(constants.TopicHandlerError, models.ErrorEvent{
		Kind:    models.ErrorKindHandler,
		Message: fmt.Sprintf("handler for topic %q failed: %s", topic, err),
	})
}
