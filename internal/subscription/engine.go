// Package subscription is a synchronous topic based pub/sub engine.
package subscription

import (
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Handler receives the events published on a subscribed topic.
type Handler[E any] func(event E) error

// Engine dispatches events to the subscribers of a topic in registration
// order, inline in the publishing call. Failing or panicking handlers are
// logged and never affect the publisher or the other subscribers.
type Engine[K comparable, E any] struct {
	mu     sync.Mutex
	topics map[K][]*Subscription[K, E]
	logger zerolog.Logger
}

func New[K comparable, E any](logger zerolog.Logger) *Engine[K, E] {
	return &Engine[K, E]{
		topics: make(map[K][]*Subscription[K, E]),
		logger: logger.With().Str("module", "subscription").Logger(),
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription[K comparable, E any] struct {
	ID      ulid.ULID
	Topic   K
	handler Handler[E]
	engine  *Engine[K, E]
}

// Subscribe registers handler for topic.
func (e *Engine[K, E]) Subscribe(topic K, handler Handler[E]) *Subscription[K, E] {
	sub := &Subscription[K, E]{
		ID:      ulid.Make(),
		Topic:   topic,
		handler: handler,
		engine:  e,
	}
	e.mu.Lock()
	e.topics[topic] = append(e.topics[topic], sub)
	e.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription. It reports false if it was already
// removed.
func (s *Subscription[K, E]) Unsubscribe() bool {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.topics[s.Topic]
	for i, other := range subs {
		if other != s {
			continue
		}
		remaining := make([]*Subscription[K, E], 0, len(subs)-1)
		remaining = append(remaining, subs[:i]...)
		remaining = append(remaining, subs[i+1:]...)
		if len(remaining) == 0 {
			delete(e.topics, s.Topic)
		} else {
			e.topics[s.Topic] = remaining
		}
		return true
	}
	return false
}

// Publish delivers event to every subscriber of topic and returns how many
// handlers completed without error.
func (e *Engine[K, E]) Publish(topic K, event E) int {
	e.mu.Lock()
	subs := e.topics[topic]
	e.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if err := sub.deliver(event); err != nil {
			e.logger.Warn().Err(err).Str("subscription", sub.ID.String()).Msg("subscriber failed")
			continue
		}
		delivered++
	}
	return delivered
}

// SubscriberCount returns the number of subscribers of topic.
func (e *Engine[K, E]) SubscriberCount(topic K) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.topics[topic])
}

func (s *Subscription[K, E]) deliver(event E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.handler(event)
}
