// Package channel maps topics to handlers and ties subscription lifetime to
// whoever registered them. One transport subscription is held per topic no
// matter how many handlers are attached to it.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// AnyKind registers a handler for every event on a topic.
const AnyKind event.Kind = ""

var ErrRouterClosed = errors.New("channel: router closed")

// Source opens transport subscriptions. A broker.Broker satisfies it on the
// server; the client WebSocket connection satisfies it on the client.
type Source interface {
	Subscribe(ctx context.Context, topic string) (broker.Subscription, error)
}

type Handle struct {
	id    uint64
	topic string
}

func (h Handle) Topic() string { return h.topic }

type registration struct {
	kind    event.Kind
	handler event.Handler
}

type topicState struct {
	sub      broker.Subscription
	handlers map[uint64]registration
}

type Router struct {
	source Source
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	topics map[string]*topicState
	closed bool
}

func NewRouter(source Source, logger *slog.Logger) *Router {
	return &Router{
		source: source,
		logger: logger,
		topics: make(map[string]*topicState),
	}
}

// Subscribe attaches handler to kind events of topic, opening the transport
// subscription if this is the first handler of the topic.
func (r *Router) Subscribe(ctx context.Context, topic string, kind event.Kind, handler event.Handler) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Handle{}, ErrRouterClosed
	}

	state, ok := r.topics[topic]
	if !ok {
		sub, err := r.source.Subscribe(ctx, topic)
		if err != nil {
			return Handle{}, err
		}
		state = &topicState{
			sub:      sub,
			handlers: make(map[uint64]registration),
		}
		r.topics[topic] = state
		go r.pump(topic, sub)
	}

	r.nextID++
	id := r.nextID
	state.handlers[id] = registration{kind: kind, handler: handler}

	return Handle{id: id, topic: topic}, nil
}

// Unsubscribe detaches a handler and closes the transport subscription once
// the topic has no handlers left. Unknown handles are ignored.
func (r *Router) Unsubscribe(h Handle) {
	r.mu.Lock()
	state, ok := r.topics[h.topic]
	if !ok {
		r.mu.Unlock()
		return
	}

	delete(state.handlers, h.id)

	var sub broker.Subscription
	if len(state.handlers) == 0 {
		sub = state.sub
		delete(r.topics, h.topic)
	}
	r.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			r.logger.Warn("failed to close subscription", "topic", h.topic, "err", err)
		}
	}
}

// Resubscribe reopens transport subscriptions lost to a disconnect. Events
// published while disconnected are not replayed.
func (r *Router) Resubscribe(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for topic, state := range r.topics {
		if state.sub != nil {
			continue
		}
		sub, err := r.source.Subscribe(ctx, topic)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		state.sub = sub
		go r.pump(topic, sub)
	}

	return errors.Join(errs...)
}

// Topics lists the topics that currently have handlers.
func (r *Router) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	subs := make([]broker.Subscription, 0, len(r.topics))
	for topic, state := range r.topics {
		if state.sub != nil {
			subs = append(subs, state.sub)
		}
		delete(r.topics, topic)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (r *Router) pump(topic string, sub broker.Subscription) {
	for env := range sub.C() {
		ev, err := event.Decode(env)
		if err != nil {
			r.logger.Warn("dropping undecodable event", "topic", topic, "event", env.Kind, "err", err)
			continue
		}

		for _, handler := range r.handlersFor(topic, sub, env.Kind) {
			handler(env, ev)
		}
	}

	// The transport ended. Keep the handlers but stop delivering until
	// Resubscribe opens a new subscription.
	r.mu.Lock()
	if state, ok := r.topics[topic]; ok && state.sub == sub {
		state.sub = nil
		r.logger.Info("subscription lost", "topic", topic)
	}
	r.mu.Unlock()
}

func (r *Router) handlersFor(topic string, sub broker.Subscription, kind event.Kind) []event.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.topics[topic]
	if !ok || state.sub != sub {
		return nil
	}

	handlers := make([]event.Handler, 0, len(state.handlers))
	for _, reg := range state.handlers {
		if reg.kind == AnyKind || reg.kind == kind {
			handlers = append(handlers, reg.handler)
		}
	}
	return handlers
}
