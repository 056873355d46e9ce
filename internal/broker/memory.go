package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// MemoryBroker fans out within a single process.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
	closed bool
	logger *slog.Logger
}

func NewMemoryBroker(logger *slog.Logger) *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[*memorySubscription]struct{}),
		logger: logger,
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan event.Envelope
	once   sync.Once
}

func (s *memorySubscription) Topic() string { return s.topic }

func (s *memorySubscription) C() <-chan event.Envelope { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
	})
	return nil
}

func (b *MemoryBroker) Publish(ctx context.Context, env event.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.topics[env.Topic] {
		select {
		case sub.ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.logger.Warn("subscriber buffer full, dropping event", "topic", env.Topic, "event", env.Kind)
		}
	}

	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan event.Envelope, subscriptionBufSize),
	}

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*memorySubscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}

	return sub, nil
}

// remove unregisters and closes the subscription channel under the write
// lock, so Publish never sends on a closed channel.
func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	close(sub.ch)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, subs := range b.topics {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.topics, topic)
	}

	return nil
}

// SubscriberCount reports the live subscriptions of a topic.
func (b *MemoryBroker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
