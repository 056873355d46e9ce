package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

const redisChannelPrefix = "chat:"

// RedisBroker fans out across processes through Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		logger: logger,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, env event.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannelPrefix+env.Topic, raw).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, redisChannelPrefix+topic)

	// Wait for the subscribe confirmation so no publish after this call is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &redisSubscription{
		topic: topic,
		ps:    ps,
		ch:    make(chan event.Envelope, subscriptionBufSize),
		done:  make(chan struct{}),
	}
	go sub.pump(b.logger)

	return sub, nil
}

// Close is a no-op; the redis client is owned by the dependency container.
func (b *RedisBroker) Close() error {
	return nil
}

type redisSubscription struct {
	topic string
	ps    *redis.PubSub
	ch    chan event.Envelope
	done  chan struct{}
	once  sync.Once
}

func (s *redisSubscription) Topic() string { return s.topic }

func (s *redisSubscription) C() <-chan event.Envelope { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSubscription) pump(logger *slog.Logger) {
	defer close(s.ch)

	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.ps.Channel():
			if !ok {
				return
			}

			var env event.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("dropping malformed envelope", "channel", msg.Channel, "err", err)
				continue
			}

			select {
			case s.ch <- env:
			case <-s.done:
				return
			default:
				logger.Warn("subscriber buffer full, dropping event", "topic", s.topic, "event", env.Kind)
			}
		}
	}
}
