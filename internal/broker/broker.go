// Package broker moves envelopes between publishers and topic subscribers.
// Delivery is best-effort: nothing is buffered for absent subscribers and a
// subscriber whose buffer is full misses the event.
package broker

import (
	"context"
	"errors"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

const subscriptionBufSize = 256

var ErrClosed = errors.New("broker: closed")

type Subscription interface {
	Topic() string
	C() <-chan event.Envelope
	Close() error
}

type Broker interface {
	Publish(ctx context.Context, env event.Envelope) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}
