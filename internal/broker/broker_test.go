package broker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustEnvelope(t *testing.T, topic string, ev event.Event) event.Envelope {
	t.Helper()
	env, err := event.NewEnvelope(topic, 1, ev)
	require.NoError(t, err)
	return env
}

func receive(t *testing.T, sub broker.Subscription) event.Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event on %s", sub.Topic())
	}
	return event.Envelope{}
}

func assertNothing(t *testing.T, sub broker.Subscription) {
	t.Helper()
	select {
	case env, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected event %s on %s", env.Kind, sub.Topic())
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func runBrokerContract(t *testing.T, b broker.Broker) {
	ctx := context.Background()

	subA, err := b.Subscribe(ctx, event.UserTopic(1))
	require.NoError(t, err)
	subB, err := b.Subscribe(ctx, event.UserTopic(2))
	require.NoError(t, err)
	defer subB.Close()

	env := mustEnvelope(t, event.UserTopic(1), event.Presence{Online: true, UserID: 9})
	require.NoError(t, b.Publish(ctx, env))

	got := receive(t, subA)
	assert.Equal(t, event.KindOnline, got.Kind)
	assert.Equal(t, event.UserTopic(1), got.Topic)
	assertNothing(t, subB)

	require.NoError(t, subA.Close())
	require.NoError(t, subA.Close(), "close must be idempotent")

	require.NoError(t, b.Publish(ctx, env))
	assertNothing(t, subB)
}

func TestMemoryBroker(t *testing.T) {
	b := broker.NewMemoryBroker(testLogger())
	defer b.Close()

	runBrokerContract(t, b)
	assert.Equal(t, 0, b.SubscriberCount(event.UserTopic(1)))
}

func TestMemoryBrokerDropsWithoutSubscribers(t *testing.T) {
	b := broker.NewMemoryBroker(testLogger())
	ctx := context.Background()

	env := mustEnvelope(t, event.UserTopic(5), event.Presence{Online: true, UserID: 5})
	require.NoError(t, b.Publish(ctx, env))

	sub, err := b.Subscribe(ctx, event.UserTopic(5))
	require.NoError(t, err)
	assertNothing(t, sub)

	require.NoError(t, b.Close())
	_, ok := <-sub.C()
	assert.False(t, ok, "close must close subscriber channels")

	assert.ErrorIs(t, b.Publish(ctx, env), broker.ErrClosed)
	_, err = b.Subscribe(ctx, event.UserTopic(5))
	assert.ErrorIs(t, err, broker.ErrClosed)
}

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runBrokerContract(t, broker.NewRedisBroker(client, testLogger()))
}
