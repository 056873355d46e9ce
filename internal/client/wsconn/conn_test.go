package wsconn_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/clienttest"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/wsconn"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway accepts every subscribe except topics listed in refuse.
type fakeGateway struct {
	upgrader   websocket.Upgrader
	refuse     map[string]bool
	subscribes chan string
	tokens     chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newFakeGateway(t *testing.T, refuse ...string) (*fakeGateway, string) {
	f := &fakeGateway{
		refuse:     make(map[string]bool),
		subscribes: make(chan string, 16),
		tokens:     make(chan string, 4),
	}
	for _, topic := range refuse {
		f.refuse[topic] = true
	}

	ts := httptest.NewServer(f)
	t.Cleanup(func() {
		f.drop()
		ts.Close()
	})
	return f, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.tokens <- r.URL.Query().Get("token")

	f.mu.Lock()
	f.conns = append(f.conns, ws)
	f.mu.Unlock()

	for {
		var fr event.Frame
		if err := ws.ReadJSON(&fr); err != nil {
			return
		}
		if fr.Op != event.OpSubscribe {
			continue
		}
		f.subscribes <- fr.Topic
		if f.refuse[fr.Topic] {
			f.write(ws, event.Frame{Op: event.OpError, Topic: fr.Topic, Error: "not a member of this conversation"})
			continue
		}
		f.write(ws, event.Frame{Op: event.OpSubscribed, Topic: fr.Topic})
	}
}

func (f *fakeGateway) write(ws *websocket.Conn, fr event.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = ws.WriteJSON(fr)
}

// push sends an event on the newest connection.
func (f *fakeGateway) push(t *testing.T, topic string, ev event.Event) {
	t.Helper()
	env, err := event.NewEnvelope(topic, 0, ev)
	require.NoError(t, err)

	f.mu.Lock()
	ws := f.conns[len(f.conns)-1]
	f.mu.Unlock()
	f.write(ws, event.Frame{Op: event.OpEvent, Topic: topic, Envelope: &env})
}

func (f *fakeGateway) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ws := range f.conns {
		_ = ws.Close()
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestConnSubscribesAndReceives(t *testing.T) {
	fake, url := newFakeGateway(t)
	ctx := context.Background()

	conn, err := wsconn.Dial(ctx, url, "secret", discard())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "secret", waitFor(t, fake.tokens))

	topic := event.ConversationTopic(1)
	sub, err := conn.Subscribe(ctx, topic)
	require.NoError(t, err)
	assert.Equal(t, topic, waitFor(t, fake.subscribes))
	assert.Equal(t, topic, sub.Topic())

	fake.push(t, event.ConversationTopic(2), event.Presence{Online: true, UserID: 5})
	fake.push(t, topic, event.Presence{Online: true, UserID: 7})

	env := waitFor(t, sub.C())
	assert.Equal(t, topic, env.Topic, "events of other topics are not routed here")
	ev, err := event.Decode(env)
	require.NoError(t, err)
	assert.Equal(t, event.Presence{Online: true, UserID: 7}, ev)
}

func TestConnSubscribeRejected(t *testing.T) {
	topic := event.ConversationTopic(9)
	_, url := newFakeGateway(t, topic)

	conn, err := wsconn.Dial(context.Background(), url, "secret", discard())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Subscribe(context.Background(), topic)
	var rejected *wsconn.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, topic, rejected.Topic)
	assert.Contains(t, rejected.Reason, "not a member")
}

func TestConnReconnectReplaysSubscriptions(t *testing.T) {
	fake, url := newFakeGateway(t)
	ctx := context.Background()

	conn, err := wsconn.Dial(ctx, url, "secret", discard())
	require.NoError(t, err)
	defer conn.Close()

	topic := event.ConversationTopic(1)
	sub, err := conn.Subscribe(ctx, topic)
	require.NoError(t, err)
	waitFor(t, fake.subscribes)

	done := conn.Done()
	fake.drop()
	waitFor(t, done)
	assert.False(t, conn.Connected())

	require.NoError(t, conn.Reconnect(ctx))
	assert.True(t, conn.Connected())
	assert.Equal(t, topic, waitFor(t, fake.subscribes), "topics are replayed on the new socket")

	fake.push(t, topic, event.Presence{Online: false, UserID: 3})
	env := waitFor(t, sub.C())
	assert.Equal(t, event.KindOffline, env.Kind)

	require.NoError(t, conn.Close())
	_, open := <-sub.C()
	assert.False(t, open)

	_, err = conn.Subscribe(ctx, topic)
	assert.ErrorIs(t, err, broker.ErrClosed)
	assert.ErrorIs(t, conn.Reconnect(ctx), broker.ErrClosed)
}

func TestConnAgainstGateway(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()
	memory := srv.Dep.Broker.(*broker.MemoryBroker)

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	carol := testutil.CreateUser(t, srv.Dep.DB, "carol")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, carol.ID)

	ours, err := srv.Svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	theirs, err := srv.Svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	conn, err := wsconn.Dial(ctx, srv.WSURL, srv.Token(t, bob.ID), discard())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Subscribe(ctx, event.ConversationTopic(theirs.ID))
	var rejected *wsconn.RejectedError
	require.ErrorAs(t, err, &rejected)

	topic := event.ConversationTopic(ours.ID)
	first, err := conn.Subscribe(ctx, topic)
	require.NoError(t, err)
	second, err := conn.Subscribe(ctx, topic)
	require.NoError(t, err)

	_, err = srv.Svcs.Messages.SendPrivateMessage(ctx, alice.ID, &dto.SendPrivateMessageRequest{
		ReceiverID:     bob.ID,
		MessageContent: testutil.TextContent("hey"),
	})
	require.NoError(t, err)

	for _, sub := range []broker.Subscription{first, second} {
		env := waitFor(t, sub.C())
		assert.Equal(t, event.KindNewMessage, env.Kind)
		assert.Equal(t, alice.ID, env.ActorID)
	}

	require.NoError(t, first.Close())
	assert.Equal(t, 1, memory.SubscriberCount(topic), "the server keeps the topic while one subscription is left")

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return memory.SubscriberCount(topic) == 0 }, 2*time.Second, 10*time.Millisecond)
}
