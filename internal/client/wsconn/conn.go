// Package wsconn is the client side of the WebSocket gateway. A Conn is a
// channel.Source: subscriptions opened on it receive the envelopes the
// server pushes for their topic, and they survive reconnects.
package wsconn

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/channel"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

const (
	writeWait       = 10 * time.Second
	subscriptionBuf = 256
)

var ErrDisconnected = errors.New("wsconn: disconnected")

var _ channel.Source = (*Conn)(nil)

// RejectedError is the server's answer to a subscribe it refused.
type RejectedError struct {
	Topic  string
	Reason string
}

func (e *RejectedError) Error() string {
	return "wsconn: subscribe " + e.Topic + " rejected: " + e.Reason
}

type Conn struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	ws      *websocket.Conn
	done    chan struct{}
	subs    map[string]map[*subscription]struct{}
	waiters map[string][]chan error
	closed  bool

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// Dial connects to the gateway at endpoint (for example
// ws://localhost:3003/api/ws) with a user token.
func Dial(ctx context.Context, endpoint, token string, logger *slog.Logger) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	c := &Conn{
		url:     u.String(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger,
		subs:    make(map[string]map[*subscription]struct{}),
		waiters: make(map[string][]chan error),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return broker.ErrClosed
	}
	done := make(chan struct{})
	c.ws = ws
	c.done = done
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	go c.readLoop(ws, done)

	// Replay the topics subscribed before a reconnect. The server answers
	// each one; a refusal is logged by the read loop.
	for _, topic := range topics {
		if err := c.write(ws, event.Frame{Op: event.OpSubscribe, Topic: topic}); err != nil {
			return err
		}
	}
	return nil
}

// Done is closed when the current socket goes away.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connected reports whether a socket is up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Reconnect dials again after the socket went away. It is a no-op while
// connected.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return broker.ErrClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.connect(ctx)
}

// Subscribe asks the server for topic and waits for its answer. While
// disconnected the subscription is only recorded and is sent on the next
// reconnect.
func (c *Conn) Subscribe(ctx context.Context, topic string) (broker.Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, broker.ErrClosed
	}

	sub := &subscription{conn: c, topic: topic, ch: make(chan event.Envelope, subscriptionBuf)}
	set, known := c.subs[topic]
	if !known {
		set = make(map[*subscription]struct{})
		c.subs[topic] = set
	}
	set[sub] = struct{}{}

	ws, done := c.ws, c.done
	if known || ws == nil {
		c.mu.Unlock()
		return sub, nil
	}
	ack := make(chan error, 1)
	c.waiters[topic] = append(c.waiters[topic], ack)
	c.mu.Unlock()

	if err := c.write(ws, event.Frame{Op: event.OpSubscribe, Topic: topic}); err != nil {
		_ = sub.Close()
		return nil, err
	}

	select {
	case err := <-ack:
		if errors.Is(err, ErrDisconnected) {
			// The replay on reconnect takes over.
			return sub, nil
		}
		if err != nil {
			_ = sub.Close()
			return nil, err
		}
		return sub, nil
	case <-done:
		return sub, nil
	case <-ctx.Done():
		_ = sub.Close()
		return nil, ctx.Err()
	}
}

// Close ends every subscription and the socket. A closed Conn cannot
// reconnect.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	for topic, set := range c.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(c.subs, topic)
	}
	c.failWaiters(broker.ErrClosed)
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return ws.Close()
}

func (c *Conn) write(ws *websocket.Conn, f event.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(f)
}

func (c *Conn) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		c.failWaiters(ErrDisconnected)
		c.mu.Unlock()

		_ = ws.Close()
		close(done)
	}()

	for {
		var f event.Frame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("gateway connection lost", "err", err)
			}
			return
		}

		switch f.Op {
		case event.OpEvent:
			if f.Envelope != nil {
				c.dispatch(*f.Envelope)
			}
		case event.OpSubscribed:
			c.answer(f.Topic, nil)
		case event.OpError:
			c.answer(f.Topic, &RejectedError{Topic: f.Topic, Reason: f.Error})
		default:
			c.logger.Warn("unknown frame from gateway", "op", f.Op)
		}
	}
}

func (c *Conn) dispatch(env event.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub := range c.subs[env.Topic] {
		select {
		case sub.ch <- env:
		default:
			c.logger.Warn("subscriber buffer full, dropping event", "topic", env.Topic, "event", env.Kind)
		}
	}
}

// answer hands the server's reply to the oldest waiter of the topic.
func (c *Conn) answer(topic string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiters := c.waiters[topic]
	if len(waiters) == 0 {
		if err != nil {
			c.logger.Warn("gateway refused topic", "topic", topic, "err", err)
		}
		return
	}
	waiters[0] <- err
	if len(waiters) == 1 {
		delete(c.waiters, topic)
	} else {
		c.waiters[topic] = waiters[1:]
	}
}

// failWaiters must be called with mu held.
func (c *Conn) failWaiters(err error) {
	for topic, waiters := range c.waiters {
		for _, w := range waiters {
			w <- err
		}
		delete(c.waiters, topic)
	}
}

type subscription struct {
	conn  *Conn
	topic string
	ch    chan event.Envelope
	once  sync.Once
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) C() <-chan event.Envelope { return s.ch }

// Close releases the subscription and, for the last one of its topic,
// tells the server to stop sending it.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		c := s.conn
		c.mu.Lock()
		set, ok := c.subs[s.topic]
		if !ok {
			c.mu.Unlock()
			return
		}
		if _, ok := set[s]; !ok {
			c.mu.Unlock()
			return
		}
		delete(set, s)
		close(s.ch)

		last := len(set) == 0
		if last {
			delete(c.subs, s.topic)
		}
		ws := c.ws
		c.mu.Unlock()

		if last && ws != nil {
			err = c.write(ws, event.Frame{Op: event.OpUnsubscribe, Topic: s.topic})
		}
	})
	return err
}
