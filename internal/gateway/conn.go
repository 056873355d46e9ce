package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/channel"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

var (
	errNotMember    = errors.New("not a member of this conversation")
	errUnknownTopic = errors.New("unknown topic")
	errUnknownOp    = errors.New("unknown op")
	errBadFrame     = errors.New("malformed frame")
)

type conn struct {
	id      string
	userID  uint
	ws      *websocket.Conn
	g       *Gateway
	binding *channel.Binding
	egress  chan event.Frame

	// topicsMu serialises membership checks with joins and leaves.
	topicsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newConn(g *Gateway, userID uint, ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())

	return &conn{
		id:      uuid.NewString(),
		userID:  userID,
		ws:      ws,
		g:       g,
		binding: g.router.Bind(),
		egress:  make(chan event.Frame, sendBufSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// joinInitial listens on the user's own topic and every conversation the
// user belongs to.
func (c *conn) joinInitial() error {
	if err := c.binding.On(c.ctx, event.UserTopic(c.userID), channel.AnyKind, c.deliver); err != nil {
		return err
	}

	ids, err := c.g.members.ConversationIDsOf(c.ctx, c.userID)
	if err != nil {
		return err
	}

	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	for _, id := range ids {
		if err := c.binding.On(c.ctx, event.ConversationTopic(id), channel.AnyKind, c.deliver); err != nil {
			return err
		}
	}
	return nil
}

// deliver runs on the router's goroutine for the topic. The actor's own
// sockets never get the echo of their write.
func (c *conn) deliver(env event.Envelope, ev event.Event) {
	if changed, ok := ev.(event.ConversationChanged); ok && env.Topic == event.UserTopic(c.userID) {
		c.syncMembership(changed.ConversationID)
	}

	if env.ActorID != 0 && env.ActorID == c.userID {
		return
	}

	c.send(event.Frame{Op: event.OpEvent, Topic: env.Topic, Envelope: &env})
}

// syncMembership joins or leaves a conversation topic after the user was
// added to, removed from, or left a conversation.
func (c *conn) syncMembership(conversationID uint) {
	topic := event.ConversationTopic(conversationID)

	member, err := c.g.members.IsMember(c.ctx, conversationID, c.userID)
	if err != nil {
		c.g.logger.Warn("failed to check membership", "conn", c.id, "topic", topic, "err", err)
		return
	}

	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()

	switch {
	case member && !c.binding.Has(topic):
		if err := c.binding.On(c.ctx, topic, channel.AnyKind, c.deliver); err != nil {
			c.g.logger.Warn("failed to join topic", "conn", c.id, "topic", topic, "err", err)
		}
	case !member && c.binding.Has(topic):
		c.binding.Leave(topic)
	}
}

// send never blocks. A socket too slow to drain its buffer misses frames
// and catches up through the REST endpoints.
func (c *conn) send(f event.Frame) {
	select {
	case <-c.ctx.Done():
	case c.egress <- f:
	default:
		c.g.logger.Warn("egress full, dropping frame", "conn", c.id, "op", f.Op, "topic", f.Topic)
	}
}

func (c *conn) subscribe(topic string) error {
	if topic == event.UserTopic(c.userID) {
		return nil
	}

	conversationID, ok := event.ParseConversationTopic(topic)
	if !ok {
		return errUnknownTopic
	}

	member, err := c.g.members.IsMember(c.ctx, conversationID, c.userID)
	if err != nil {
		return err
	}
	if !member {
		return errNotMember
	}

	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	if c.binding.Has(topic) {
		return nil
	}
	return c.binding.On(c.ctx, topic, channel.AnyKind, c.deliver)
}

func (c *conn) unsubscribe(topic string) {
	if topic == event.UserTopic(c.userID) {
		return
	}

	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	c.binding.Leave(topic)
}

func (c *conn) handle(raw []byte) {
	var f event.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.send(event.Frame{Op: event.OpError, Error: errBadFrame.Error()})
		return
	}

	switch f.Op {
	case event.OpSubscribe:
		if err := c.subscribe(f.Topic); err != nil {
			c.send(event.Frame{Op: event.OpError, Topic: f.Topic, Error: err.Error()})
			return
		}
		c.send(event.Frame{Op: event.OpSubscribed, Topic: f.Topic})
	case event.OpUnsubscribe:
		c.unsubscribe(f.Topic)
	default:
		c.send(event.Frame{Op: event.OpError, Topic: f.Topic, Error: errUnknownOp.Error()})
	}
}

func (c *conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.g.presence.Touch(c.ctx, c.userID); err != nil {
			c.g.logger.Warn("failed to record heartbeat", "conn", c.id, "err", err)
		}
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.g.logger.Warn("unexpected close", "conn", c.id, "err", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case f := <-c.egress:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		c.cancel()
		c.binding.Close()
		c.g.remove(c)

		if err := c.g.presence.Disconnect(context.Background(), c.userID); err != nil {
			c.g.logger.Warn("failed to release presence", "conn", c.id, "err", err)
		}
		_ = c.ws.Close()

		c.g.logger.Info("websocket closed", "conn", c.id, "userID", c.userID)
	})
}
