// Package gateway serves the WebSocket endpoint. Every connection owns a
// channel.Binding on one shared Router, so a topic keeps a single broker
// subscription however many sockets listen to it.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/channel"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
)

var (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = int64(4 * 1024)
	sendBufSize    = 256
)

// Presence is told about every socket that opens or closes, and about
// every pong as a heartbeat.
type Presence interface {
	Connect(ctx context.Context, userID uint) error
	Disconnect(ctx context.Context, userID uint) error
	Touch(ctx context.Context, userID uint) error
}

// Membership decides which conversation topics a user may listen to.
type Membership interface {
	ConversationIDsOf(ctx context.Context, userID uint) ([]uint, error)
	IsMember(ctx context.Context, conversationID, userID uint) (bool, error)
}

type Gateway struct {
	router   *channel.Router
	presence Presence
	members  Membership
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func New(dep *dependency.Dependency, presence Presence, members Membership) *Gateway {
	frontendURL := dep.Cfg.FrontendUrl
	releaseMode := dep.Cfg.GinMode == gin.ReleaseMode

	return &Gateway{
		router:   channel.NewRouter(dep.Broker, dep.Logger),
		presence: presence,
		members:  members,
		logger:   dep.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == frontendURL || !releaseMode
			},
		},
		conns: make(map[*conn]struct{}),
	}
}

// Handler upgrades the request. It must run behind middleware.Auth.
func (g *Gateway) Handler(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		g.logger.Warn("websocket upgrade failed", "userID", userID, "err", err)
		return
	}

	g.serve(userID, ws)
}

func (g *Gateway) serve(userID uint, ws *websocket.Conn) {
	c := newConn(g, userID, ws)

	if err := g.presence.Connect(c.ctx, userID); err != nil {
		g.logger.Error("failed to register presence", "userID", userID, "err", err)
		c.cancel()
		_ = ws.Close()
		return
	}

	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()

	if err := c.joinInitial(); err != nil {
		g.logger.Error("failed to join topics", "userID", userID, "err", err)
		c.close()
		return
	}

	g.logger.Info("websocket connected", "conn", c.id, "userID", userID)

	go c.writePump()
	go c.readPump()
}

func (g *Gateway) remove(c *conn) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

// ConnCount is the number of open sockets.
func (g *Gateway) ConnCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Close drops every connection and the router's broker subscriptions.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := make([]*conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	g.router.Close()
}
