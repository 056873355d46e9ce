// Package session is one signed-in client: its identity, REST client,
// gateway connection, event router and query caches. Everything a view
// needs hangs off a Session value; there is no process-wide store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/channel"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/api"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/syncer"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/wsconn"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

const (
	ConversationsQuery  = "conversations"
	FriendsQuery        = "friends"
	FriendRequestsQuery = "friend-requests"
	StarredQuery        = "starred"

	messagesQueryPrefix = "messages/"
)

func MessagesQuery(conversationID uint) string {
	return messagesQueryPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

func MessagesKey(conversationID uint, page int) syncer.Key {
	return syncer.Key{Query: MessagesQuery(conversationID), Page: page}
}

func parseMessagesQuery(query string) (uint, bool) {
	raw, ok := strings.CutPrefix(query, messagesQueryPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

type Config struct {
	// APIURL is the REST root, for example http://localhost:3003/api.
	APIURL string
	// WSURL is the gateway, for example ws://localhost:3003/api/ws.
	WSURL string
	Token string
	// RetryDelay is the pause between reconnect attempts.
	RetryDelay time.Duration
}

type Session struct {
	UserID uint

	API    *api.Client
	Conn   *wsconn.Conn
	Router *channel.Router

	Messages       *syncer.Cache[dto.MessageResponse]
	Conversations  *syncer.Cache[dto.ConversationResponse]
	Friends        *syncer.Cache[dto.FriendResponse]
	FriendRequests *syncer.Cache[dto.FriendRequestResponse]

	binding    *channel.Binding
	followMu   sync.Mutex
	retryDelay time.Duration
	logger     *slog.Logger

	// ctx bounds the fetches event handlers start.
	ctx    context.Context
	cancel context.CancelFunc
}

// Open signs in with cfg.Token, connects to the gateway and starts
// following the user's topics.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	client := api.New(cfg.APIURL, cfg.Token)

	me, err := client.Me(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := wsconn.Dial(ctx, cfg.WSURL, cfg.Token, logger)
	if err != nil {
		return nil, err
	}

	s := newSession(me.ID, client, conn, logger)
	if cfg.RetryDelay > 0 {
		s.retryDelay = cfg.RetryDelay
	}

	if err := s.wire(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(userID uint, client *api.Client, conn *wsconn.Conn, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	router := channel.NewRouter(conn, logger)

	s := &Session{
		UserID:         userID,
		API:            client,
		Conn:           conn,
		Router:         router,
		Messages:       syncer.New(func(m dto.MessageResponse) string { return syncer.UintID(m.ID) }, logger),
		Conversations:  syncer.New(func(c dto.ConversationResponse) string { return syncer.UintID(c.ID) }, logger),
		Friends:        syncer.New(func(f dto.FriendResponse) string { return syncer.UintID(f.ID) }, logger),
		FriendRequests: syncer.New(func(r dto.FriendRequestResponse) string { return syncer.UintID(r.ID) }, logger),
		binding:        router.Bind(),
		retryDelay:     2 * time.Second,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
	s.registerFetchers()
	return s
}

func (s *Session) registerFetchers() {
	s.Messages.Register(messagesQueryPrefix, func(ctx context.Context, key syncer.Key) (*dto.Page[dto.MessageResponse], error) {
		conversationID, ok := parseMessagesQuery(key.Query)
		if !ok {
			return nil, errors.New("session: bad messages query " + key.Query)
		}
		return s.API.ListMessages(ctx, conversationID, dto.PageQuery{Page: key.Page})
	})
	s.Messages.Register(StarredQuery, func(ctx context.Context, key syncer.Key) (*dto.Page[dto.MessageResponse], error) {
		return s.API.ListStarred(ctx, dto.PageQuery{Page: key.Page})
	})
	s.Conversations.Register(ConversationsQuery, func(ctx context.Context, key syncer.Key) (*dto.Page[dto.ConversationResponse], error) {
		return s.API.ListConversations(ctx, dto.ConversationListQuery{PageQuery: dto.PageQuery{Page: key.Page}})
	})
	s.Friends.Register(FriendsQuery, func(ctx context.Context, key syncer.Key) (*dto.Page[dto.FriendResponse], error) {
		return s.API.ListFriends(ctx, dto.FriendListQuery{PageQuery: dto.PageQuery{Page: key.Page}})
	})
	s.FriendRequests.Register(FriendRequestsQuery, func(ctx context.Context, key syncer.Key) (*dto.Page[dto.FriendRequestResponse], error) {
		return s.API.ListFriendRequests(ctx, dto.FriendRequestListQuery{
			PageQuery: dto.PageQuery{Page: key.Page},
			Type:      dto.RequestTypeAll,
		})
	})
}

// Run keeps the gateway connection up until ctx ends or the session is
// closed. After a reconnect every cached query is reloaded, since events
// sent while disconnected are not replayed.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case <-s.Conn.Done():
		}

		s.logger.Info("gateway disconnected, reconnecting", "userID", s.UserID)
		if err := s.reconnect(ctx); err != nil {
			return err
		}

		if err := s.Router.Resubscribe(ctx); err != nil {
			s.logger.Warn("failed to resubscribe", "err", err)
		}
		if err := s.followAll(ctx); err != nil {
			s.logger.Warn("failed to follow conversations", "err", err)
		}
		if err := s.Resync(ctx); err != nil {
			s.logger.Warn("failed to resync", "err", err)
		}
	}
}

func (s *Session) reconnect(ctx context.Context) error {
	for {
		err := s.Conn.Reconnect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, broker.ErrClosed) {
			return nil
		}
		s.logger.Warn("reconnect failed", "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case <-time.After(s.retryDelay):
		}
	}
}

// Resync reloads every cached page.
func (s *Session) Resync(ctx context.Context) error {
	return errors.Join(
		s.Conversations.Refetch(ctx, ""),
		s.Messages.Refetch(ctx, ""),
		s.Friends.Refetch(ctx, ""),
		s.FriendRequests.Refetch(ctx, ""),
	)
}

func (s *Session) Close() {
	s.cancel()
	s.binding.Close()
	s.Router.Close()
	_ = s.Conn.Close()
}
