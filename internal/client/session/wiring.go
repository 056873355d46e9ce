package session

import (
	"context"
	"slices"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/api"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/syncer"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// wire follows the user's own topic and every listed conversation.
// Conversations hidden at this point are picked up by a later reload.
func (s *Session) wire(ctx context.Context) error {
	topic := event.UserTopic(s.UserID)

	handlers := []struct {
		kind    event.Kind
		handler event.Handler
	}{
		{event.KindOnline, event.Typed(s.onPresence)},
		{event.KindOffline, event.Typed(s.onPresence)},
		{event.KindBlockFriend, event.Typed(s.onFriendChanged)},
		{event.KindDeleteFriend, event.Typed(s.onFriendChanged)},
		{event.KindIncomingFriendRequest, event.Typed(s.onFriendRequest)},
		{event.KindAcceptFriendRequest, event.Typed(s.onFriendRequest)},
		{event.KindRejectFriendRequest, event.Typed(s.onFriendRequest)},
		{event.KindDeleteFriendRequest, event.Typed(s.onFriendRequest)},
		{event.KindConversationNew, event.Typed(s.onConversation)},
		{event.KindConversationUpdated, event.Typed(s.onConversation)},
	}
	for _, h := range handlers {
		if err := s.binding.On(ctx, topic, h.kind, h.handler); err != nil {
			return err
		}
	}

	return s.followAll(ctx)
}

func (s *Session) followAll(ctx context.Context) error {
	q := dto.ConversationListQuery{PageQuery: dto.PageQuery{Page: 1}}
	for {
		page, err := s.API.ListConversations(ctx, q)
		if err != nil {
			return err
		}
		for _, c := range page.Items {
			if err := s.follow(ctx, c.ID); err != nil {
				return err
			}
		}
		if !page.Pagination.HasNextPage {
			return nil
		}
		q.Page++
	}
}

// Following reports whether the session listens to a conversation.
func (s *Session) Following(conversationID uint) bool {
	return s.binding.Has(event.ConversationTopic(conversationID))
}

func (s *Session) follow(ctx context.Context, conversationID uint) error {
	topic := event.ConversationTopic(conversationID)

	s.followMu.Lock()
	defer s.followMu.Unlock()
	if s.binding.Has(topic) {
		return nil
	}

	kinds := map[event.Kind]event.Handler{
		event.KindNewMessage:     event.Typed(s.onNewMessage),
		event.KindUpdateMessage:  event.Typed(s.onUpdateMessage),
		event.KindSeenMessage:    event.Typed(s.onSeen),
		event.KindCreateReaction: event.Typed(s.onReaction),
		event.KindUpdateReaction: event.Typed(s.onReaction),
		event.KindRemoveReaction: event.Typed(s.onReaction),
	}
	for kind, handler := range kinds {
		if err := s.binding.On(ctx, topic, kind, handler); err != nil {
			s.binding.Leave(topic)
			return err
		}
	}
	return nil
}

func (s *Session) unfollow(conversationID uint) {
	s.followMu.Lock()
	defer s.followMu.Unlock()
	s.binding.Leave(event.ConversationTopic(conversationID))
}

func (s *Session) onPresence(_ event.Envelope, ev event.Presence) {
	s.Friends.Patch(FriendsQuery, syncer.UintID(ev.UserID), func(f dto.FriendResponse) dto.FriendResponse {
		f.Online = ev.Online
		return f
	})
}

func (s *Session) onFriendChanged(_ event.Envelope, ev event.FriendChanged) {
	s.Friends.Remove(FriendsQuery, syncer.UintID(ev.UserID))
}

func (s *Session) onFriendRequest(_ event.Envelope, ev event.FriendRequestChanged) {
	if err := s.FriendRequests.Refetch(s.ctx, FriendRequestsQuery); err != nil {
		s.logger.Warn("failed to reload friend requests", "err", err)
	}
	if ev.Change == event.KindAcceptFriendRequest {
		if err := s.Friends.Refetch(s.ctx, FriendsQuery); err != nil {
			s.logger.Warn("failed to reload friends", "err", err)
		}
	}
}

// onConversation follows conversations the user was added to and drops
// the ones the user no longer belongs to.
func (s *Session) onConversation(_ event.Envelope, ev event.ConversationChanged) {
	member := ev.Created
	if !member {
		_, err := s.API.Overview(s.ctx, ev.ConversationID)
		switch {
		case err == nil:
			member = true
		case api.HasCode(err, string(chatError.KindNotFound)), api.HasCode(err, string(chatError.KindNotGroupMember)):
			s.unfollow(ev.ConversationID)
			s.Messages.Evict(MessagesQuery(ev.ConversationID))
		default:
			s.logger.Warn("failed to load conversation", "conversationID", ev.ConversationID, "err", err)
		}
	}
	if member {
		if err := s.follow(s.ctx, ev.ConversationID); err != nil {
			s.logger.Warn("failed to follow conversation", "conversationID", ev.ConversationID, "err", err)
		}
	}

	if err := s.Conversations.Refetch(s.ctx, ConversationsQuery); err != nil {
		s.logger.Warn("failed to reload conversations", "err", err)
	}
}

func (s *Session) onNewMessage(_ event.Envelope, ev event.MessagePayload) {
	msg := messageFromEvent(ev)
	s.Messages.Merge(MessagesKey(ev.ConversationID, 1), msg)
	s.touchConversation(msg, msg.SenderID != s.UserID)
}

func (s *Session) onUpdateMessage(_ event.Envelope, ev event.MessagePayload) {
	updated := messageFromEvent(ev)
	s.Messages.Patch(MessagesQuery(ev.ConversationID), syncer.UintID(ev.ID), func(m dto.MessageResponse) dto.MessageResponse {
		m.Content = updated.Content
		m.Image = updated.Image
		m.UpdatedAt = updated.UpdatedAt
		m.IsEdited = updated.IsEdited
		m.DeletedAt = updated.DeletedAt
		m.DeletedForEveryone = updated.DeletedForEveryone
		if m.DeletedForEveryone {
			m.Reactions = nil
		}
		return m
	})
}

func (s *Session) onSeen(_ event.Envelope, ev event.MessagesSeen) {
	for _, d := range ev.Deltas {
		seenBy := slices.Clone(d.SeenByMemberIDs)
		s.Messages.Patch(MessagesQuery(ev.ConversationID), syncer.UintID(d.MessageID), func(m dto.MessageResponse) dto.MessageResponse {
			m.SeenByMemberIDs = seenBy
			return m
		})
	}
}

func (s *Session) onReaction(env event.Envelope, ev event.ReactionChanged) {
	conversationID, ok := event.ParseConversationTopic(env.Topic)
	if !ok {
		return
	}

	var reaction *dto.ReactionResponse
	if ev.Change != event.KindRemoveReaction {
		reaction = &dto.ReactionResponse{UserID: ev.UserID, Type: ev.Type, Glyph: ev.Glyph}
	}
	s.Messages.Patch(MessagesQuery(conversationID), syncer.UintID(ev.MessageID), func(m dto.MessageResponse) dto.MessageResponse {
		m.Reactions = withReaction(m.Reactions, ev.UserID, reaction)
		return m
	})
}

// touchConversation moves a message into its conversation's summary, or
// reloads the list when the conversation is not cached, for example
// because a hidden conversation just came back.
func (s *Session) touchConversation(msg dto.MessageResponse, unread bool) {
	id := syncer.UintID(msg.ConversationID)
	if _, ok := s.Conversations.Find(ConversationsQuery, id); !ok {
		if err := s.Conversations.Refetch(s.ctx, ConversationsQuery); err != nil {
			s.logger.Warn("failed to reload conversations", "err", err)
		}
		return
	}

	s.Conversations.Patch(ConversationsQuery, id, func(c dto.ConversationResponse) dto.ConversationResponse {
		last := msg
		c.LastMessage = &last
		if unread {
			c.UnreadCount++
		}
		return c
	})
}

// withReaction replaces the user's reaction, or removes it when reaction
// is nil. Each user has at most one reaction per message.
func withReaction(reactions []dto.ReactionResponse, userID uint, reaction *dto.ReactionResponse) []dto.ReactionResponse {
	out := make([]dto.ReactionResponse, 0, len(reactions)+1)
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	if reaction != nil {
		out = append(out, *reaction)
	}
	return out
}

func messageFromEvent(ev event.MessagePayload) dto.MessageResponse {
	msg := dto.MessageResponse{
		ID:                 ev.ID,
		ConversationID:     ev.ConversationID,
		SenderID:           ev.SenderID,
		Type:               ev.Type,
		Content:            ev.Content,
		CreatedAt:          ev.CreatedAt,
		UpdatedAt:          ev.UpdatedAt,
		IsEdited:           !ev.DeletedForEveryone && !ev.UpdatedAt.Equal(ev.CreatedAt),
		DeletedAt:          ev.DeletedAt,
		DeletedForEveryone: ev.DeletedForEveryone,
		Reactions:          []dto.ReactionResponse{},
		SeenByMemberIDs:    []uint{},
	}
	if ev.Image != nil {
		msg.Image = &dto.FileDescriptor{
			ID:     ev.Image.FileID,
			URL:    ev.Image.URL,
			Size:   ev.Image.Size,
			Width:  ev.Image.Width,
			Height: ev.Image.Height,
		}
	}
	return msg
}

func hasReaction(reactions []dto.ReactionResponse, userID uint, reactionType string) bool {
	return slices.ContainsFunc(reactions, func(r dto.ReactionResponse) bool {
		return r.UserID == userID && r.Type == reactionType
	})
}
