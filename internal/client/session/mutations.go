package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/syncer"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

var errNoPeer = errors.New("session: private conversation without peer")

// SendMessage shows the message at once under a temporary id and swaps in
// the stored message when the server confirms it.
func (s *Session) SendMessage(ctx context.Context, conversation dto.ConversationResponse, content dto.MessageContent) (*dto.MessageResponse, error) {
	if !conversation.IsGroup && conversation.Peer == nil {
		return nil, errNoPeer
	}

	now := time.Now().UTC()
	placeholder := dto.MessageResponse{
		ConversationID:  conversation.ID,
		SenderID:        s.UserID,
		Type:            content.Type,
		Content:         content.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
		Reactions:       []dto.ReactionResponse{},
		SeenByMemberIDs: []uint{},
	}
	if content.Image != nil {
		image := *content.Image
		placeholder.Image = &image
	}

	msg, err := s.Messages.Mutate(ctx, syncer.Mutation[dto.MessageResponse]{
		Keys:  []syncer.Key{MessagesKey(conversation.ID, 1)},
		Apply: syncer.Placeholder(placeholder),
		Do: func(ctx context.Context) (dto.MessageResponse, error) {
			var (
				resp *dto.MessageResponse
				err  error
			)
			if conversation.IsGroup {
				resp, err = s.API.SendGroupMessage(ctx, conversation.ID, content)
			} else {
				resp, err = s.API.SendPrivateMessage(ctx, conversation.Peer.ID, content)
			}
			if err != nil {
				return dto.MessageResponse{}, err
			}
			return *resp, nil
		},
		Invalidate: []string{MessagesQuery(conversation.ID)},
	})
	if err != nil {
		return nil, err
	}

	s.touchConversation(msg, false)
	return &msg, nil
}

func (s *Session) EditMessage(ctx context.Context, conversationID, messageID uint, content string) (*dto.MessageResponse, error) {
	msg, err := s.Messages.Mutate(ctx, syncer.Mutation[dto.MessageResponse]{
		Keys: s.Messages.Keys(MessagesQuery(conversationID)),
		Apply: syncer.PatchItem(syncer.UintID(messageID), func(m dto.MessageResponse) dto.MessageResponse {
			m.Content = content
			m.IsEdited = true
			return m
		}),
		Do: func(ctx context.Context) (dto.MessageResponse, error) {
			resp, err := s.API.EditMessage(ctx, messageID, content)
			if err != nil {
				return dto.MessageResponse{}, err
			}
			return *resp, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes the message from the view, or turns it into a
// tombstone when deleting for everyone, and restores it if the server
// refuses.
func (s *Session) DeleteMessage(ctx context.Context, conversationID, messageID uint, forEveryone bool) error {
	query := MessagesQuery(conversationID)
	id := syncer.UintID(messageID)

	rb := s.Messages.Begin(s.Messages.Keys(query)...)
	if forEveryone {
		now := time.Now().UTC()
		s.Messages.Patch(query, id, func(m dto.MessageResponse) dto.MessageResponse {
			m.Content = ""
			m.Image = nil
			m.IsEdited = false
			m.DeletedAt = &now
			m.DeletedForEveryone = true
			m.Reactions = nil
			return m
		})
	} else {
		s.Messages.Remove(query, id)
	}
	rb.Applied()

	if err := s.API.DeleteMessage(ctx, messageID, forEveryone); err != nil {
		reload(ctx, s.Messages, rb.Restore(), s.logger)
		return err
	}
	rb.Release()
	return nil
}

// ToggleReaction shows the caller's reaction change at once. Reacting
// with the current type removes it, any other type replaces it.
func (s *Session) ToggleReaction(ctx context.Context, conversationID, messageID uint, reactionType string) (*dto.ToggleReactionResponse, error) {
	id := syncer.UintID(messageID)

	var resp *dto.ToggleReactionResponse
	_, err := s.Messages.Mutate(ctx, syncer.Mutation[dto.MessageResponse]{
		Keys: s.Messages.Keys(MessagesQuery(conversationID)),
		Apply: syncer.PatchItem(id, func(m dto.MessageResponse) dto.MessageResponse {
			var reaction *dto.ReactionResponse
			if !hasReaction(m.Reactions, s.UserID, reactionType) {
				reaction = &dto.ReactionResponse{UserID: s.UserID, Type: reactionType, Glyph: dto.ReactionGlyphs[reactionType]}
			}
			m.Reactions = withReaction(m.Reactions, s.UserID, reaction)
			return m
		}),
		Do: func(ctx context.Context) (dto.MessageResponse, error) {
			var err error
			resp, err = s.API.ToggleReaction(ctx, messageID, reactionType)
			return dto.MessageResponse{}, err
		},
		Reconcile: func(p syncer.Page[dto.MessageResponse], tempID string, _ dto.MessageResponse) syncer.Page[dto.MessageResponse] {
			var reaction *dto.ReactionResponse
			if resp.Action != dto.ReactionRemoved && resp.Reaction != nil {
				r := *resp.Reaction
				reaction = &r
			}
			return syncer.PatchItem(id, func(m dto.MessageResponse) dto.MessageResponse {
				m.Reactions = withReaction(m.Reactions, s.UserID, reaction)
				return m
			})(p, tempID)
		},
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Session) ToggleStar(ctx context.Context, conversationID, messageID uint) (*dto.ToggleStarResponse, error) {
	id := syncer.UintID(messageID)

	var resp *dto.ToggleStarResponse
	_, err := s.Messages.Mutate(ctx, syncer.Mutation[dto.MessageResponse]{
		Keys: s.Messages.Keys(MessagesQuery(conversationID)),
		Apply: syncer.PatchItem(id, func(m dto.MessageResponse) dto.MessageResponse {
			m.Starred = !m.Starred
			return m
		}),
		Do: func(ctx context.Context) (dto.MessageResponse, error) {
			var err error
			resp, err = s.API.ToggleStar(ctx, messageID)
			return dto.MessageResponse{}, err
		},
		Reconcile: func(p syncer.Page[dto.MessageResponse], tempID string, _ dto.MessageResponse) syncer.Page[dto.MessageResponse] {
			return syncer.PatchItem(id, func(m dto.MessageResponse) dto.MessageResponse {
				m.Starred = resp.Starred
				return m
			})(p, tempID)
		},
		Invalidate: []string{StarredQuery},
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// MarkSeen records the messages as seen and applies the resulting seen-by
// lists. The unread counts come from the server.
func (s *Session) MarkSeen(ctx context.Context, conversationID uint, messageIDs []uint) error {
	resp, err := s.API.MarkSeen(ctx, messageIDs)
	if err != nil {
		return err
	}

	for _, seen := range resp.Seen {
		seenBy := seen.SeenByMemberIDs
		s.Messages.Patch(MessagesQuery(conversationID), syncer.UintID(seen.MessageID), func(m dto.MessageResponse) dto.MessageResponse {
			m.SeenByMemberIDs = seenBy
			return m
		})
	}
	if err := s.Conversations.Refetch(ctx, ConversationsQuery); err != nil {
		s.logger.Warn("failed to reload conversations", "err", err)
	}
	return nil
}

// HideConversation drops the conversation from the list right away. It
// comes back when a newer message arrives.
func (s *Session) HideConversation(ctx context.Context, conversationID uint) error {
	rb := s.Conversations.Begin(s.Conversations.Keys(ConversationsQuery)...)
	s.Conversations.Remove(ConversationsQuery, syncer.UintID(conversationID))
	rb.Applied()

	if err := s.API.Hide(ctx, conversationID); err != nil {
		reload(ctx, s.Conversations, rb.Restore(), s.logger)
		return err
	}
	rb.Release()
	return nil
}

func (s *Session) SendFriendRequest(ctx context.Context, receiverID uint) (*dto.FriendRequestResponse, error) {
	now := time.Now().UTC()
	placeholder := dto.FriendRequestResponse{
		Sender:    dto.SimpleUser{ID: s.UserID},
		Receiver:  dto.SimpleUser{ID: receiverID},
		Status:    "pending",
		Direction: dto.RequestTypeOutgoing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	req, err := s.FriendRequests.Mutate(ctx, syncer.Mutation[dto.FriendRequestResponse]{
		Keys:  []syncer.Key{{Query: FriendRequestsQuery, Page: 1}},
		Apply: syncer.Placeholder(placeholder),
		Do: func(ctx context.Context) (dto.FriendRequestResponse, error) {
			resp, err := s.API.SendFriendRequest(ctx, receiverID)
			if err != nil {
				return dto.FriendRequestResponse{}, err
			}
			return *resp, nil
		},
		Invalidate: []string{FriendRequestsQuery},
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// AcceptFriendRequest marks the request accepted in place, then reloads
// the requests and the friend list, since accepting can settle a request
// in the other direction too.
func (s *Session) AcceptFriendRequest(ctx context.Context, requestID uint) (*dto.FriendRequestResponse, error) {
	req, err := s.FriendRequests.Mutate(ctx, syncer.Mutation[dto.FriendRequestResponse]{
		Keys: s.FriendRequests.Keys(FriendRequestsQuery),
		Apply: syncer.PatchItem(syncer.UintID(requestID), func(r dto.FriendRequestResponse) dto.FriendRequestResponse {
			r.Status = "accepted"
			return r
		}),
		Do: func(ctx context.Context) (dto.FriendRequestResponse, error) {
			resp, err := s.API.AcceptFriendRequest(ctx, requestID)
			if err != nil {
				return dto.FriendRequestResponse{}, err
			}
			return *resp, nil
		},
		Invalidate: []string{FriendRequestsQuery},
	})
	if err != nil {
		return nil, err
	}

	if err := s.Friends.Refetch(ctx, FriendsQuery); err != nil {
		s.logger.Warn("failed to reload friends", "err", err)
	}
	return &req, nil
}

func (s *Session) RejectFriendRequest(ctx context.Context, requestID uint) (*dto.FriendRequestResponse, error) {
	req, err := s.FriendRequests.Mutate(ctx, syncer.Mutation[dto.FriendRequestResponse]{
		Keys: s.FriendRequests.Keys(FriendRequestsQuery),
		Apply: syncer.PatchItem(syncer.UintID(requestID), func(r dto.FriendRequestResponse) dto.FriendRequestResponse {
			r.Status = "rejected"
			return r
		}),
		Do: func(ctx context.Context) (dto.FriendRequestResponse, error) {
			resp, err := s.API.RejectFriendRequest(ctx, requestID)
			if err != nil {
				return dto.FriendRequestResponse{}, err
			}
			return *resp, nil
		},
		Invalidate: []string{FriendRequestsQuery},
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Unfriend drops the friend from the list right away.
func (s *Session) Unfriend(ctx context.Context, userID uint) error {
	return s.dropFriend(ctx, userID, s.API.Unfriend)
}

// Block drops the friend like Unfriend and reloads the requests, since a
// block also settles pending requests between the two users.
func (s *Session) Block(ctx context.Context, userID uint) error {
	if err := s.dropFriend(ctx, userID, s.API.Block); err != nil {
		return err
	}
	if err := s.FriendRequests.Refetch(ctx, FriendRequestsQuery); err != nil {
		s.logger.Warn("failed to reload friend requests", "err", err)
	}
	return nil
}

func (s *Session) dropFriend(ctx context.Context, userID uint, do func(context.Context, uint) error) error {
	rb := s.Friends.Begin(s.Friends.Keys(FriendsQuery)...)
	s.Friends.Remove(FriendsQuery, syncer.UintID(userID))
	rb.Applied()

	if err := do(ctx, userID); err != nil {
		reload(ctx, s.Friends, rb.Restore(), s.logger)
		return err
	}
	rb.Release()

	if err := s.Friends.Refetch(ctx, FriendsQuery); err != nil {
		s.logger.Warn("failed to reload friends", "err", err)
	}
	return nil
}

// ClearConversation empties the cached history and the list summary.
// Unlike hiding, new messages do not bring the old ones back.
func (s *Session) ClearConversation(ctx context.Context, conversationID uint) error {
	messageKeys := s.Messages.Keys(MessagesQuery(conversationID))
	messagesRB := s.Messages.Begin(messageKeys...)
	conversationsRB := s.Conversations.Begin(s.Conversations.Keys(ConversationsQuery)...)

	for _, key := range messageKeys {
		s.Messages.Set(key, &dto.Page[dto.MessageResponse]{
			Items:      []dto.MessageResponse{},
			Pagination: dto.Pagination{Page: key.Page},
		})
	}
	s.Conversations.Patch(ConversationsQuery, syncer.UintID(conversationID), func(c dto.ConversationResponse) dto.ConversationResponse {
		c.LastMessage = nil
		c.UnreadCount = 0
		return c
	})
	messagesRB.Applied()
	conversationsRB.Applied()

	if err := s.API.Clear(ctx, conversationID); err != nil {
		reload(ctx, s.Messages, messagesRB.Restore(), s.logger)
		reload(ctx, s.Conversations, conversationsRB.Restore(), s.logger)
		return err
	}
	messagesRB.Release()
	conversationsRB.Release()

	if err := s.Messages.Refetch(ctx, MessagesQuery(conversationID)); err != nil {
		s.logger.Warn("failed to reload messages", "conversationID", conversationID, "err", err)
	}
	return nil
}

// reload fetches keys a rollback could not settle on its own.
func reload[T any](ctx context.Context, c *syncer.Cache[T], keys []syncer.Key, logger *slog.Logger) {
	for _, key := range keys {
		if _, err := c.Load(ctx, key); err != nil && !errors.Is(err, syncer.ErrSuperseded) {
			logger.Warn("failed to reload after rollback", "key", key.String(), "err", err)
		}
	}
}
