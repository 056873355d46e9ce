package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

// Users

func (c *Client) Me(ctx context.Context) (*dto.UserProfileResponse, error) {
	var out dto.UserProfileResponse
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMe(ctx context.Context, req *dto.UpdateProfileRequest) (*dto.UserProfileResponse, error) {
	var out dto.UserProfileResponse
	if err := c.do(ctx, http.MethodPut, "/users/me", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/users/me/heartbeat", nil, nil, nil)
}

// Relationships

func (c *Client) ListFriends(ctx context.Context, q dto.FriendListQuery) (*dto.Page[dto.FriendResponse], error) {
	v := pageValues(q.PageQuery)
	setBool(v, "is_online", q.IsOnline)
	setBool(v, "is_recent", q.IsRecent)
	if q.Query != "" {
		v.Set("query", q.Query)
	}

	var out dto.Page[dto.FriendResponse]
	if err := c.do(ctx, http.MethodGet, "/friends", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Unfriend(ctx context.Context, userID uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/friends/%d", userID), nil, nil, nil)
}

func (c *Client) ListFriendRequests(ctx context.Context, q dto.FriendRequestListQuery) (*dto.Page[dto.FriendRequestResponse], error) {
	v := pageValues(q.PageQuery)
	if q.Type != "" {
		v.Set("type", q.Type)
	}

	var out dto.Page[dto.FriendRequestResponse]
	if err := c.do(ctx, http.MethodGet, "/friend-requests", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendFriendRequest(ctx context.Context, receiverID uint) (*dto.FriendRequestResponse, error) {
	var out dto.FriendRequestResponse
	req := dto.SendFriendRequestRequest{ReceiverID: receiverID}
	if err := c.do(ctx, http.MethodPost, "/friend-requests", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) resolveFriendRequest(ctx context.Context, path string) (*dto.FriendRequestResponse, error) {
	var out dto.FriendRequestResponse
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID uint) (*dto.FriendRequestResponse, error) {
	return c.resolveFriendRequest(ctx, idPath("/friend-requests/%d/accept", requestID))
}

func (c *Client) RejectFriendRequest(ctx context.Context, requestID uint) (*dto.FriendRequestResponse, error) {
	return c.resolveFriendRequest(ctx, idPath("/friend-requests/%d/reject", requestID))
}

func (c *Client) CancelFriendRequest(ctx context.Context, requestID uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/friend-requests/%d", requestID), nil, nil, nil)
}

func (c *Client) ListBlocked(ctx context.Context, q dto.PageQuery) (*dto.Page[dto.BlockedUserResponse], error) {
	var out dto.Page[dto.BlockedUserResponse]
	if err := c.do(ctx, http.MethodGet, "/blocks", pageValues(q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Block(ctx context.Context, userID uint) error {
	return c.do(ctx, http.MethodPost, "/blocks", nil, dto.BlockUserRequest{UserID: userID}, nil)
}

func (c *Client) Unblock(ctx context.Context, userID uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/blocks/%d", userID), nil, nil, nil)
}

// Conversations

func (c *Client) ListConversations(ctx context.Context, q dto.ConversationListQuery) (*dto.Page[dto.ConversationResponse], error) {
	v := pageValues(q.PageQuery)
	setBool(v, "group_only", q.GroupOnly)
	setBool(v, "include_unread_only", q.IncludeUnreadOnly)

	var out dto.Page[dto.ConversationResponse]
	if err := c.do(ctx, http.MethodGet, "/conversations", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OpenPrivate(ctx context.Context, userID uint) (*dto.ConversationOverviewResponse, error) {
	var out dto.ConversationOverviewResponse
	req := dto.CreatePrivateConversationRequest{UserID: userID}
	if err := c.do(ctx, http.MethodPost, "/conversations/private", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGroup(ctx context.Context, req *dto.CreateGroupRequest) (*dto.ConversationOverviewResponse, error) {
	var out dto.ConversationOverviewResponse
	if err := c.do(ctx, http.MethodPost, "/conversations/groups", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Overview(ctx context.Context, conversationID uint) (*dto.ConversationOverviewResponse, error) {
	var out dto.ConversationOverviewResponse
	if err := c.do(ctx, http.MethodGet, idPath("/conversations/%d", conversationID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateGroup(ctx context.Context, conversationID uint, req *dto.UpdateGroupRequest) (*dto.ConversationOverviewResponse, error) {
	var out dto.ConversationOverviewResponse
	if err := c.do(ctx, http.MethodPatch, idPath("/conversations/%d", conversationID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddMembers(ctx context.Context, conversationID uint, memberIDs []uint) (*dto.ConversationOverviewResponse, error) {
	var out dto.ConversationOverviewResponse
	req := dto.AddMembersRequest{MemberIDs: memberIDs}
	if err := c.do(ctx, http.MethodPost, idPath("/conversations/%d/members", conversationID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveMember(ctx context.Context, conversationID, userID uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/conversations/%d/members/%d", conversationID, userID), nil, nil, nil)
}

func (c *Client) Hide(ctx context.Context, conversationID uint) error {
	return c.do(ctx, http.MethodPost, idPath("/conversations/%d/hide", conversationID), nil, nil, nil)
}

func (c *Client) Clear(ctx context.Context, conversationID uint) error {
	return c.do(ctx, http.MethodPost, idPath("/conversations/%d/clear", conversationID), nil, nil, nil)
}

func (c *Client) Leave(ctx context.Context, conversationID uint) error {
	return c.do(ctx, http.MethodPost, idPath("/conversations/%d/leave", conversationID), nil, nil, nil)
}

func (c *Client) DeleteGroup(ctx context.Context, conversationID uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/conversations/%d", conversationID), nil, nil, nil)
}

// Messages

func (c *Client) ListMessages(ctx context.Context, conversationID uint, q dto.PageQuery) (*dto.Page[dto.MessageResponse], error) {
	var out dto.Page[dto.MessageResponse]
	if err := c.do(ctx, http.MethodGet, idPath("/conversations/%d/messages", conversationID), pageValues(q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendGroupMessage(ctx context.Context, conversationID uint, content dto.MessageContent) (*dto.MessageResponse, error) {
	var out dto.MessageResponse
	req := dto.SendGroupMessageRequest{MessageContent: content}
	if err := c.do(ctx, http.MethodPost, idPath("/conversations/%d/messages", conversationID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendPrivateMessage(ctx context.Context, receiverID uint, content dto.MessageContent) (*dto.MessageResponse, error) {
	var out dto.MessageResponse
	req := dto.SendPrivateMessageRequest{ReceiverID: receiverID, MessageContent: content}
	if err := c.do(ctx, http.MethodPost, "/messages/private", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EditMessage(ctx context.Context, messageID uint, content string) (*dto.MessageResponse, error) {
	var out dto.MessageResponse
	req := dto.EditMessageRequest{Content: content}
	if err := c.do(ctx, http.MethodPatch, idPath("/messages/%d", messageID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID uint, forEveryone bool) error {
	v := url.Values{}
	setBool(v, "for_everyone", forEveryone)
	return c.do(ctx, http.MethodDelete, idPath("/messages/%d", messageID), v, nil, nil)
}

func (c *Client) MarkSeen(ctx context.Context, messageIDs []uint) (*dto.MarkSeenResponse, error) {
	var out dto.MarkSeenResponse
	req := dto.MarkSeenRequest{MessageIDs: messageIDs}
	if err := c.do(ctx, http.MethodPost, "/messages/seen", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleReaction(ctx context.Context, messageID uint, reactionType string) (*dto.ToggleReactionResponse, error) {
	var out dto.ToggleReactionResponse
	req := dto.ToggleReactionRequest{Type: reactionType}
	if err := c.do(ctx, http.MethodPost, idPath("/messages/%d/reactions", messageID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleStar(ctx context.Context, messageID uint) (*dto.ToggleStarResponse, error) {
	var out dto.ToggleStarResponse
	if err := c.do(ctx, http.MethodPost, idPath("/messages/%d/star", messageID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListStarred(ctx context.Context, q dto.PageQuery) (*dto.Page[dto.MessageResponse], error) {
	var out dto.Page[dto.MessageResponse]
	if err := c.do(ctx, http.MethodGet, "/starred", pageValues(q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
