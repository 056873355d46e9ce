package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

type RelationshipHandler struct {
	S *service.RelationshipService
}

// ListFriendsHandler supports the is_online, is_recent and query filters.
// @Summary List friends
// @Description Pages the caller's friends
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Param query query dto.FriendListQuery false "Filters"
// @Success 200 {object} dto.Page[dto.FriendResponse]
// @Router /friends [get]
func (h *RelationshipHandler) ListFriendsHandler(c *gin.Context) {
	q := middleware.Query[dto.FriendListQuery](c)

	page, err := h.S.ListFriends(c.Request.Context(), middleware.CurrentUserID(c), &q)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// UnfriendHandler godoc
// @Summary Unfriend
// @Description Ends a friendship
// @Tags relationships
// @Security BearerAuth
// @Param userId path int true "Friend user ID"
// @Success 204
// @Router /friends/{userId} [delete]
func (h *RelationshipHandler) UnfriendHandler(c *gin.Context) {
	friendID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := h.S.Unfriend(c.Request.Context(), middleware.CurrentUserID(c), friendID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListFriendRequestsHandler godoc
// @Summary List friend requests
// @Description Pages pending requests sent or received
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Param query query dto.FriendRequestListQuery false "Direction"
// @Success 200 {object} dto.Page[dto.FriendRequestResponse]
// @Router /friend-requests [get]
func (h *RelationshipHandler) ListFriendRequestsHandler(c *gin.Context) {
	q := middleware.Query[dto.FriendRequestListQuery](c)

	page, err := h.S.ListFriendRequests(c.Request.Context(), middleware.CurrentUserID(c), &q)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// SendFriendRequestHandler godoc
// @Summary Send friend request
// @Description Sends a friend request to another user
// @Tags relationships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.SendFriendRequestRequest true "Receiver"
// @Success 201 {object} dto.FriendRequestResponse
// @Router /friend-requests [post]
func (h *RelationshipHandler) SendFriendRequestHandler(c *gin.Context) {
	body := middleware.Body[dto.SendFriendRequestRequest](c)

	request, err := h.S.SendRequest(c.Request.Context(), middleware.CurrentUserID(c), body.ReceiverID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// AcceptFriendRequestHandler godoc
// @Summary Accept friend request
// @Description Accepts a pending request addressed to the caller
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} dto.FriendRequestResponse
// @Router /friend-requests/{id}/accept [post]
func (h *RelationshipHandler) AcceptFriendRequestHandler(c *gin.Context) {
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	request, err := h.S.Accept(c.Request.Context(), requestID, middleware.CurrentUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// RejectFriendRequestHandler godoc
// @Summary Reject friend request
// @Description Rejects a pending request addressed to the caller
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} dto.FriendRequestResponse
// @Router /friend-requests/{id}/reject [post]
func (h *RelationshipHandler) RejectFriendRequestHandler(c *gin.Context) {
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	request, err := h.S.Reject(c.Request.Context(), requestID, middleware.CurrentUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// CancelFriendRequestHandler withdraws a pending request the caller sent.
// @Summary Cancel friend request
// @Description Withdraws a pending request the caller sent
// @Tags relationships
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 204
// @Router /friend-requests/{id} [delete]
func (h *RelationshipHandler) CancelFriendRequestHandler(c *gin.Context) {
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.S.Cancel(c.Request.Context(), requestID, middleware.CurrentUserID(c)); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListBlockedHandler godoc
// @Summary List blocked users
// @Description Pages the users the caller has blocked
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Param query query dto.PageQuery false "Paging"
// @Success 200 {object} dto.Page[dto.BlockedUserResponse]
// @Router /blocks [get]
func (h *RelationshipHandler) ListBlockedHandler(c *gin.Context) {
	q := middleware.Query[dto.PageQuery](c)

	page, err := h.S.ListBlocked(c.Request.Context(), middleware.CurrentUserID(c), &q)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// BlockHandler also ends any friendship and pending request between the two.
// @Summary Block user
// @Description Blocks a user
// @Tags relationships
// @Accept json
// @Security BearerAuth
// @Param body body dto.BlockUserRequest true "User to block"
// @Success 204
// @Router /blocks [post]
func (h *RelationshipHandler) BlockHandler(c *gin.Context) {
	body := middleware.Body[dto.BlockUserRequest](c)

	if err := h.S.Block(c.Request.Context(), middleware.CurrentUserID(c), body.UserID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UnblockHandler godoc
// @Summary Unblock user
// @Description Lifts a block
// @Tags relationships
// @Security BearerAuth
// @Param userId path int true "Blocked user ID"
// @Success 204
// @Router /blocks/{userId} [delete]
func (h *RelationshipHandler) UnblockHandler(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := h.S.Unblock(c.Request.Context(), middleware.CurrentUserID(c), userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
