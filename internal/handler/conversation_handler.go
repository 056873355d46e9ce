package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

type ConversationHandler struct {
	S *service.ConversationService
}

// ListConversationsHandler godoc
// @Summary List conversations
// @Description Pages the caller's visible conversations, most recent activity first
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param query query dto.ConversationListQuery false "Filters"
// @Success 200 {object} dto.Page[dto.ConversationResponse]
// @Router /conversations [get]
func (h *ConversationHandler) ListConversationsHandler(c *gin.Context) {
	q := middleware.Query[dto.ConversationListQuery](c)

	page, err := h.S.ListConversations(c.Request.Context(), middleware.CurrentUserID(c), &q)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// OpenPrivateHandler returns the private conversation with a friend,
// creating it on first use.
// @Summary Open private conversation
// @Description Returns the private conversation with a friend, creating it on first use
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreatePrivateConversationRequest true "Friend to talk to"
// @Success 200 {object} dto.ConversationResponse
// @Router /conversations/private [post]
func (h *ConversationHandler) OpenPrivateHandler(c *gin.Context) {
	body := middleware.Body[dto.CreatePrivateConversationRequest](c)

	conversation, err := h.S.FindOrCreatePrivate(c.Request.Context(), middleware.CurrentUserID(c), body.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// CreateGroupHandler godoc
// @Summary Create group
// @Description Creates a group owned by the caller
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateGroupRequest true "Group payload"
// @Success 201 {object} dto.ConversationResponse
// @Router /conversations/groups [post]
func (h *ConversationHandler) CreateGroupHandler(c *gin.Context) {
	body := middleware.Body[dto.CreateGroupRequest](c)

	conversation, err := h.S.CreateGroup(c.Request.Context(), middleware.CurrentUserID(c), &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

// OverviewHandler godoc
// @Summary Conversation overview
// @Description Returns a conversation with its members
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} dto.ConversationOverviewResponse
// @Router /conversations/{id} [get]
func (h *ConversationHandler) OverviewHandler(c *gin.Context) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conversation, err := h.S.Overview(c.Request.Context(), conversationID, middleware.CurrentUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// UpdateGroupHandler godoc
// @Summary Update group
// @Description Renames a group or changes its description or icon
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body dto.UpdateGroupRequest true "Group fields"
// @Success 200 {object} dto.ConversationResponse
// @Router /conversations/{id} [patch]
func (h *ConversationHandler) UpdateGroupHandler(c *gin.Context) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	body := middleware.Body[dto.UpdateGroupRequest](c)

	conversation, err := h.S.UpdateGroup(c.Request.Context(), middleware.CurrentUserID(c), conversationID, &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// AddMembersHandler godoc
// @Summary Add group members
// @Description Adds friends of an admin to a group
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body dto.AddMembersRequest true "Users to add"
// @Success 200 {object} dto.ConversationResponse
// @Router /conversations/{id}/members [post]
func (h *ConversationHandler) AddMembersHandler(c *gin.Context) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	body := middleware.Body[dto.AddMembersRequest](c)

	conversation, err := h.S.AddMembers(c.Request.Context(), middleware.CurrentUserID(c), conversationID, &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// RemoveMemberHandler godoc
// @Summary Remove group member
// @Description Removes a member from a group
// @Tags conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param userId path int true "Member user ID"
// @Success 204
// @Router /conversations/{id}/members/{userId} [delete]
func (h *ConversationHandler) RemoveMemberHandler(c *gin.Context) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := h.S.RemoveMember(c.Request.Context(), middleware.CurrentUserID(c), conversationID, userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ownMembership runs an operation on the caller's own membership of the
// conversation in the path.
func ownMembership(c *gin.Context, op func(ctx context.Context, conversationID, userID uint) error) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := op(c.Request.Context(), conversationID, middleware.CurrentUserID(c)); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HideHandler hides the conversation until a newer message arrives.
// @Summary Hide conversation
// @Description Hides the conversation for the caller
// @Tags conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 204
// @Router /conversations/{id}/hide [post]
func (h *ConversationHandler) HideHandler(c *gin.Context) {
	ownMembership(c, h.S.Hide)
}

// ClearHandler drops the caller's history up to now.
// @Summary Clear conversation
// @Description Drops the caller's history up to now
// @Tags conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 204
// @Router /conversations/{id}/clear [post]
func (h *ConversationHandler) ClearHandler(c *gin.Context) {
	ownMembership(c, h.S.Clear)
}

// LeaveHandler godoc
// @Summary Leave group
// @Description Removes the caller from a group
// @Tags conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 204
// @Router /conversations/{id}/leave [post]
func (h *ConversationHandler) LeaveHandler(c *gin.Context) {
	ownMembership(c, h.S.LeaveGroup)
}

// DeleteGroupHandler godoc
// @Summary Delete group
// @Description Deletes a group the caller created
// @Tags conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 204
// @Router /conversations/{id} [delete]
func (h *ConversationHandler) DeleteGroupHandler(c *gin.Context) {
	ownMembership(c, h.S.DeleteGroup)
}
