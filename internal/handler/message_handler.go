package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

type MessageHandler struct {
	S *service.MessageService
}

// ListMessagesHandler pages newest first.
// @Summary List messages
// @Description Pages the messages of a conversation, newest first
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param query query dto.PageQuery false "Paging"
// @Success 200 {object} dto.Page[dto.MessageResponse]
// @Router /conversations/{id}/messages [get]
func (h *MessageHandler) ListMessagesHandler(c *gin.Context) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	q := middleware.Query[dto.PageQuery](c)

	page, err := h.S.ListMessages(c.Request.Context(), middleware.CurrentUserID(c), conversationID, &q)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// SendGroupMessageHandler godoc
// @Summary Send group message
// @Description Posts a message to a group
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body dto.SendGroupMessageRequest true "Message payload"
// @Success 201 {object} dto.MessageResponse
// @Router /conversations/{id}/messages [post]
func (h *MessageHandler) SendGroupMessageHandler(c *gin.Context) {
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	body := middleware.Body[dto.SendGroupMessageRequest](c)

	message, err := h.S.SendGroupMessage(c.Request.Context(), middleware.CurrentUserID(c), conversationID, &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// SendPrivateMessageHandler opens the private conversation on first contact.
// @Summary Send private message
// @Description Posts a message to a friend
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.SendPrivateMessageRequest true "Message payload"
// @Success 201 {object} dto.MessageResponse
// @Router /messages/private [post]
func (h *MessageHandler) SendPrivateMessageHandler(c *gin.Context) {
	body := middleware.Body[dto.SendPrivateMessageRequest](c)

	message, err := h.S.SendPrivateMessage(c.Request.Context(), middleware.CurrentUserID(c), &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// EditMessageHandler godoc
// @Summary Edit message
// @Description Changes the text of the caller's own message
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param body body dto.EditMessageRequest true "New text"
// @Success 200 {object} dto.MessageResponse
// @Router /messages/{id} [patch]
func (h *MessageHandler) EditMessageHandler(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	body := middleware.Body[dto.EditMessageRequest](c)

	message, err := h.S.EditMessage(c.Request.Context(), middleware.CurrentUserID(c), messageID, &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// DeleteMessageHandler deletes for the caller only unless for_everyone=true.
// @Summary Delete message
// @Description Deletes a message for the caller or for everyone
// @Tags messages
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param for_everyone query bool false "Delete for every member"
// @Success 204
// @Router /messages/{id} [delete]
func (h *MessageHandler) DeleteMessageHandler(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	q := middleware.Query[dto.DeleteMessageQuery](c)

	if err := h.S.DeleteMessage(c.Request.Context(), middleware.CurrentUserID(c), messageID, q.ForEveryone); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkSeenHandler godoc
// @Summary Mark messages seen
// @Description Records that the caller has seen the given messages
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.MarkSeenRequest true "Message IDs"
// @Success 200 {object} dto.MarkSeenResponse
// @Router /messages/seen [post]
func (h *MessageHandler) MarkSeenHandler(c *gin.Context) {
	body := middleware.Body[dto.MarkSeenRequest](c)

	resp, err := h.S.MarkSeen(c.Request.Context(), middleware.CurrentUserID(c), &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ToggleReactionHandler godoc
// @Summary Toggle reaction
// @Description Adds, changes or removes the caller's reaction
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param body body dto.ToggleReactionRequest true "Reaction type"
// @Success 200 {object} dto.ToggleReactionResponse
// @Router /messages/{id}/reactions [post]
func (h *MessageHandler) ToggleReactionHandler(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	body := middleware.Body[dto.ToggleReactionRequest](c)

	resp, err := h.S.ToggleReaction(c.Request.Context(), middleware.CurrentUserID(c), messageID, &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ToggleStarHandler godoc
// @Summary Toggle star
// @Description Stars or unstars a message for the caller
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} dto.ToggleStarResponse
// @Router /messages/{id}/star [post]
func (h *MessageHandler) ToggleStarHandler(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.S.ToggleStar(c.Request.Context(), middleware.CurrentUserID(c), messageID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListStarredHandler godoc
// @Summary List starred messages
// @Description Pages the caller's starred messages
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param query query dto.PageQuery false "Paging"
// @Success 200 {object} dto.Page[dto.MessageResponse]
// @Router /starred [get]
func (h *MessageHandler) ListStarredHandler(c *gin.Context) {
	q := middleware.Query[dto.PageQuery](c)

	page, err := h.S.ListStarred(c.Request.Context(), middleware.CurrentUserID(c), &q)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}
