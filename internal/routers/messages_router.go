package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/handler"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

func MessagesRouter(r *gin.RouterGroup, svcs *service.Services) {
	h := &handler.MessageHandler{S: svcs.Messages}

	r.POST("/messages/private", middleware.ValidateBody[dto.SendPrivateMessageRequest](), h.SendPrivateMessageHandler)
	r.POST("/messages/seen", middleware.ValidateBody[dto.MarkSeenRequest](), h.MarkSeenHandler)
	r.PATCH("/messages/:id", middleware.ValidateBody[dto.EditMessageRequest](), h.EditMessageHandler)
	r.DELETE("/messages/:id", middleware.ValidateQuery[dto.DeleteMessageQuery](), h.DeleteMessageHandler)
	r.POST("/messages/:id/reactions", middleware.ValidateBody[dto.ToggleReactionRequest](), h.ToggleReactionHandler)
	r.POST("/messages/:id/star", h.ToggleStarHandler)

	r.GET("/starred", middleware.ValidateQuery[dto.PageQuery](), h.ListStarredHandler)
}
