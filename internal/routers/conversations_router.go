package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/handler"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

func ConversationsRouter(r *gin.RouterGroup, svcs *service.Services) {
	h := &handler.ConversationHandler{S: svcs.Conversations}
	m := &handler.MessageHandler{S: svcs.Messages}

	r.GET("", middleware.ValidateQuery[dto.ConversationListQuery](), h.ListConversationsHandler)
	r.POST("/private", middleware.ValidateBody[dto.CreatePrivateConversationRequest](), h.OpenPrivateHandler)
	r.POST("/groups", middleware.ValidateBody[dto.CreateGroupRequest](), h.CreateGroupHandler)

	r.GET("/:id", h.OverviewHandler)
	r.PATCH("/:id", middleware.ValidateBody[dto.UpdateGroupRequest](), h.UpdateGroupHandler)
	r.DELETE("/:id", h.DeleteGroupHandler)

	r.POST("/:id/members", middleware.ValidateBody[dto.AddMembersRequest](), h.AddMembersHandler)
	r.DELETE("/:id/members/:userId", h.RemoveMemberHandler)

	r.POST("/:id/hide", h.HideHandler)
	r.POST("/:id/clear", h.ClearHandler)
	r.POST("/:id/leave", h.LeaveHandler)

	r.GET("/:id/messages", middleware.ValidateQuery[dto.PageQuery](), m.ListMessagesHandler)
	r.POST("/:id/messages", middleware.ValidateBody[dto.SendGroupMessageRequest](), m.SendGroupMessageHandler)
}
