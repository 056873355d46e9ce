package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/handler"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

func RelationshipsRouter(r *gin.RouterGroup, svcs *service.Services) {
	h := &handler.RelationshipHandler{S: svcs.Relationships}

	r.GET("/friends", middleware.ValidateQuery[dto.FriendListQuery](), h.ListFriendsHandler)
	r.DELETE("/friends/:userId", h.UnfriendHandler)

	r.GET("/friend-requests", middleware.ValidateQuery[dto.FriendRequestListQuery](), h.ListFriendRequestsHandler)
	r.POST("/friend-requests", middleware.ValidateBody[dto.SendFriendRequestRequest](), h.SendFriendRequestHandler)
	r.POST("/friend-requests/:id/accept", h.AcceptFriendRequestHandler)
	r.POST("/friend-requests/:id/reject", h.RejectFriendRequestHandler)
	r.DELETE("/friend-requests/:id", h.CancelFriendRequestHandler)

	r.GET("/blocks", middleware.ValidateQuery[dto.PageQuery](), h.ListBlockedHandler)
	r.POST("/blocks", middleware.ValidateBody[dto.BlockUserRequest](), h.BlockHandler)
	r.DELETE("/blocks/:userId", h.UnblockHandler)
}
