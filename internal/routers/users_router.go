package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/handler"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

func UsersRouter(r *gin.RouterGroup, svcs *service.Services) {
	h := &handler.UserHandler{S: svcs.Users}

	r.GET("/me", h.GetMeHandler)
	r.PUT("/me", middleware.ValidateBody[dto.UpdateProfileRequest](), h.UpdateMeHandler)
	r.POST("/me/heartbeat", h.HeartbeatHandler)
}
