package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

type UserHandler struct {
	S *service.UserService
}

// GetMeHandler returns the authenticated user's profile.
// @Summary Get current user profile
// @Description Returns the authenticated user's profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.UserProfileResponse
// @Router /users/me [get]
func (h *UserHandler) GetMeHandler(c *gin.Context) {
	profile, err := h.S.GetProfile(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMeHandler changes the handle or avatar.
// @Summary Update current user profile
// @Description Changes the handle or avatar
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} dto.UserProfileResponse
// @Router /users/me [put]
func (h *UserHandler) UpdateMeHandler(c *gin.Context) {
	body := middleware.Body[dto.UpdateProfileRequest](c)

	profile, err := h.S.UpdateProfile(c.Request.Context(), middleware.CurrentUserID(c), &body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// HeartbeatHandler godoc
// @Summary Heartbeat
// @Description Refreshes the caller's last seen time
// @Tags users
// @Security BearerAuth
// @Success 204
// @Router /users/me/heartbeat [post]
func (h *UserHandler) HeartbeatHandler(c *gin.Context) {
	if err := h.S.Heartbeat(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
