package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
)

// pathID parses a positive numeric path parameter. On failure the error is
// recorded on the context and false is returned.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(chatError.Validation("invalid " + name))
		return 0, false
	}
	return uint(id), true
}
