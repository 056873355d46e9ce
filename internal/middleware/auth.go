package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/util/jwt"
)

const (
	PrefixBearer = "Bearer "
	UserIDKey    = "userID"
)

// UserEnsurer creates the local mirror of an authenticated user on first
// sight.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, userID uint) error
}

// Auth accepts a bearer token, or a token query parameter for the WebSocket
// upgrade where browsers cannot set headers.
func Auth(dep *dependency.Dependency, users UserEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, PrefixBearer) {
			tokenString = authHeader[len(PrefixBearer):]
		} else if q := c.Query("token"); q != "" {
			tokenString = q
		}

		if tokenString == "" {
			_ = c.AbortWithError(401, chatError.Unauthorized("Invalid or expired token"))
			return
		}

		claims, err := jwt.ValidateUserToken(dep, tokenString)
		if err != nil {
			_ = c.AbortWithError(401, chatError.Unauthorized("Invalid or expired token"))
			return
		}

		if users != nil {
			if err := users.EnsureUser(c.Request.Context(), claims.UserID); err != nil {
				_ = c.Error(err)
				c.Abort()
				return
			}
		}

		c.Set(UserIDKey, claims.UserID)

		c.Next()
	}
}

// CurrentUserID is only valid behind Auth.
func CurrentUserID(c *gin.Context) uint {
	return c.MustGet(UserIDKey).(uint)
}
