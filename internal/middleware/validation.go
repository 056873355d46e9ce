package middleware

import (
	"github.com/gin-gonic/gin"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

const (
	validatedBodyKey  = "validatedBody"
	validatedQueryKey = "validatedQuery"
)

func ValidateBody[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body T
		if err := c.ShouldBindJSON(&body); err != nil {
			_ = c.AbortWithError(400, chatError.Validation(err.Error()))
			return
		}

		if err := dto.Validate.Struct(&body); err != nil {
			_ = c.AbortWithError(400, err)
			return
		}

		c.Set(validatedBodyKey, body)

		c.Next()
	}
}

func ValidateQuery[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		var query T
		if err := c.ShouldBindQuery(&query); err != nil {
			_ = c.AbortWithError(400, chatError.Validation(err.Error()))
			return
		}

		if err := dto.Validate.Struct(&query); err != nil {
			_ = c.AbortWithError(400, err)
			return
		}

		c.Set(validatedQueryKey, query)

		c.Next()
	}
}

// Body returns what ValidateBody[T] stored on the context.
func Body[T any](c *gin.Context) T {
	return c.MustGet(validatedBodyKey).(T)
}

// Query returns what ValidateQuery[T] stored on the context.
func Query[T any](c *gin.Context) T {
	return c.MustGet(validatedQueryKey).(T)
}
