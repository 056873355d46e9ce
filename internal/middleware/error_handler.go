package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		errs := c.Errors

		if len(errs) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var chatErr *chatError.ChatError

		// Deterministic rejections from the services
		if errors.As(err, &chatErr) {
			c.AbortWithStatusJSON(chatErr.Status, gin.H{
				"error": chatErr.Message,
				"code":  chatErr.Kind,
			})
			return
		}

		var validationErr validator.ValidationErrors

		if errors.As(err, &validationErr) {
			messages := make([]string, 0, len(validationErr))
			for _, fe := range validationErr {
				if dto.Trans != nil {
					messages = append(messages, fe.Translate(dto.Trans))
				} else {
					messages = append(messages, fe.Error())
				}
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": messages,
				"code":  chatError.KindValidation,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Internal Server Error",
		})
	}
}

func PanicHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Internal Server Error",
		})
	})
}
