package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandlerMiddleware handles errors and panics
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal Server Error",
					"message": "An unexpected error occurred",
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		if appErr, ok := errors.AsAppError(err); ok {
			c.JSON(appErr.Code, gin.H{"error": appErr.Message})
			return
		}

		logger.Error().Err(err).Msg("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
