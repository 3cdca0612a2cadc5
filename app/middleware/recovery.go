package middleware

import (
	"net/http"
	"runtime/debug"

	"mteval/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery catches panics and converts them to a 500 response
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorCtx(c.Request.Context(), "panic recovered: %v\nstack:\n%s", err, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()

		c.Next()
	}
}
