package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// abortWithError 以统一的错误结构结束请求
func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
