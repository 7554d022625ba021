package server

import "github.com/gin-gonic/gin"

// Success writes the standard success envelope.
func Success(c *gin.Context, data any) {
	c.JSON(200, gin.H{"status": "success", "data": data})
}

// Error writes the standard error envelope and aborts the handler chain.
func Error(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"status": "error", "message": message})
}
