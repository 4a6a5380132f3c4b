package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
)

// RequestID tags each request with a unique ID: echoed in the response
// header, attached to the request log line, and stamped onto the request
// context so SQL traces triggered by the request carry it too
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(
			logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a timestamp-based ID if crypto/rand fails
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(bytes)
}
