package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/pkg/utils"
)

// DeviceAuthMiddleware admits dispensers presenting the shared API key as a
// bearer token. An empty key rejects everything.
func DeviceAuthMiddleware(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)

	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			logger.Warn("Unauthorized device request",
				zap.String("request_id", GetRequestID(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			utils.ErrorResponse(c, http.StatusUnauthorized, "Unauthorized device")
			c.Abort()
			return
		}

		c.Next()
	}
}
