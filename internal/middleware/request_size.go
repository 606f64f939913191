package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/pkg/utils"
)

// DefaultMaxRequestSize covers the largest dashboard payload (a medicine
// with notes) many times over; heartbeats are a few hundred bytes.
const DefaultMaxRequestSize = 1 << 20

// RequestSizeLimitMiddleware rejects declared bodies over maxSize and caps
// chunked ones while they are read.
func RequestSizeLimitMiddleware(maxSize int64) gin.HandlerFunc {
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Request body too large")
			c.Abort()
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
