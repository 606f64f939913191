package middleware

import "github.com/gin-gonic/gin"

// SecurityHeadersMiddleware sets browser hardening headers. Responses carry
// health data, so nothing under /api may be cached.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		headers := c.Writer.Header()

		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		headers.Set("Cache-Control", "no-store")
		headers.Set("Pragma", "no-cache")

		c.Next()
	}
}
