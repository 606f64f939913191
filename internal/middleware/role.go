package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/pkg/utils"
)

// Authorize checks the caller's role against the casbin policy for obj/act.
// It must run after AuthMiddleware.
func Authorize(az *authz.Authorizer, obj authz.Resource, act authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := GetRole(c)
		if !exists {
			utils.ErrorResponse(c, http.StatusForbidden, "Role not found in context")
			c.Abort()
			return
		}

		ok, err := az.Allowed(role, obj, act)
		if err != nil {
			logger.Error("Authorization check failed",
				zap.String("request_id", GetRequestID(c)),
				zap.String("role", string(role)),
				zap.String("resource", string(obj)),
				zap.Error(err),
			)
			utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
			c.Abort()
			return
		}
		if !ok {
			utils.ErrorResponse(c, http.StatusForbidden, "Insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}
