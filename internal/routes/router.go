package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/ingestion"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/middleware"
)

const healthTimeout = 2 * time.Second

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

func SetupRoutes(c *Container) *gin.Engine {
	cfg := c.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Order: recovery, request ID, logging, metrics, security headers, CORS, size limit, rate limit
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.MetricsMiddleware(c.Metrics))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))

	router.GET("/health", healthHandler(c.DB, c.Processor))
	router.GET("/metrics", gin.WrapH(c.Metrics.Handler()))

	h := c.Handlers()
	requireAuth := middleware.AuthMiddleware(cfg.JWT.Secret)
	requireDevice := middleware.DeviceAuthMiddleware(cfg.Device.APIKey)

	api := router.Group("/api")
	{
		h.Auth.RegisterRoutes(api, requireAuth)

		dashboard := api.Group("/dashboard")
		dashboard.Use(requireAuth)
		{
			h.Dose.RegisterRoutes(dashboard, c.Authz)
			h.Report.RegisterRoutes(dashboard, c.Authz)
			h.Medication.RegisterRoutes(dashboard, c.Authz)
			h.Patient.RegisterRoutes(dashboard, c.Authz)
			h.Overview.RegisterRoutes(dashboard, c.Authz)
		}

		hardware := api.Group("/hardware")
		hardware.Use(requireDevice)
		{
			h.Hardware.RegisterRoutes(hardware)
		}

		deviceGroup := api.Group("/device")
		deviceGroup.Use(requireDevice)
		{
			h.Hardware.RegisterDeviceRoutes(deviceGroup)
		}
	}

	logger.Info("All routes initialized")
	return router
}

func healthHandler(db HealthChecker, processor *ingestion.Processor) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthTimeout)
		defer cancel()

		if err := db.Health(checkCtx); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "Database connection failed",
			})
			return
		}

		body := gin.H{
			"status":  "healthy",
			"message": "Service is running",
		}
		if processor != nil {
			body["ingestion"] = processor.GetMetrics()
		}
		ctx.JSON(http.StatusOK, body)
	}
}
