// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hardware-service/internal/config"
	"hardware-service/internal/handler"
	"hardware-service/internal/middleware"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	deviceHandler    *handler.DeviceHandler
	operationHandler *handler.OperationHandler
	healthHandler    *handler.HealthHandler
	wsHandler        *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	deviceHandler *handler.DeviceHandler,
	operationHandler *handler.OperationHandler,
	healthHandler *handler.HealthHandler,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:           cfg,
		logger:           logger,
		deviceHandler:    deviceHandler,
		operationHandler: operationHandler,
		healthHandler:    healthHandler,
		wsHandler:        wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(r.logger))
	router.Use(middleware.CORSMiddleware(&r.config.Server))
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Health endpoints, no API prefix
	router.GET("/health", r.healthHandler.HealthCheck)
	router.GET("/health/db", r.healthHandler.DatabaseHealthCheck)
	router.GET("/ready", r.healthHandler.ReadinessCheck)
	router.GET("/live", r.healthHandler.LivenessCheck)

	apiV1 := router.Group("/api/v1")
	r.addDeviceRoutes(apiV1)
	r.addJobRoutes(apiV1)

	apiV1.GET("/hardware/status", r.healthHandler.HardwareStatus)

	router.GET("/ws/events", r.wsHandler.HandleEvents)

	r.logger.Info("Routes configured")
}

// addDeviceRoutes sets up device management and operation routes
func (r *Router) addDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.POST("", r.deviceHandler.RegisterDevice)
		devices.GET("", r.deviceHandler.ListDevices)

		device := devices.Group("/:device_id")
		{
			device.GET("", r.deviceHandler.GetDevice)
			device.DELETE("", r.deviceHandler.DeleteDevice)
			device.POST("/enable", r.deviceHandler.EnableDevice)
			device.POST("/disable", r.deviceHandler.DisableDevice)
			device.POST("/test", r.deviceHandler.TestDevice)
			device.POST("/disconnect", r.deviceHandler.DisconnectDevice)

			device.POST("/print", r.operationHandler.PrintReceipt)
			device.POST("/print/raw", r.operationHandler.PrintRaw)
			device.POST("/print/preview", r.operationHandler.PrintPreview)
			device.GET("/jobs", r.operationHandler.ListJobs)
			device.POST("/queue/resume", r.operationHandler.ResumeQueue)

			device.POST("/open-drawer", r.operationHandler.OpenDrawer)

			device.POST("/payment", r.operationHandler.ProcessPayment)
			device.POST("/refund", r.operationHandler.RefundPayment)
			device.GET("/transactions", r.operationHandler.ListTransactions)

			device.POST("/scan", r.operationHandler.FeedScanner)
			device.POST("/scan/listen", r.operationHandler.StartScannerListener)
			device.POST("/scan/stop", r.operationHandler.StopScannerListener)
		}
	}
}

// addJobRoutes sets up queue-wide job lookup
func (r *Router) addJobRoutes(api *gin.RouterGroup) {
	jobs := api.Group("/jobs")
	{
		jobs.GET("/:job_id", r.operationHandler.GetJob)
	}
}
