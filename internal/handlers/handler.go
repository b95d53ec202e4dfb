package handlers

import (
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Minimal WebSocket connection (HTTP upgrade) — same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerKettleRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerKettleRoutes(api *gin.RouterGroup) {
	kettle := api.Group("/kettle")
	{
		kettle.GET("/state", h.getState)
		kettle.POST("/power", h.setPower)
		kettle.POST("/temperature", h.setTemperature)
		kettle.POST("/hold", h.setHold)
		kettle.POST("/refresh", h.refresh)
		kettle.POST("/schedule/time", h.setScheduleTime)
		kettle.POST("/schedule/enabled", h.setScheduleEnabled)
		kettle.POST("/schedule/temperature", h.setScheduleTemperature)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
