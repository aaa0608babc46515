package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.ApiService/health"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
)

// HealthController handles health and metrics requests
type HealthController struct {
	checker        *health.HealthChecker
	metricsHandler http.Handler
	logger         *logger.Logger
}

// NewHealthController creates a new health controller
func NewHealthController(checker *health.HealthChecker, metricsHandler http.Handler, logger *logger.Logger) *HealthController {
	return &HealthController{
		checker:        checker,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.Health)
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	if c.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(c.metricsHandler))
	}
}

// Health reports process liveness and the publisher connection. It is 200
// even while disconnected.
func (c *HealthController) Health(ctx *gin.Context) {
	connected := c.checker.PublisherConnected()
	ctx.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"connected":      connected,
		"mqtt_connected": connected,
	})
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	status := c.checker.GetHealthStatus(ctx.Request.Context())
	if !c.checker.Ready(ctx.Request.Context()) {
		ctx.JSON(http.StatusServiceUnavailable, status)
		return
	}
	ctx.JSON(http.StatusOK, status)
}
