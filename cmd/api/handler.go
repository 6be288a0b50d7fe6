package api

import (
	metricsDelivery "aadash-backend/internal/metrics/delivery"
	syncDelivery "aadash-backend/internal/sync/delivery"
	"aadash-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	syncHandler    *syncDelivery.SyncHandler
	metricsHandler *metricsDelivery.MetricsHandler
	config         *config.Config
}

func NewHandler(syncHandler *syncDelivery.SyncHandler, metricsHandler *metricsDelivery.MetricsHandler, cfg *config.Config) *Handler {
	return &Handler{
		syncHandler:    syncHandler,
		metricsHandler: metricsHandler,
		config:         cfg,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.syncHandler, h.metricsHandler)

	return r.Run(addr)
}
