package api

import (
	"net/http"

	metricsDelivery "aadash-backend/internal/metrics/delivery"
	syncDelivery "aadash-backend/internal/sync/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, syncHandler *syncDelivery.SyncHandler, metricsHandler *metricsDelivery.MetricsHandler) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Sync trigger and monitoring
		sync := api.Group("/sync")
		{
			sync.POST("/batch", syncHandler.TriggerBatchSync)
			sync.GET("/status", syncHandler.SyncStatus)
			sync.POST("/async", syncHandler.StartAsyncSync)
			sync.GET("/progress/:session_id", syncHandler.SyncProgress)
		}

		// Scheduler management
		scheduler := api.Group("/scheduler")
		{
			scheduler.GET("/status", syncHandler.SchedulerStatus)
			scheduler.POST("/trigger", syncHandler.SchedulerTrigger)
			scheduler.POST("/pause", syncHandler.SchedulerPause)
			scheduler.POST("/resume", syncHandler.SchedulerResume)
		}

		// Dashboard reads
		api.GET("/stats", metricsHandler.GetStats)
		api.GET("/metrics", metricsHandler.GetMetrics)
		api.GET("/conversations", metricsHandler.GetConversations)
		api.GET("/conversation/:id", metricsHandler.GetConversationMessages)

		charts := api.Group("/chart")
		{
			charts.GET("/sessions-by-date", metricsHandler.GetSessionsByDate)
			charts.GET("/sessions-by-course", metricsHandler.GetSessionsByCourse)
			charts.GET("/sessions-by-activity", metricsHandler.GetSessionsByActivity)
		}
	}
}
