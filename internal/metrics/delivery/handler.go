package delivery

import (
	"net/http"
	"time"

	"aadash-backend/internal/metrics/repository"
	"aadash-backend/internal/metrics/usecase"
	"aadash-backend/internal/mirror/domain"

	"github.com/gin-gonic/gin"
)

// MetricsHandler serves the dashboard's read-only aggregation endpoints.
type MetricsHandler struct {
	metricsUsecase *usecase.MetricsUsecase
}

func NewMetricsHandler(metricsUsecase *usecase.MetricsUsecase) *MetricsHandler {
	return &MetricsHandler{metricsUsecase: metricsUsecase}
}

func (h *MetricsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metricsUsecase.GetStats())
}

func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metricsUsecase.GetMetrics())
}

func (h *MetricsHandler) GetConversations(c *gin.Context) {
	filter := repository.ConversationFilter{
		EmailContains:  c.Query("email"),
		CourseContains: c.Query("course_number"),
	}
	if start := c.Query("date_start"); start != "" {
		filter.DateStart = domain.ParseUpstreamTime(start + "T00:00:00.000Z")
	}
	if end := c.Query("date_end"); end != "" {
		filter.DateEnd = domain.ParseUpstreamTime(end + "T23:59:59.999Z")
	}
	c.JSON(http.StatusOK, h.metricsUsecase.ListConversations(filter))
}

func (h *MetricsHandler) GetConversationMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("id"),
		"messages":        h.metricsUsecase.ListMessages(c.Param("id")),
	})
}

func (h *MetricsHandler) GetSessionsByDate(c *gin.Context) {
	rows := h.metricsUsecase.GetSessionsByDate()
	labels := make([]string, 0, len(rows))
	values := make([]int64, 0, len(rows))
	for _, row := range rows {
		labels = append(labels, row.Day)
		values = append(values, row.Count)
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels, "values": values})
}

func (h *MetricsHandler) GetSessionsByCourse(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"counts": h.metricsUsecase.GetCourseChart(), "timestamp": time.Now().UTC()})
}

func (h *MetricsHandler) GetSessionsByActivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"counts": h.metricsUsecase.GetActivityChart(), "timestamp": time.Now().UTC()})
}
