package delivery

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/internal/sync/scheduler"
	"aadash-backend/internal/sync/usecase"

	"github.com/gin-gonic/gin"
)

// SyncHandler exposes the trigger, status, progress and scheduler surfaces.
type SyncHandler struct {
	orchestrator *usecase.Orchestrator
	sessions     *usecase.SessionRegistry
	checkpoints  repository.CheckpointRepository
	scheduler    *scheduler.HourlySyncScheduler
}

func NewSyncHandler(orchestrator *usecase.Orchestrator, sessions *usecase.SessionRegistry, checkpoints repository.CheckpointRepository, sched *scheduler.HourlySyncScheduler) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		sessions:     sessions,
		checkpoints:  checkpoints,
		scheduler:    sched,
	}
}

type batchSyncRequest struct {
	BatchSize int      `json:"batch_size"`
	SyncType  string   `json:"sync_type"`
	DataTypes []string `json:"data_types"`
	MaxItems  int      `json:"max_items"`
}

func (r *batchSyncRequest) normalize() error {
	if r.BatchSize == 0 {
		r.BatchSize = 200
	}
	if r.BatchSize < 10 || r.BatchSize > 500 {
		return fmt.Errorf("batch size must be between 10 and 500")
	}
	if r.SyncType == "" {
		r.SyncType = "incremental"
	}
	if r.SyncType != "incremental" && r.SyncType != "full" {
		return fmt.Errorf("sync_type must be \"incremental\" or \"full\"")
	}
	return nil
}

// TriggerBatchSync runs a sync pass synchronously and reports per-data-type
// results plus before/after row counts.
func (h *SyncHandler) TriggerBatchSync(c *gin.Context) {
	var req batchSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	before, err := h.orchestrator.DatabaseCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	log.Printf("[SyncAPI] Starting %s sync with batch size %d", req.SyncType, req.BatchSize)

	var progressMu sync.Mutex
	progress := make(map[string]usecase.Progress)
	opts := usecase.PassOptions{
		BatchSize: req.BatchSize,
		MaxItems:  req.MaxItems,
		DataTypes: req.DataTypes,
		Progress: func(p usecase.Progress) {
			progressMu.Lock()
			progress[p.DataType] = p
			progressMu.Unlock()
		},
	}

	var results usecase.PassResult
	if req.SyncType == "full" {
		results = h.orchestrator.PerformFullSync(c.Request.Context(), opts)
	} else {
		results = h.orchestrator.PerformIncrementalSync(c.Request.Context(), opts)
	}

	after, err := h.orchestrator.DatabaseCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	changes := make(map[string]gin.H, len(after))
	for dataType, count := range after {
		changes[dataType] = gin.H{
			"before": before[dataType],
			"after":  count,
			"added":  count - before[dataType],
		}
	}

	totalErrors := 0
	for _, r := range results {
		totalErrors += len(r.Errors)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"sync_type":        req.SyncType,
		"batch_size":       req.BatchSize,
		"results":          results,
		"database_changes": changes,
		"progress":         progress,
		"summary": gin.H{
			"total_synced": results.TotalCount(),
			"total_errors": totalErrors,
		},
		"timestamp": time.Now().UTC(),
	})
}

// SyncStatus reports each data type's checkpoint plus whether the upstream
// has anything newer than the watermark.
func (h *SyncHandler) SyncStatus(c *gin.Context) {
	checkpoints, err := h.checkpoints.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	byType := make(map[string]*domain.SyncCheckpoint, len(checkpoints))
	for _, checkpoint := range checkpoints {
		byType[checkpoint.DataType] = checkpoint
	}

	statuses := make(map[string]gin.H, len(domain.SyncOrder))
	needsRefresh := false
	totalNew := 0

	for _, dataType := range domain.SyncOrder {
		hasNew, newCount, err := h.orchestrator.CheckForNewData(c.Request.Context(), dataType)
		if err != nil {
			log.Printf("[SyncAPI] New-data probe failed for %s: %v", dataType, err)
		}
		if hasNew {
			needsRefresh = true
			totalNew += newCount
		}

		entry := gin.H{
			"last_sync":      nil,
			"status":         "never_synced",
			"total_records":  0,
			"has_new_data":   hasNew,
			"new_data_count": newCount,
			"last_error":     nil,
		}
		if checkpoint, ok := byType[dataType]; ok {
			entry["last_sync"] = checkpoint.LastSyncDate
			entry["status"] = checkpoint.Status
			entry["total_records"] = checkpoint.TotalRecords
			entry["last_error"] = checkpoint.ErrorMessage
		}
		statuses[dataType] = entry
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"statuses":        statuses,
		"needs_refresh":   needsRefresh,
		"total_new_items": totalNew,
		"timestamp":       time.Now().UTC(),
	})
}

// StartAsyncSync launches a background pass and returns a session id for
// polling. The run detaches from the request context deliberately so a
// disconnecting caller does not cancel it.
func (h *SyncHandler) StartAsyncSync(c *gin.Context) {
	var req batchSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	sessionID := h.sessions.Begin()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SyncSession] Panic in background sync %s: %v", sessionID, r)
				h.sessions.Fail(sessionID, fmt.Sprintf("internal error: %v", r))
			}
		}()

		opts := usecase.PassOptions{
			BatchSize: req.BatchSize,
			MaxItems:  req.MaxItems,
			DataTypes: req.DataTypes,
			Progress:  h.sessions.ProgressFunc(sessionID),
		}

		var results usecase.PassResult
		if req.SyncType == "full" {
			results = h.orchestrator.PerformFullSync(context.Background(), opts)
		} else {
			results = h.orchestrator.PerformIncrementalSync(context.Background(), opts)
		}
		h.sessions.Complete(sessionID, results)
		log.Printf("[SyncSession] Background sync %s completed: %d items", sessionID, results.TotalCount())
	}()

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"session_id":         sessionID,
		"message":            "Sync started in background",
		"check_progress_url": "/api/sync/progress/" + sessionID,
	})
}

// SyncProgress polls one background session by id.
func (h *SyncHandler) SyncProgress(c *gin.Context) {
	snapshot, ok := h.sessions.Snapshot(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"session_id":        snapshot.ID,
		"status":            snapshot.Status,
		"started":           snapshot.Started,
		"completed":         snapshot.Completed,
		"overall_progress":  snapshot.OverallProgress,
		"detailed_progress": snapshot.Detailed,
		"results":           snapshot.Results,
		"error":             snapshot.Error,
	})
}

// SchedulerStatus reports the background scheduler plus its last recorded
// pass outcome.
func (h *SyncHandler) SchedulerStatus(c *gin.Context) {
	response := gin.H{
		"success":   true,
		"scheduler": h.scheduler.Status(),
	}
	if checkpoint, err := h.checkpoints.GetOrCreate(domain.ScheduledSyncType); err == nil {
		response["last_sync"] = gin.H{
			"date":   checkpoint.LastSyncDate,
			"status": checkpoint.Status,
			"error":  checkpoint.ErrorMessage,
		}
	}
	c.JSON(http.StatusOK, response)
}

// SchedulerTrigger requests an immediate scheduled pass.
func (h *SyncHandler) SchedulerTrigger(c *gin.Context) {
	h.scheduler.TriggerNow()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Sync triggered"})
}

func (h *SyncHandler) SchedulerPause(c *gin.Context) {
	h.scheduler.Pause()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Scheduler paused"})
}

func (h *SyncHandler) SchedulerResume(c *gin.Context) {
	h.scheduler.Resume()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Scheduler resumed"})
}
