package main

import (
	"log"

	api "aadash-backend/cmd/api"
	metricsDelivery "aadash-backend/internal/metrics/delivery"
	metricsRepo "aadash-backend/internal/metrics/repository"
	metricsUsecase "aadash-backend/internal/metrics/usecase"
	mirrordomain "aadash-backend/internal/mirror/domain"
	mirrorRepo "aadash-backend/internal/mirror/repository"
	syncDelivery "aadash-backend/internal/sync/delivery"
	syncScheduler "aadash-backend/internal/sync/scheduler"
	syncUsecase "aadash-backend/internal/sync/usecase"
	"aadash-backend/pkg/config"
	"aadash-backend/pkg/database"
	"aadash-backend/pkg/upstream"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&mirrordomain.Account{},
		&mirrordomain.Course{},
		&mirrordomain.Assignment{},
		&mirrordomain.ConversationStarter{},
		&mirrordomain.Conversation{},
		&mirrordomain.Message{},
		&mirrordomain.SyncCheckpoint{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	mirrorRepository := mirrorRepo.NewMirrorRepository(db)
	checkpointRepository := mirrorRepo.NewCheckpointRepository(db)
	metricsRepository := metricsRepo.NewMetricsRepository(db)

	// Upstream API client
	if cfg.BubbleAPIKey == "" {
		log.Printf("[WARN] BUBBLE_API_KEY_LIVE not configured, sync operations will be rejected")
	}
	upstreamClient := upstream.NewClient(cfg.BubbleBaseURL, cfg.BubbleAPIKey, cfg.UpstreamTimeout)

	// Sync pipeline
	reconciler := syncUsecase.NewReconciler(mirrorRepository)
	runner := syncUsecase.NewRunner(upstreamClient, reconciler, mirrorRepository)
	orchestrator := syncUsecase.NewOrchestrator(upstreamClient, runner, mirrorRepository, checkpointRepository)
	sessions := syncUsecase.NewSessionRegistry()

	// Dashboard read side
	metricsUsecaseInstance := metricsUsecase.NewMetricsUsecase(metricsRepository)

	// Completed sync passes invalidate cached dashboard aggregates
	orchestrator.SetCacheInvalidator(metricsUsecaseInstance.Invalidate)

	// Hourly background sync
	sched := syncScheduler.NewHourlySyncScheduler(orchestrator, checkpointRepository, cfg.SyncInterval, cfg.SyncBatchSize)
	if cfg.HourlySyncEnable {
		sched.Start()
		log.Printf("[Scheduler] Hourly sync scheduler started (interval %s)", cfg.SyncInterval)
	} else {
		log.Printf("[Scheduler] Hourly sync disabled by configuration")
	}

	// HTTP handlers
	syncHandler := syncDelivery.NewSyncHandler(orchestrator, sessions, checkpointRepository, sched)
	metricsHandler := metricsDelivery.NewMetricsHandler(metricsUsecaseInstance)

	handler := api.NewHandler(syncHandler, metricsHandler, cfg)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
