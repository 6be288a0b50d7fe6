package repository

import "aadash-backend/internal/mirror/domain"

// CheckpointRepository persists the per-data-type sync watermark and status.
type CheckpointRepository interface {
	// GetOrCreate returns the checkpoint row, creating a pending one on
	// first encounter.
	GetOrCreate(dataType string) (*domain.SyncCheckpoint, error)
	// MarkSyncing flips the row to syncing before a run starts.
	MarkSyncing(dataType string) error
	// MarkCompleted stamps last_sync_date and the record count. Incremental
	// runs add count to the cumulative total; full runs replace it.
	MarkCompleted(dataType string, count int, incremental bool) error
	// MarkFailed records the failure without touching the watermark.
	MarkFailed(dataType string, errMsg string) error
	List() ([]*domain.SyncCheckpoint, error)
	// HasAnyCompleted reports whether any entity type ever finished a sync;
	// used for first-sync detection.
	HasAnyCompleted() (bool, error)
}
