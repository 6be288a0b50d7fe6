package domain

import "time"

// Checkpoint statuses. Transitions: pending -> syncing -> completed | failed.
const (
	SyncStatusPending   = "pending"
	SyncStatusSyncing   = "syncing"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// ScheduledSyncType is the checkpoint row the scheduler writes its pass
// outcomes to. It is not a real entity type and never takes part in syncs.
const ScheduledSyncType = "scheduled_sync"

// SyncCheckpoint is the per-data-type watermark driving incremental syncs.
type SyncCheckpoint struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	DataType         string     `json:"data_type" gorm:"size:50;uniqueIndex;not null"`
	LastSyncDate     *time.Time `json:"last_sync_date"`
	LastModifiedDate *time.Time `json:"last_modified_date"`
	TotalRecords     int        `json:"total_records"`
	Status           string     `json:"status" gorm:"size:50;default:pending"`
	ErrorMessage     *string    `json:"error_message" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (SyncCheckpoint) TableName() string { return "sync_checkpoints" }
