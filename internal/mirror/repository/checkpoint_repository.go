package repository

import (
	"time"

	"aadash-backend/internal/mirror/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type checkpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) GetOrCreate(dataType string) (*domain.SyncCheckpoint, error) {
	var checkpoint domain.SyncCheckpoint
	err := r.db.Where("data_type = ?", dataType).First(&checkpoint).Error
	if err == gorm.ErrRecordNotFound {
		now := time.Now().UTC()
		checkpoint = domain.SyncCheckpoint{
			ID:        uuid.New().String(),
			DataType:  dataType,
			Status:    domain.SyncStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.db.Create(&checkpoint).Error; err != nil {
			return nil, err
		}
		return &checkpoint, nil
	}
	if err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) MarkSyncing(dataType string) error {
	checkpoint, err := r.GetOrCreate(dataType)
	if err != nil {
		return err
	}
	checkpoint.Status = domain.SyncStatusSyncing
	checkpoint.UpdatedAt = time.Now().UTC()
	return r.db.Save(checkpoint).Error
}

func (r *checkpointRepository) MarkCompleted(dataType string, count int, incremental bool) error {
	checkpoint, err := r.GetOrCreate(dataType)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	checkpoint.Status = domain.SyncStatusCompleted
	checkpoint.LastSyncDate = &now
	if incremental {
		checkpoint.TotalRecords += count
	} else {
		checkpoint.TotalRecords = count
	}
	checkpoint.ErrorMessage = nil
	checkpoint.UpdatedAt = now
	return r.db.Save(checkpoint).Error
}

func (r *checkpointRepository) MarkFailed(dataType string, errMsg string) error {
	checkpoint, err := r.GetOrCreate(dataType)
	if err != nil {
		return err
	}
	checkpoint.Status = domain.SyncStatusFailed
	checkpoint.ErrorMessage = &errMsg
	checkpoint.UpdatedAt = time.Now().UTC()
	return r.db.Save(checkpoint).Error
}

func (r *checkpointRepository) List() ([]*domain.SyncCheckpoint, error) {
	var checkpoints []*domain.SyncCheckpoint
	err := r.db.Order("data_type").Find(&checkpoints).Error
	return checkpoints, err
}

func (r *checkpointRepository) HasAnyCompleted() (bool, error) {
	var count int64
	err := r.db.Model(&domain.SyncCheckpoint{}).
		Where("data_type <> ? AND last_sync_date IS NOT NULL", domain.ScheduledSyncType).
		Count(&count).Error
	return count > 0, err
}
