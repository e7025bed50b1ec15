package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"gorm.io/gorm"
)

// QueueTaskRepositoryImpl implements QueueTaskRepository interface.
// Rows are claimed with a per-row conditional update, so several worker
// processes can poll the same table without double delivery.
type QueueTaskRepositoryImpl struct {
	*BaseRepository[models.QueueTask, models.QueueTaskFilter]
}

// NewQueueTaskRepository creates a new queue task repository
func NewQueueTaskRepository(db *gorm.DB) QueueTaskRepository {
	return &QueueTaskRepositoryImpl{
		BaseRepository: NewBaseRepository[models.QueueTask, models.QueueTaskFilter](db, applyQueueTaskFilter),
	}
}

func applyQueueTaskFilter(query *gorm.DB, filter models.QueueTaskFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Open != nil {
		if *filter.Open {
			query = query.Where("completed_at IS NULL")
		} else {
			query = query.Where("completed_at IS NOT NULL")
		}
	}
	return query
}

func (r *QueueTaskRepositoryImpl) Claim(ctx context.Context, workerID string, now time.Time, visibilityTimeout time.Duration, limit int) ([]*models.QueueTask, error) {
	db := r.getDB(ctx)
	staleCutoff := now.Add(-visibilityTimeout)

	var candidates []*models.QueueTask
	err := db.Model(&models.QueueTask{}).
		Where("completed_at IS NULL AND available_at <= ?", now).
		Where("reserved_at IS NULL OR reserved_at < ?", staleCutoff).
		Order("available_at ASC, id ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}

	claimed := make([]*models.QueueTask, 0, len(candidates))
	for _, task := range candidates {
		res := db.Model(&models.QueueTask{}).
			Where("id = ? AND completed_at IS NULL", task.ID).
			Where("reserved_at IS NULL OR reserved_at < ?", staleCutoff).
			Updates(map[string]any{
				"reserved_at": now,
				"reserved_by": workerID,
				"updated_at":  now,
			})
		if res.Error != nil {
			return claimed, fmt.Errorf("failed to claim task %d: %w", task.ID, res.Error)
		}
		if res.RowsAffected != 1 {
			continue
		}
		reservedAt := now
		reservedBy := workerID
		task.ReservedAt = &reservedAt
		task.ReservedBy = &reservedBy
		claimed = append(claimed, task)
	}

	return claimed, nil
}

func (r *QueueTaskRepositoryImpl) Complete(ctx context.Context, id uint, at time.Time) error {
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Model(&models.QueueTask{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"completed_at": at,
				"attempts":     gorm.Expr("attempts + 1"),
				"updated_at":   at,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to complete task %d: %w", id, err)
		}
		return nil
	})
}

func (r *QueueTaskRepositoryImpl) Fail(ctx context.Context, id uint, reason string, retryAt *time.Time, at time.Time) error {
	values := map[string]any{
		"attempts":    gorm.Expr("attempts + 1"),
		"last_error":  reason,
		"reserved_at": nil,
		"reserved_by": nil,
		"updated_at":  at,
	}
	if retryAt != nil {
		values["available_at"] = *retryAt
	} else {
		values["completed_at"] = at
	}

	return r.write(ctx, func(db *gorm.DB) error {
		if err := db.Model(&models.QueueTask{}).Where("id = ?", id).Updates(values).Error; err != nil {
			return fmt.Errorf("failed to record failure for task %d: %w", id, err)
		}
		return nil
	})
}

// CancelOpenByCampaign closes every unreserved open task of a campaign
func (r *QueueTaskRepositoryImpl) CancelOpenByCampaign(ctx context.Context, campaignID uint, at time.Time) (int64, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.QueueTask{}).
			Where("campaign_id = ? AND completed_at IS NULL AND reserved_at IS NULL", campaignID).
			Updates(map[string]any{
				"cancelled":    true,
				"completed_at": at,
				"updated_at":   at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel tasks of campaign %d: %w", campaignID, res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}
