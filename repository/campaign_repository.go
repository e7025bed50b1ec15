package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db, applyCampaignFilter),
	}
}

func applyCampaignFilter(query *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.TemplateID != nil {
		query = query.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.WhatsAppNumberID != nil {
		query = query.Where("whatsapp_number_id = ?", *filter.WhatsAppNumberID)
	}
	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	return r.byUUID(ctx, uuid)
}

func (r *CampaignRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, to models.CampaignStatus, updates map[string]any) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("no source status given for campaign %d", id)
	}

	values := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range updates {
		values[k] = v
	}

	var moved bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Campaign{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(values)
		if res.Error != nil {
			return fmt.Errorf("failed to update campaign %d status: %w", id, res.Error)
		}
		moved = res.RowsAffected == 1
		return nil
	})
	return moved, err
}

// UpdateCounters overwrites the cached counters with a fresh aggregate
func (r *CampaignRepositoryImpl) UpdateCounters(ctx context.Context, id uint, counters models.CampaignCounters) error {
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Model(&models.Campaign{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"pending_count":   counters.Pending,
				"sent_count":      counters.Sent,
				"delivered_count": counters.Delivered,
				"read_count":      counters.Read,
				"failed_count":    counters.Failed,
				"updated_at":      utils.UTCNow(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update campaign %d counters: %w", id, err)
		}
		return nil
	})
}

func (r *CampaignRepositoryImpl) SetTotalMessages(ctx context.Context, id uint, total uint64) error {
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Model(&models.Campaign{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"total_messages": total,
				"pending_count":  total,
				"updated_at":     utils.UTCNow(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to set campaign %d total: %w", id, err)
		}
		return nil
	})
}
