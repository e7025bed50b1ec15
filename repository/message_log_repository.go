package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"gorm.io/gorm"
)

// MessageLogRepositoryImpl implements MessageLogRepository interface.
// Every status write is a conditional update on the current status, so the
// send task and the webhook processor never overwrite each other backwards.
type MessageLogRepositoryImpl struct {
	*BaseRepository[models.MessageLog, models.MessageLogFilter]
}

// NewMessageLogRepository creates a new message log repository
func NewMessageLogRepository(db *gorm.DB) MessageLogRepository {
	return &MessageLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageLog, models.MessageLogFilter](db, applyMessageLogFilter),
	}
}

func applyMessageLogFilter(query *gorm.DB, filter models.MessageLogFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.ContactID != nil {
		query = query.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.TemplateID != nil {
		query = query.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ProviderMessageID != nil {
		query = query.Where("provider_message_id = ?", *filter.ProviderMessageID)
	}
	return query
}

func (r *MessageLogRepositoryImpl) ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.MessageLog, error) {
	return r.byColumn(ctx, "provider_message_id", providerMessageID)
}

func (r *MessageLogRepositoryImpl) ListByCampaignAndStatus(ctx context.Context, campaignID uint, status models.MessageLogStatus) ([]*models.MessageLog, error) {
	filter := models.MessageLogFilter{CampaignID: &campaignID, Status: &status}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// CountByStatus returns a status histogram for one campaign in a single query
func (r *MessageLogRepositoryImpl) CountByStatus(ctx context.Context, campaignID uint) (map[models.MessageLogStatus]uint64, error) {
	var rows []struct {
		Status models.MessageLogStatus
		Total  uint64
	}

	err := r.getDB(ctx).Model(&models.MessageLog{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate message logs for campaign %d: %w", campaignID, err)
	}

	out := make(map[models.MessageLogStatus]uint64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r *MessageLogRepositoryImpl) Transition(ctx context.Context, id uint, to models.MessageLogStatus, updates map[string]any) (bool, error) {
	from := to.Predecessors()
	if len(from) == 0 {
		return false, fmt.Errorf("status %s is not reachable by a forward transition", to)
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
		res := db.Model(&models.MessageLog{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(values)
		if res.Error != nil {
			return fmt.Errorf("failed to move message log %d to %s: %w", id, to, res.Error)
		}
		moved = res.RowsAffected == 1
		return nil
	})
	return moved, err
}

func (r *MessageLogRepositoryImpl) ResetForRetry(ctx context.Context, id uint) (bool, error) {
	var moved bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.MessageLog{}).
			Where("id = ? AND status = ?", id, models.MessageLogStatusFailed).
			Updates(map[string]any{
				"status":              models.MessageLogStatusPending,
				"error_message":       nil,
				"provider_message_id": nil,
				"failed_at":           nil,
				"retry_count":         gorm.Expr("retry_count + 1"),
				"updated_at":          utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reset message log %d: %w", id, res.Error)
		}
		moved = res.RowsAffected == 1
		return nil
	})
	return moved, err
}

// FailPendingByCampaign fails every still-pending message of a campaign
func (r *MessageLogRepositoryImpl) FailPendingByCampaign(ctx context.Context, campaignID uint, reason string, at time.Time) (int64, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.MessageLog{}).
			Where("campaign_id = ? AND status = ?", campaignID, models.MessageLogStatusPending).
			Updates(map[string]any{
				"status":        models.MessageLogStatusFailed,
				"error_message": reason,
				"failed_at":     at,
				"updated_at":    at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to fail pending messages of campaign %d: %w", campaignID, res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

// FailPending fails one message only while it is still pending
func (r *MessageLogRepositoryImpl) FailPending(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	var moved bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.MessageLog{}).
			Where("id = ? AND status = ?", id, models.MessageLogStatusPending).
			Updates(map[string]any{
				"status":        models.MessageLogStatusFailed,
				"error_message": reason,
				"failed_at":     at,
				"updated_at":    at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to fail message log %d: %w", id, res.Error)
		}
		moved = res.RowsAffected == 1
		return nil
	})
	return moved, err
}

// AttachProviderMessageID records the provider id on a row that has none,
// whatever its status
func (r *MessageLogRepositoryImpl) AttachProviderMessageID(ctx context.Context, id uint, providerMessageID string) (bool, error) {
	var attached bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.MessageLog{}).
			Where("id = ? AND (provider_message_id IS NULL OR provider_message_id = '')", id).
			Updates(map[string]any{
				"provider_message_id": providerMessageID,
				"updated_at":          utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to attach provider message id to message log %d: %w", id, res.Error)
		}
		attached = res.RowsAffected == 1
		return nil
	})
	return attached, err
}
