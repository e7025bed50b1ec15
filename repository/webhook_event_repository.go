package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"gorm.io/gorm"
)

// WebhookEventRepositoryImpl implements WebhookEventRepository interface
type WebhookEventRepositoryImpl struct {
	*BaseRepository[models.WebhookEvent, models.WebhookEventFilter]
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &WebhookEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WebhookEvent, models.WebhookEventFilter](db, applyWebhookEventFilter),
	}
}

func applyWebhookEventFilter(query *gorm.DB, filter models.WebhookEventFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.ProviderMessageID != nil {
		query = query.Where("provider_message_id = ?", *filter.ProviderMessageID)
	}
	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	if filter.Processed != nil {
		query = query.Where("processed = ?", *filter.Processed)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.MaxAttempts != nil {
		query = query.Where("attempts < ?", *filter.MaxAttempts)
	}
	return query
}

// MarkProcessed flags the event as applied; note is kept as last_error for no-op outcomes
func (r *WebhookEventRepositoryImpl) MarkProcessed(ctx context.Context, id uint, note *string, at time.Time) error {
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Model(&models.WebhookEvent{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"processed":    true,
				"processed_at": at,
				"last_error":   note,
				"attempts":     gorm.Expr("attempts + 1"),
				"updated_at":   at,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to mark webhook event %d processed: %w", id, err)
		}
		return nil
	})
}

// RecordFailure counts a failed application attempt and leaves the event unprocessed
func (r *WebhookEventRepositoryImpl) RecordFailure(ctx context.Context, id uint, reason string) error {
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Model(&models.WebhookEvent{}).
			Where("id = ? AND processed = ?", id, false).
			Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": reason,
				"updated_at": utils.UTCNow(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to record webhook event %d failure: %w", id, err)
		}
		return nil
	})
}

func (r *WebhookEventRepositoryImpl) ListReconcilable(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]*models.WebhookEvent, error) {
	query := r.getDB(ctx).Model(&models.WebhookEvent{}).
		Where("processed = ? AND created_at < ?", false, cutoff).
		Where("event_type <> ?", models.WebhookEventUnsupported).
		Where("NOT EXISTS (SELECT 1 FROM queue_tasks qt WHERE qt.kind = ? AND qt.reference_id = webhook_events.id AND qt.completed_at IS NULL)",
			models.QueueTaskProcessWebhookEvent)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []*models.WebhookEvent
	if err := query.Order("id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list reconcilable webhook events: %w", err)
	}
	return events, nil
}
