package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db, applyAuditLogFilter),
	}
}

func applyAuditLogFilter(query *gorm.DB, filter models.AuditLogFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.OperatorID != nil {
		query = query.Where("operator_id = ?", *filter.OperatorID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	if filter.RequestID != nil {
		query = query.Where("request_id = ?", *filter.RequestID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ListByOperator retrieves audit logs for a specific operator
func (r *AuditLogRepositoryImpl) ListByOperator(ctx context.Context, operatorID uint, limit, offset int) ([]*models.AuditLog, error) {
	logs, err := r.ByFilter(ctx, models.AuditLogFilter{OperatorID: &operatorID}, "created_at DESC", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs by operator: %w", err)
	}
	return logs, nil
}

// ListByAction retrieves audit logs for a specific action
func (r *AuditLogRepositoryImpl) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	logs, err := r.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "created_at DESC", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs by action: %w", err)
	}
	return logs, nil
}
