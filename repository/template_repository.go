package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"gorm.io/gorm"
)

// TemplateRepositoryImpl implements TemplateRepository interface
type TemplateRepositoryImpl struct {
	*BaseRepository[models.Template, models.TemplateFilter]
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &TemplateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Template, models.TemplateFilter](db, applyTemplateFilter),
	}
}

func applyTemplateFilter(query *gorm.DB, filter models.TemplateFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(*filter.Name)+"%")
	}
	if filter.Language != nil {
		query = query.Where("language = ?", *filter.Language)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

func (r *TemplateRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Template, error) {
	return r.byUUID(ctx, uuid)
}

// ByName retrieves a template by its exact unique name
func (r *TemplateRepositoryImpl) ByName(ctx context.Context, name string) (*models.Template, error) {
	return r.byColumn(ctx, "name", name)
}

func (r *TemplateRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.TemplateStatus, rejectionReason *string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("template status %s cannot move to %s", from, to)
	}

	var moved bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Template{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]any{
				"status":           to,
				"rejection_reason": rejectionReason,
				"updated_at":       utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update template status: %w", res.Error)
		}
		moved = res.RowsAffected == 1
		return nil
	})
	return moved, err
}

// Update rewrites mutable template fields; the caller checks editability
func (r *TemplateRepositoryImpl) Update(ctx context.Context, template *models.Template) error {
	if template == nil {
		return errors.New("template payload is nil")
	}
	if template.ID == 0 {
		return errors.New("template ID is required for update")
	}
	return r.BaseRepository.Update(ctx, template)
}
