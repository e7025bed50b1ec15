package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository interface
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db, applyContactFilter),
	}
}

func applyContactFilter(query *gorm.DB, filter models.ContactFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.IDs != nil {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(*filter.Name)+"%")
	}
	if filter.Mobile != nil {
		query = query.Where("mobile = ?", *filter.Mobile)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

func (r *ContactRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Contact, error) {
	return r.byUUID(ctx, uuid)
}

func (r *ContactRepositoryImpl) ByMobile(ctx context.Context, mobile string) (*models.Contact, error) {
	return r.byColumn(ctx, "mobile", mobile)
}

func (r *ContactRepositoryImpl) Update(ctx context.Context, contact *models.Contact) error {
	if contact == nil {
		return errors.New("contact payload is nil")
	}
	if contact.ID == 0 {
		return errors.New("contact ID is required for update")
	}
	return r.BaseRepository.Update(ctx, contact)
}

// Delete removes a contact row; reference checks belong to the caller
func (r *ContactRepositoryImpl) Delete(ctx context.Context, id uint) error {
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Delete(&models.Contact{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete contact: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("contact %d not found", id)
		}
		return nil
	})
}
