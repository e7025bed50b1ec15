package repository

import (
	"context"
	"errors"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"gorm.io/gorm"
)

// WhatsAppNumberRepositoryImpl implements WhatsAppNumberRepository interface
type WhatsAppNumberRepositoryImpl struct {
	*BaseRepository[models.WhatsAppNumber, models.WhatsAppNumberFilter]
}

// NewWhatsAppNumberRepository creates a new sender number repository
func NewWhatsAppNumberRepository(db *gorm.DB) WhatsAppNumberRepository {
	return &WhatsAppNumberRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WhatsAppNumber, models.WhatsAppNumberFilter](db, applyWhatsAppNumberFilter),
	}
}

func applyWhatsAppNumberFilter(query *gorm.DB, filter models.WhatsAppNumberFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.PhoneNumberID != nil {
		query = query.Where("phone_number_id = ?", *filter.PhoneNumberID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

func (r *WhatsAppNumberRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.WhatsAppNumber, error) {
	return r.byUUID(ctx, uuid)
}

func (r *WhatsAppNumberRepositoryImpl) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppNumber, error) {
	return r.byColumn(ctx, "phone_number_id", phoneNumberID)
}

func (r *WhatsAppNumberRepositoryImpl) Update(ctx context.Context, number *models.WhatsAppNumber) error {
	if number == nil {
		return errors.New("whatsapp number payload is nil")
	}
	if number.ID == 0 {
		return errors.New("whatsapp number ID is required for update")
	}
	return r.BaseRepository.Update(ctx, number)
}
