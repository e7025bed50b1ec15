package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a message recipient. Mobile is stored in E.164 form.
type Contact struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_contacts_uuid" json:"uuid"`

	Name   string  `gorm:"size:255;not null" json:"name"`
	Mobile string  `gorm:"size:20;not null;uniqueIndex:uk_contacts_mobile" json:"mobile"`
	Email  *string `gorm:"size:255" json:"email,omitempty"`

	IsActive  *bool     `gorm:"default:true;index:idx_contacts_is_active" json:"is_active"`
	CreatedAt time.Time `gorm:"index:idx_contacts_created_at" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// ContactFilter represents filter criteria for contact queries
type ContactFilter struct {
	ID       *uint
	IDs      []uint
	UUID     *uuid.UUID
	Name     *string
	Mobile   *string
	IsActive *bool
}
