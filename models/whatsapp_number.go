package models

import (
	"time"

	"github.com/google/uuid"
)

// WhatsAppNumber is a sender registered with the WhatsApp Cloud API.
// Table: whatsapp_numbers
// Unique by PhoneNumberID (provider identifier)
// AccessToken is write-only and never rendered to JSON
type WhatsAppNumber struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_whatsapp_numbers_uuid" json:"uuid"`

	PhoneNumberID      string  `gorm:"size:64;not null;uniqueIndex:uk_whatsapp_numbers_phone_number_id" json:"phone_number_id"`
	AccessToken        string  `gorm:"type:text;not null" json:"-"`
	DisplayPhoneNumber string  `gorm:"size:32;not null" json:"display_phone_number"`
	DisplayName        *string `gorm:"size:255" json:"display_name,omitempty"`

	IsActive       *bool      `gorm:"default:true;index:idx_whatsapp_numbers_is_active" json:"is_active"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (WhatsAppNumber) TableName() string {
	return "whatsapp_numbers"
}

// WhatsAppNumberFilter represents filter criteria for sender queries
type WhatsAppNumberFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	PhoneNumberID *string
	IsActive      *bool
}
