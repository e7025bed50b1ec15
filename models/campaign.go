package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the lifecycle of a campaign
type CampaignStatus string

const (
	CampaignStatusPending    CampaignStatus = "PENDING"
	CampaignStatusProcessing CampaignStatus = "PROCESSING"
	CampaignStatusCompleted  CampaignStatus = "COMPLETED"
	CampaignStatusFailed     CampaignStatus = "FAILED"
	CampaignStatusCancelled  CampaignStatus = "CANCELLED"
)

func (s CampaignStatus) String() string {
	return string(s)
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusPending, CampaignStatusProcessing, CampaignStatusCompleted,
		CampaignStatusFailed, CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal lifecycle move.
// COMPLETED -> PROCESSING happens only when failed messages are retried.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignStatusPending:
		return next == CampaignStatusProcessing || next == CampaignStatusFailed || next == CampaignStatusCancelled
	case CampaignStatusProcessing:
		return next == CampaignStatusCompleted || next == CampaignStatusCancelled
	case CampaignStatusCompleted:
		return next == CampaignStatusProcessing
	default:
		return false
	}
}

func (s *CampaignStatus) Scan(value any) error {
	v, err := scanString(value, "CampaignStatus")
	*s = CampaignStatus(v)
	return err
}

func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid campaign status: %s", s)
	}
	return string(s), nil
}

// Campaign sends one approved template to a set of contacts through one sender.
// The counters are a cache over message_logs and are always recomputed
// wholesale, never incremented.
type Campaign struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`

	Name             string         `gorm:"size:255;not null" json:"name"`
	WhatsAppNumberID uint           `gorm:"not null;index:idx_campaigns_whatsapp_number_id" json:"whatsapp_number_id"`
	TemplateID       uint           `gorm:"not null;index:idx_campaigns_template_id" json:"template_id"`
	Status           CampaignStatus `gorm:"type:varchar(20);not null;index:idx_campaigns_status" json:"status"`
	FailureReason    *string        `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedBy        *uint          `gorm:"index:idx_campaigns_created_by" json:"created_by,omitempty"`

	TotalMessages  uint64 `gorm:"not null;default:0" json:"total_messages"`
	PendingCount   uint64 `gorm:"not null;default:0" json:"pending_count"`
	SentCount      uint64 `gorm:"not null;default:0" json:"sent_count"`
	DeliveredCount uint64 `gorm:"not null;default:0" json:"delivered_count"`
	ReadCount      uint64 `gorm:"not null;default:0" json:"read_count"`
	FailedCount    uint64 `gorm:"not null;default:0" json:"failed_count"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// ApplyCounters copies aggregated counters onto the campaign row
func (c *Campaign) ApplyCounters(counters CampaignCounters) {
	c.PendingCount = counters.Pending
	c.SentCount = counters.Sent
	c.DeliveredCount = counters.Delivered
	c.ReadCount = counters.Read
	c.FailedCount = counters.Failed
}

// CampaignCounters is the aggregate view of a campaign's message logs.
// Sent includes every row that reached the provider (SENT, DELIVERED, READ),
// Delivered includes READ.
type CampaignCounters struct {
	Total     uint64 `json:"total"`
	Pending   uint64 `json:"pending"`
	Sent      uint64 `json:"sent"`
	Delivered uint64 `json:"delivered"`
	Read      uint64 `json:"read"`
	Failed    uint64 `json:"failed"`
}

// CountersFromStatuses folds a status -> count histogram into counters
func CountersFromStatuses(byStatus map[MessageLogStatus]uint64) CampaignCounters {
	var c CampaignCounters
	for status, n := range byStatus {
		c.Total += n
		switch status {
		case MessageLogStatusPending:
			c.Pending += n
		case MessageLogStatusSent:
			c.Sent += n
		case MessageLogStatusDelivered:
			c.Sent += n
			c.Delivered += n
		case MessageLogStatusRead:
			c.Sent += n
			c.Delivered += n
			c.Read += n
		case MessageLogStatusFailed:
			c.Failed += n
		}
	}
	return c
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID               *uint
	UUID             *uuid.UUID
	Status           *CampaignStatus
	Statuses         []CampaignStatus
	TemplateID       *uint
	WhatsAppNumberID *uint
	CreatedBy        *uint
	CreatedAfter     *time.Time
	CreatedBefore    *time.Time
}
