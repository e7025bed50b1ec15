package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// MessageLogStatus is the delivery state of one message.
// Progress only moves forward: PENDING -> SENT -> DELIVERED -> READ, with
// FAILED reachable from PENDING or SENT. Skipping forward (SENT -> READ) is
// allowed since delivery callbacks can be lost. FAILED -> PENDING is only
// performed by an explicit retry.
type MessageLogStatus string

const (
	MessageLogStatusPending   MessageLogStatus = "PENDING"
	MessageLogStatusSent      MessageLogStatus = "SENT"
	MessageLogStatusDelivered MessageLogStatus = "DELIVERED"
	MessageLogStatusRead      MessageLogStatus = "READ"
	MessageLogStatusFailed    MessageLogStatus = "FAILED"
)

func (s MessageLogStatus) String() string {
	return string(s)
}

func (s MessageLogStatus) Valid() bool {
	switch s {
	case MessageLogStatusPending, MessageLogStatusSent, MessageLogStatusDelivered,
		MessageLogStatusRead, MessageLogStatusFailed:
		return true
	default:
		return false
	}
}

// Predecessors lists the states from which next may be entered through a
// forward transition. PENDING has none; it is only re-entered by a retry.
func (next MessageLogStatus) Predecessors() []MessageLogStatus {
	switch next {
	case MessageLogStatusSent:
		return []MessageLogStatus{MessageLogStatusPending}
	case MessageLogStatusDelivered:
		return []MessageLogStatus{MessageLogStatusSent}
	case MessageLogStatusRead:
		return []MessageLogStatus{MessageLogStatusSent, MessageLogStatusDelivered}
	case MessageLogStatusFailed:
		return []MessageLogStatus{MessageLogStatusPending, MessageLogStatusSent}
	default:
		return nil
	}
}

// CanTransitionTo reports whether s -> next is a forward transition
func (s MessageLogStatus) CanTransitionTo(next MessageLogStatus) bool {
	for _, p := range next.Predecessors() {
		if p == s {
			return true
		}
	}
	return false
}

// CanRetry reports whether an operator retry may reset s to PENDING
func (s MessageLogStatus) CanRetry() bool {
	return s == MessageLogStatusFailed
}

// IsTerminal reports whether no further provider callback can move s
func (s MessageLogStatus) IsTerminal() bool {
	return s == MessageLogStatusRead || s == MessageLogStatusFailed
}

func (s *MessageLogStatus) Scan(value any) error {
	v, err := scanString(value, "MessageLogStatus")
	*s = MessageLogStatus(v)
	return err
}

func (s MessageLogStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid message log status: %s", s)
	}
	return string(s), nil
}

// MessageLog tracks one (campaign, contact) message: the rendered snapshot,
// the raw variables used to build provider parameters, and its delivery state.
type MessageLog struct {
	ID               uint `gorm:"primaryKey" json:"id"`
	CampaignID       uint `gorm:"not null;index:idx_message_logs_campaign_status,priority:1" json:"campaign_id"`
	ContactID        uint `gorm:"not null;index:idx_message_logs_contact_id" json:"contact_id"`
	WhatsAppNumberID uint `gorm:"not null" json:"whatsapp_number_id"`
	TemplateID       uint `gorm:"not null" json:"template_id"`

	Mobile    string    `gorm:"size:20;not null" json:"mobile"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Variables StringMap `gorm:"type:jsonb" json:"variables"`

	Status            MessageLogStatus `gorm:"type:varchar(20);not null;index:idx_message_logs_campaign_status,priority:2" json:"status"`
	ProviderMessageID *string          `gorm:"size:255;index:idx_message_logs_provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage      *string          `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount        int              `gorm:"not null;default:0" json:"retry_count"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (MessageLog) TableName() string {
	return "message_logs"
}

// MessageLogFilter represents filter criteria for message log queries
type MessageLogFilter struct {
	ID                *uint
	CampaignID        *uint
	ContactID         *uint
	TemplateID        *uint
	Status            *MessageLogStatus
	ProviderMessageID *string
}
