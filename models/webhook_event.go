package models

import (
	"strings"
	"time"
)

// WebhookEventType classifies a provider status callback
type WebhookEventType string

const (
	WebhookEventMessageSent      WebhookEventType = "message_sent"
	WebhookEventMessageDelivered WebhookEventType = "message_delivered"
	WebhookEventMessageRead      WebhookEventType = "message_read"
	WebhookEventMessageFailed    WebhookEventType = "message_failed"
	WebhookEventUnsupported      WebhookEventType = "unsupported"
)

// WebhookEventTypeFor maps a provider status string to an event type
func WebhookEventTypeFor(status string) (WebhookEventType, bool) {
	switch status {
	case "sent":
		return WebhookEventMessageSent, true
	case "delivered":
		return WebhookEventMessageDelivered, true
	case "read":
		return WebhookEventMessageRead, true
	case "failed":
		return WebhookEventMessageFailed, true
	default:
		return WebhookEventUnsupported, false
	}
}

// TargetStatus is the message log status an event moves a message to
func (t WebhookEventType) TargetStatus() (MessageLogStatus, bool) {
	switch t {
	case WebhookEventMessageSent:
		return MessageLogStatusSent, true
	case WebhookEventMessageDelivered:
		return MessageLogStatusDelivered, true
	case WebhookEventMessageRead:
		return MessageLogStatusRead, true
	case WebhookEventMessageFailed:
		return MessageLogStatusFailed, true
	default:
		return "", false
	}
}

// WebhookEvent is the durable intake record of one status callback.
// It is persisted before interpretation and applied asynchronously.
type WebhookEvent struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	EventType         WebhookEventType `gorm:"type:varchar(32);not null;index:idx_webhook_events_event_type" json:"event_type"`
	ProviderMessageID string           `gorm:"size:255;not null;index:idx_webhook_events_provider_message_id" json:"provider_message_id"`
	Status            string           `gorm:"size:32;not null" json:"status"`
	RecipientID       *string          `gorm:"size:32" json:"recipient_id,omitempty"`
	OccurredAt        *time.Time       `json:"occurred_at,omitempty"`
	Payload           RawJSON          `gorm:"type:jsonb" json:"payload"`

	Processed   bool       `gorm:"not null;index:idx_webhook_events_processed" json:"processed"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   *string    `gorm:"type:text" json:"last_error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index:idx_webhook_events_created_at" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// WebhookDecodeErrorPrefix marks the last error of an item that did not
// decode as a status callback
const WebhookDecodeErrorPrefix = "undecodable status item: "

// Decoded reports whether the stored payload parsed as a status callback
func (e *WebhookEvent) Decoded() bool {
	return e.LastError == nil || !strings.HasPrefix(*e.LastError, WebhookDecodeErrorPrefix)
}

// WebhookEventFilter represents filter criteria for webhook event queries
type WebhookEventFilter struct {
	ID                *uint
	ProviderMessageID *string
	EventType         *WebhookEventType
	Processed         *bool
	CreatedBefore     *time.Time
	MaxAttempts       *int
}
