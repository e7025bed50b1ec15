package models

import (
	"time"
)

// QueueTaskKind names the handler a task is dispatched to
type QueueTaskKind string

const (
	QueueTaskSendMessage         QueueTaskKind = "send_message"
	QueueTaskProcessWebhookEvent QueueTaskKind = "process_webhook_event"
)

// QueueTask is one unit of background work stored in the task table.
// A worker claims it by stamping ReservedAt/ReservedBy; a stale reservation
// (crashed worker) becomes claimable again after the visibility timeout.
type QueueTask struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Kind        QueueTaskKind `gorm:"type:varchar(32);not null;index:idx_queue_tasks_kind" json:"kind"`
	ReferenceID uint          `gorm:"not null;index:idx_queue_tasks_reference" json:"reference_id"`
	CampaignID  *uint         `gorm:"index:idx_queue_tasks_campaign_id" json:"campaign_id,omitempty"`

	AvailableAt time.Time  `gorm:"not null;index:idx_queue_tasks_due,priority:2" json:"available_at"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int        `gorm:"not null;default:5" json:"max_attempts"`
	ReservedAt  *time.Time `json:"reserved_at,omitempty"`
	ReservedBy  *string    `gorm:"size:64" json:"reserved_by,omitempty"`
	CompletedAt *time.Time `gorm:"index:idx_queue_tasks_due,priority:1" json:"completed_at,omitempty"`
	Cancelled   bool       `gorm:"not null" json:"cancelled"`
	LastError   *string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QueueTask) TableName() string {
	return "queue_tasks"
}

// NewSendMessageTask builds a send task for one message log
func NewSendMessageTask(messageLogID, campaignID uint, availableAt time.Time, maxAttempts int) QueueTask {
	cid := campaignID
	return QueueTask{
		Kind:        QueueTaskSendMessage,
		ReferenceID: messageLogID,
		CampaignID:  &cid,
		AvailableAt: availableAt,
		MaxAttempts: maxAttempts,
	}
}

// NewProcessWebhookTask builds a task that applies one webhook event
func NewProcessWebhookTask(eventID uint, availableAt time.Time, maxAttempts int) QueueTask {
	return QueueTask{
		Kind:        QueueTaskProcessWebhookEvent,
		ReferenceID: eventID,
		AvailableAt: availableAt,
		MaxAttempts: maxAttempts,
	}
}

// QueueTaskFilter represents filter criteria for queue task queries
type QueueTaskFilter struct {
	ID          *uint
	Kind        *QueueTaskKind
	ReferenceID *uint
	CampaignID  *uint
	Open        *bool
}
