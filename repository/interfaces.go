// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// TemplateRepository defines operations for message templates
type TemplateRepository interface {
	Repository[models.Template, models.TemplateFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Template, error)
	ByName(ctx context.Context, name string) (*models.Template, error)
	Update(ctx context.Context, template *models.Template) error
	// TransitionStatus moves the template from -> to only if it is still in from
	TransitionStatus(ctx context.Context, id uint, from, to models.TemplateStatus, rejectionReason *string) (bool, error)
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Contact, error)
	ByMobile(ctx context.Context, mobile string) (*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, id uint) error
}

// WhatsAppNumberRepository defines operations for sender numbers
type WhatsAppNumberRepository interface {
	Repository[models.WhatsAppNumber, models.WhatsAppNumberFilter]
	ByUUID(ctx context.Context, uuid string) (*models.WhatsAppNumber, error)
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppNumber, error)
	Update(ctx context.Context, number *models.WhatsAppNumber) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	// TransitionStatus is a compare-and-set on status; it reports whether the row moved
	TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, to models.CampaignStatus, updates map[string]any) (bool, error)
	UpdateCounters(ctx context.Context, id uint, counters models.CampaignCounters) error
	SetTotalMessages(ctx context.Context, id uint, total uint64) error
}

// MessageLogRepository defines operations for per-recipient message logs
type MessageLogRepository interface {
	Repository[models.MessageLog, models.MessageLogFilter]
	ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.MessageLog, error)
	ListByCampaignAndStatus(ctx context.Context, campaignID uint, status models.MessageLogStatus) ([]*models.MessageLog, error)
	CountByStatus(ctx context.Context, campaignID uint) (map[models.MessageLogStatus]uint64, error)
	// Transition applies a forward status move guarded by the allowed predecessors
	Transition(ctx context.Context, id uint, to models.MessageLogStatus, updates map[string]any) (bool, error)
	// ResetForRetry moves a FAILED row back to PENDING and bumps retry_count
	ResetForRetry(ctx context.Context, id uint) (bool, error)
	FailPendingByCampaign(ctx context.Context, campaignID uint, reason string, at time.Time) (int64, error)
	FailPending(ctx context.Context, id uint, reason string, at time.Time) (bool, error)
	AttachProviderMessageID(ctx context.Context, id uint, providerMessageID string) (bool, error)
}

// WebhookEventRepository defines operations for the webhook intake buffer
type WebhookEventRepository interface {
	Repository[models.WebhookEvent, models.WebhookEventFilter]
	MarkProcessed(ctx context.Context, id uint, note *string, at time.Time) error
	RecordFailure(ctx context.Context, id uint, reason string) error
	// ListReconcilable returns unprocessed, decoded events older than cutoff without an open task
	ListReconcilable(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]*models.WebhookEvent, error)
}

// QueueTaskRepository defines operations for the durable task queue
type QueueTaskRepository interface {
	Repository[models.QueueTask, models.QueueTaskFilter]
	Claim(ctx context.Context, workerID string, now time.Time, visibilityTimeout time.Duration, limit int) ([]*models.QueueTask, error)
	Complete(ctx context.Context, id uint, at time.Time) error
	// Fail records an attempt error; a nil retryAt completes the task for good
	Fail(ctx context.Context, id uint, reason string, retryAt *time.Time, at time.Time) error
	CancelOpenByCampaign(ctx context.Context, campaignID uint, at time.Time) (int64, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByOperator(ctx context.Context, operatorID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
