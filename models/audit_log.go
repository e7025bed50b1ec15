package models

import (
	"time"
)

// AuditLog records operator actions against campaigns, templates and senders
type AuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OperatorID   *uint     `gorm:"index:idx_audit_operator_id" json:"operator_id,omitempty"`
	Action       string    `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string   `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string   `gorm:"size:64;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string   `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string   `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     RawJSON   `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool     `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionCampaignCreated        = "campaign_created"
	AuditActionCampaignCreationFailed = "campaign_creation_failed"
	AuditActionCampaignStarted        = "campaign_started"
	AuditActionCampaignStartFailed    = "campaign_start_failed"
	AuditActionCampaignCancelled      = "campaign_cancelled"
	AuditActionCampaignRetried        = "campaign_retried"
	AuditActionTemplateCreated        = "template_created"
	AuditActionTemplateUpdated        = "template_updated"
	AuditActionTemplateStatusChanged  = "template_status_changed"
	AuditActionContactCreated         = "contact_created"
	AuditActionContactDeleted         = "contact_deleted"
	AuditActionWhatsAppNumberCreated  = "whatsapp_number_created"
	AuditActionWhatsAppNumberUpdated  = "whatsapp_number_updated"
	AuditActionWhatsAppNumberVerified = "whatsapp_number_verified"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	OperatorID    *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
