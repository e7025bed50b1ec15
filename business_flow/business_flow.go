// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// operatorIDFromContext returns the authenticated operator, if any
func operatorIDFromContext(ctx context.Context) *uint {
	if id, ok := ctx.Value(utils.OperatorIDKey).(uint); ok && id != 0 {
		return &id
	}
	return nil
}

// auditRecorder writes audit rows for operator actions
type auditRecorder struct {
	auditRepo repository.AuditLogRepository
}

func (a auditRecorder) record(ctx context.Context, action, description string, success bool, errorMsg *string, metadata *ClientMetadata, extra map[string]any) error {
	if a.auditRepo == nil {
		return nil
	}

	audit := &models.AuditLog{
		OperatorID:   operatorIDFromContext(ctx),
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}

	if metadata != nil {
		audit.IPAddress = &metadata.IPAddress
		audit.UserAgent = &metadata.UserAgent
		if metadata.RequestID != "" {
			audit.RequestID = &metadata.RequestID
		}
	}

	// Extract request ID from context if available
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	if len(extra) > 0 {
		if raw, err := json.Marshal(extra); err == nil {
			audit.Metadata = raw
		}
	}

	return a.auditRepo.Save(ctx, audit)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToTemplateResponse converts a template model to its response DTO
func ToTemplateResponse(t *models.Template) dto.TemplateResponse {
	buttons := make([]dto.TemplateButtonDTO, 0, len(t.Buttons))
	for _, b := range t.Buttons {
		buttons = append(buttons, dto.TemplateButtonDTO{
			Type:        b.Type,
			Text:        b.Text,
			URL:         b.URL,
			PhoneNumber: b.PhoneNumber,
		})
	}
	variables := []string(t.Variables)
	if variables == nil {
		variables = []string{}
	}

	return dto.TemplateResponse{
		ID:              t.ID,
		UUID:            t.UUID.String(),
		Name:            t.Name,
		Language:        t.Language,
		Category:        t.Category.String(),
		Body:            t.Body,
		HeaderType:      string(t.HeaderType),
		HeaderContent:   t.HeaderContent,
		Footer:          t.Footer,
		Buttons:         buttons,
		Variables:       variables,
		Status:          t.Status.String(),
		RejectionReason: t.RejectionReason,
		CreatedAt:       formatTime(t.CreatedAt),
		UpdatedAt:       formatTime(t.UpdatedAt),
	}
}

// ToContactResponse converts a contact model to its response DTO
func ToContactResponse(c *models.Contact) dto.ContactResponse {
	return dto.ContactResponse{
		ID:        c.ID,
		UUID:      c.UUID.String(),
		Name:      c.Name,
		Mobile:    c.Mobile,
		Email:     c.Email,
		IsActive:  utils.IsTrue(c.IsActive),
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

// ToWhatsAppNumberResponse converts a sender to its response DTO; the access token is never included
func ToWhatsAppNumberResponse(n *models.WhatsAppNumber) dto.WhatsAppNumberResponse {
	return dto.WhatsAppNumberResponse{
		ID:                 n.ID,
		UUID:               n.UUID.String(),
		PhoneNumberID:      n.PhoneNumberID,
		DisplayPhoneNumber: n.DisplayPhoneNumber,
		DisplayName:        n.DisplayName,
		IsActive:           utils.IsTrue(n.IsActive),
		LastVerifiedAt:     utils.FormatTimePtr(n.LastVerifiedAt),
		CreatedAt:          formatTime(n.CreatedAt),
		UpdatedAt:          formatTime(n.UpdatedAt),
	}
}

// ToCampaignResponse converts a campaign model to its response DTO
func ToCampaignResponse(c *models.Campaign) dto.CampaignResponse {
	return dto.CampaignResponse{
		ID:               c.ID,
		UUID:             c.UUID.String(),
		Name:             c.Name,
		WhatsAppNumberID: c.WhatsAppNumberID,
		TemplateID:       c.TemplateID,
		Status:           c.Status.String(),
		FailureReason:    c.FailureReason,
		TotalMessages:    c.TotalMessages,
		PendingCount:     c.PendingCount,
		SentCount:        c.SentCount,
		DeliveredCount:   c.DeliveredCount,
		ReadCount:        c.ReadCount,
		FailedCount:      c.FailedCount,
		StartedAt:        utils.FormatTimePtr(c.StartedAt),
		CompletedAt:      utils.FormatTimePtr(c.CompletedAt),
		CancelledAt:      utils.FormatTimePtr(c.CancelledAt),
		CreatedAt:        formatTime(c.CreatedAt),
		UpdatedAt:        formatTime(c.UpdatedAt),
	}
}

// ToMessageLogResponse converts a message log to its response DTO
func ToMessageLogResponse(l *models.MessageLog) dto.MessageLogResponse {
	return dto.MessageLogResponse{
		ID:                l.ID,
		CampaignID:        l.CampaignID,
		ContactID:         l.ContactID,
		Mobile:            l.Mobile,
		Content:           l.Content,
		Variables:         l.Variables,
		Status:            l.Status.String(),
		ProviderMessageID: l.ProviderMessageID,
		ErrorMessage:      l.ErrorMessage,
		RetryCount:        l.RetryCount,
		SentAt:            utils.FormatTimePtr(l.SentAt),
		DeliveredAt:       utils.FormatTimePtr(l.DeliveredAt),
		ReadAt:            utils.FormatTimePtr(l.ReadAt),
		FailedAt:          utils.FormatTimePtr(l.FailedAt),
		CreatedAt:         formatTime(l.CreatedAt),
	}
}

// ToCampaignStatisticsResponse builds the statistics view from a campaign and its counters
func ToCampaignStatisticsResponse(c *models.Campaign, counters models.CampaignCounters) *dto.CampaignStatisticsResponse {
	total := c.TotalMessages
	return &dto.CampaignStatisticsResponse{
		CampaignID:    c.ID,
		Status:        c.Status.String(),
		TotalMessages: total,
		Pending:       counters.Pending,
		Sent:          counters.Sent,
		Delivered:     counters.Delivered,
		Read:          counters.Read,
		Failed:        counters.Failed,
		SentRate:      utils.Percentage(counters.Sent, total),
		DeliveredRate: utils.Percentage(counters.Delivered, total),
		ReadRate:      utils.Percentage(counters.Read, total),
		FailedRate:    utils.Percentage(counters.Failed, total),
	}
}
