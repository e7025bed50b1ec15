package dto

// CreateCampaignRequest represents the request to create a new campaign.
// Variables maps a contact id to that contact's placeholder values.
type CreateCampaignRequest struct {
	Name             string                     `json:"name" validate:"required,max=255"`
	WhatsAppNumberID uint                       `json:"whatsapp_number_id" validate:"required"`
	TemplateID       uint                       `json:"template_id" validate:"required"`
	ContactIDs       []uint                     `json:"contact_ids" validate:"required,min=1,max=100000"`
	Variables        map[uint]map[string]string `json:"variables,omitempty"`
}

// CampaignResponse is the campaign representation in responses
type CampaignResponse struct {
	ID               uint    `json:"id"`
	UUID             string  `json:"uuid"`
	Name             string  `json:"name"`
	WhatsAppNumberID uint    `json:"whatsapp_number_id"`
	TemplateID       uint    `json:"template_id"`
	Status           string  `json:"status"`
	FailureReason    *string `json:"failure_reason,omitempty"`
	TotalMessages    uint64  `json:"total_messages"`
	PendingCount     uint64  `json:"pending_count"`
	SentCount        uint64  `json:"sent_count"`
	DeliveredCount   uint64  `json:"delivered_count"`
	ReadCount        uint64  `json:"read_count"`
	FailedCount      uint64  `json:"failed_count"`
	StartedAt        *string `json:"started_at,omitempty"`
	CompletedAt      *string `json:"completed_at,omitempty"`
	CancelledAt      *string `json:"cancelled_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// ListCampaignsRequest filters the campaign list
type ListCampaignsRequest struct {
	PaginationRequest
	Status string `query:"status" validate:"omitempty,oneof=PENDING PROCESSING COMPLETED FAILED CANCELLED"`
}

// ListCampaignsResponse represents a paginated list of campaigns
type ListCampaignsResponse struct {
	Items      []CampaignResponse `json:"items"`
	Pagination PaginationInfo     `json:"pagination"`
}

type StartCampaignResponse struct {
	CampaignID    uint   `json:"campaign_id"`
	Status        string `json:"status"`
	EnqueuedTasks int    `json:"enqueued_tasks"`
	Batches       int    `json:"batches"`
}

type CancelCampaignResponse struct {
	CampaignID     uint   `json:"campaign_id"`
	Status         string `json:"status"`
	FailedMessages int64  `json:"failed_messages"`
	CancelledTasks int64  `json:"cancelled_tasks"`
}

type RetryCampaignResponse struct {
	CampaignID uint   `json:"campaign_id"`
	Status     string `json:"status"`
	Retried    int    `json:"retried"`
	Skipped    int    `json:"skipped"`
}

// CampaignStatisticsResponse is the counter snapshot with derived rates in percent
type CampaignStatisticsResponse struct {
	CampaignID    uint    `json:"campaign_id"`
	Status        string  `json:"status"`
	TotalMessages uint64  `json:"total_messages"`
	Pending       uint64  `json:"pending"`
	Sent          uint64  `json:"sent"`
	Delivered     uint64  `json:"delivered"`
	Read          uint64  `json:"read"`
	Failed        uint64  `json:"failed"`
	SentRate      float64 `json:"sent_rate"`
	DeliveredRate float64 `json:"delivered_rate"`
	ReadRate      float64 `json:"read_rate"`
	FailedRate    float64 `json:"failed_rate"`
}

// ListMessageLogsRequest filters the messages of one campaign
type ListMessageLogsRequest struct {
	PaginationRequest
	CampaignID uint   `json:"-"`
	Status     string `query:"status" validate:"omitempty,oneof=PENDING SENT DELIVERED READ FAILED"`
}

type MessageLogResponse struct {
	ID                uint              `json:"id"`
	CampaignID        uint              `json:"campaign_id"`
	ContactID         uint              `json:"contact_id"`
	Mobile            string            `json:"mobile"`
	Content           string            `json:"content"`
	Variables         map[string]string `json:"variables,omitempty"`
	Status            string            `json:"status"`
	ProviderMessageID *string           `json:"provider_message_id,omitempty"`
	ErrorMessage      *string           `json:"error_message,omitempty"`
	RetryCount        int               `json:"retry_count"`
	SentAt            *string           `json:"sent_at,omitempty"`
	DeliveredAt       *string           `json:"delivered_at,omitempty"`
	ReadAt            *string           `json:"read_at,omitempty"`
	FailedAt          *string           `json:"failed_at,omitempty"`
	CreatedAt         string            `json:"created_at"`
}

type ListMessageLogsResponse struct {
	Items      []MessageLogResponse `json:"items"`
	Pagination PaginationInfo       `json:"pagination"`
}
