package dto

// TemplateButtonDTO is one template button
type TemplateButtonDTO struct {
	Type        string `json:"type" validate:"required,oneof=QUICK_REPLY URL PHONE_NUMBER"`
	Text        string `json:"text" validate:"required,max=25"`
	URL         string `json:"url,omitempty" validate:"required_if=Type URL,omitempty,max=2000"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"required_if=Type PHONE_NUMBER,omitempty,e164"`
}

// CreateTemplateRequest represents the request to create a DRAFT template
type CreateTemplateRequest struct {
	Name          string              `json:"name" validate:"required,max=255"`
	Language      string              `json:"language" validate:"required,max=20"`
	Category      string              `json:"category" validate:"required,oneof=MARKETING UTILITY AUTHENTICATION"`
	Body          string              `json:"body" validate:"required,max=1024"`
	HeaderType    string              `json:"header_type,omitempty" validate:"omitempty,oneof=NONE TEXT IMAGE VIDEO DOCUMENT"`
	HeaderContent *string             `json:"header_content,omitempty" validate:"omitempty,max=2000"`
	Footer        *string             `json:"footer,omitempty" validate:"omitempty,max=60"`
	Buttons       []TemplateButtonDTO `json:"buttons,omitempty" validate:"omitempty,max=10,dive"`
}

// UpdateTemplateRequest replaces the editable parts of a template
type UpdateTemplateRequest struct {
	ID            uint                `json:"-"`
	Language      *string             `json:"language,omitempty" validate:"omitempty,max=20"`
	Category      *string             `json:"category,omitempty" validate:"omitempty,oneof=MARKETING UTILITY AUTHENTICATION"`
	Body          *string             `json:"body,omitempty" validate:"omitempty,max=1024"`
	HeaderType    *string             `json:"header_type,omitempty" validate:"omitempty,oneof=NONE TEXT IMAGE VIDEO DOCUMENT"`
	HeaderContent *string             `json:"header_content,omitempty" validate:"omitempty,max=2000"`
	Footer        *string             `json:"footer,omitempty" validate:"omitempty,max=60"`
	Buttons       []TemplateButtonDTO `json:"buttons,omitempty" validate:"omitempty,max=10,dive"`
}

// RejectTemplateRequest carries the reason a template was rejected
type RejectTemplateRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// PreviewTemplateRequest renders a template with sample values
type PreviewTemplateRequest struct {
	Variables map[string]string `json:"variables"`
}

// PreviewTemplateResponse is the rendered body plus the provider components
type PreviewTemplateResponse struct {
	Content          string   `json:"content"`
	Components       any      `json:"components"`
	MissingVariables []string `json:"missing_variables"`
}

// TemplateResponse is the template representation in responses
type TemplateResponse struct {
	ID              uint                `json:"id"`
	UUID            string              `json:"uuid"`
	Name            string              `json:"name"`
	Language        string              `json:"language"`
	Category        string              `json:"category"`
	Body            string              `json:"body"`
	HeaderType      string              `json:"header_type"`
	HeaderContent   *string             `json:"header_content,omitempty"`
	Footer          *string             `json:"footer,omitempty"`
	Buttons         []TemplateButtonDTO `json:"buttons"`
	Variables       []string            `json:"variables"`
	Status          string              `json:"status"`
	RejectionReason *string             `json:"rejection_reason,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

// ListTemplatesRequest filters the template list
type ListTemplatesRequest struct {
	PaginationRequest
	Status   string `query:"status" validate:"omitempty,oneof=DRAFT PENDING APPROVED REJECTED"`
	Category string `query:"category" validate:"omitempty,oneof=MARKETING UTILITY AUTHENTICATION"`
	Name     string `query:"name" validate:"omitempty,max=255"`
}

// ListTemplatesResponse represents a paginated list of templates
type ListTemplatesResponse struct {
	Items      []TemplateResponse `json:"items"`
	Pagination PaginationInfo     `json:"pagination"`
}
