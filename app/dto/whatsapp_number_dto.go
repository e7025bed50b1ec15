package dto

// CreateWhatsAppNumberRequest registers a sender. AccessToken is never echoed back.
type CreateWhatsAppNumberRequest struct {
	PhoneNumberID      string  `json:"phone_number_id" validate:"required,max=64"`
	AccessToken        string  `json:"access_token" validate:"required"`
	DisplayPhoneNumber string  `json:"display_phone_number" validate:"required,max=32"`
	DisplayName        *string `json:"display_name,omitempty" validate:"omitempty,max=255"`
}

type UpdateWhatsAppNumberRequest struct {
	ID                 uint    `json:"-"`
	AccessToken        *string `json:"access_token,omitempty" validate:"omitempty,min=1"`
	DisplayPhoneNumber *string `json:"display_phone_number,omitempty" validate:"omitempty,max=32"`
	DisplayName        *string `json:"display_name,omitempty" validate:"omitempty,max=255"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

// WhatsAppNumberResponse is the sender representation in responses
type WhatsAppNumberResponse struct {
	ID                 uint    `json:"id"`
	UUID               string  `json:"uuid"`
	PhoneNumberID      string  `json:"phone_number_id"`
	DisplayPhoneNumber string  `json:"display_phone_number"`
	DisplayName        *string `json:"display_name,omitempty"`
	IsActive           bool    `json:"is_active"`
	LastVerifiedAt     *string `json:"last_verified_at,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

type ListWhatsAppNumbersRequest struct {
	PaginationRequest
	IsActive *bool `query:"is_active"`
}

type ListWhatsAppNumbersResponse struct {
	Items      []WhatsAppNumberResponse `json:"items"`
	Pagination PaginationInfo           `json:"pagination"`
}
