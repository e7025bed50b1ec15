package dto

// CreateContactRequest represents the request to create a contact.
// Mobile may be in any format phonenumbers can parse; it is stored as E.164.
type CreateContactRequest struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Mobile string  `json:"mobile" validate:"required,max=32"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

// UpdateContactRequest updates any subset of contact fields
type UpdateContactRequest struct {
	ID       uint    `json:"-"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Mobile   *string `json:"mobile,omitempty" validate:"omitempty,max=32"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ImportContactsRequest creates many contacts; every row is handled on its own
type ImportContactsRequest struct {
	Contacts []CreateContactRequest `json:"contacts" validate:"required,min=1,max=5000,dive"`
}

type ImportContactResult struct {
	Index     int    `json:"index"`
	Mobile    string `json:"mobile"`
	ContactID uint   `json:"contact_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ImportContactsResponse struct {
	Created int                   `json:"created"`
	Failed  int                   `json:"failed"`
	Results []ImportContactResult `json:"results"`
}

// ContactResponse is the contact representation in responses
type ContactResponse struct {
	ID        uint    `json:"id"`
	UUID      string  `json:"uuid"`
	Name      string  `json:"name"`
	Mobile    string  `json:"mobile"`
	Email     *string `json:"email,omitempty"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// ListContactsRequest filters the contact list
type ListContactsRequest struct {
	PaginationRequest
	Name     string `query:"name" validate:"omitempty,max=255"`
	Mobile   string `query:"mobile" validate:"omitempty,max=32"`
	IsActive *bool  `query:"is_active"`
}

type ListContactsResponse struct {
	Items      []ContactResponse `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}
