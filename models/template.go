package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TemplateStatus is the approval state of a message template
type TemplateStatus string

const (
	TemplateStatusDraft    TemplateStatus = "DRAFT"
	TemplateStatusPending  TemplateStatus = "PENDING"
	TemplateStatusApproved TemplateStatus = "APPROVED"
	TemplateStatusRejected TemplateStatus = "REJECTED"
)

func (s TemplateStatus) String() string {
	return string(s)
}

func (s TemplateStatus) Valid() bool {
	switch s {
	case TemplateStatusDraft, TemplateStatusPending, TemplateStatusApproved, TemplateStatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the approval workflow allows s -> next
func (s TemplateStatus) CanTransitionTo(next TemplateStatus) bool {
	switch s {
	case TemplateStatusDraft:
		return next == TemplateStatusPending
	case TemplateStatusPending:
		return next == TemplateStatusApproved || next == TemplateStatusRejected
	case TemplateStatusRejected:
		return next == TemplateStatusDraft
	default:
		return false
	}
}

// Editable reports whether body, header and buttons may still change
func (s TemplateStatus) Editable() bool {
	return s == TemplateStatusDraft || s == TemplateStatusRejected
}

func (s *TemplateStatus) Scan(value any) error {
	v, err := scanString(value, "TemplateStatus")
	*s = TemplateStatus(v)
	return err
}

func (s TemplateStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid template status: %s", s)
	}
	return string(s), nil
}

// TemplateCategory is the provider category of a template
type TemplateCategory string

const (
	TemplateCategoryMarketing      TemplateCategory = "MARKETING"
	TemplateCategoryUtility        TemplateCategory = "UTILITY"
	TemplateCategoryAuthentication TemplateCategory = "AUTHENTICATION"
)

func (c TemplateCategory) String() string {
	return string(c)
}

func (c TemplateCategory) Valid() bool {
	switch c {
	case TemplateCategoryMarketing, TemplateCategoryUtility, TemplateCategoryAuthentication:
		return true
	default:
		return false
	}
}

func (c *TemplateCategory) Scan(value any) error {
	v, err := scanString(value, "TemplateCategory")
	*c = TemplateCategory(v)
	return err
}

func (c TemplateCategory) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid template category: %s", c)
	}
	return string(c), nil
}

// TemplateHeaderType describes the optional header component
type TemplateHeaderType string

const (
	TemplateHeaderNone     TemplateHeaderType = "NONE"
	TemplateHeaderText     TemplateHeaderType = "TEXT"
	TemplateHeaderImage    TemplateHeaderType = "IMAGE"
	TemplateHeaderVideo    TemplateHeaderType = "VIDEO"
	TemplateHeaderDocument TemplateHeaderType = "DOCUMENT"
)

func (h TemplateHeaderType) Valid() bool {
	switch h {
	case TemplateHeaderNone, TemplateHeaderText, TemplateHeaderImage, TemplateHeaderVideo, TemplateHeaderDocument:
		return true
	default:
		return false
	}
}

// IsMedia reports whether the header carries a media link
func (h TemplateHeaderType) IsMedia() bool {
	return h == TemplateHeaderImage || h == TemplateHeaderVideo || h == TemplateHeaderDocument
}

func (h *TemplateHeaderType) Scan(value any) error {
	v, err := scanString(value, "TemplateHeaderType")
	*h = TemplateHeaderType(v)
	return err
}

func (h TemplateHeaderType) Value() (driver.Value, error) {
	if h == "" {
		return string(TemplateHeaderNone), nil
	}
	if !h.Valid() {
		return nil, fmt.Errorf("invalid template header type: %s", h)
	}
	return string(h), nil
}

// Button types supported by templates
const (
	TemplateButtonQuickReply  = "QUICK_REPLY"
	TemplateButtonURL         = "URL"
	TemplateButtonPhoneNumber = "PHONE_NUMBER"
)

// TemplateButton is one call-to-action or quick reply button
type TemplateButton struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// TemplateButtons is stored as a JSON array
type TemplateButtons []TemplateButton

func (b TemplateButtons) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	bs, err := json.Marshal([]TemplateButton(b))
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func (b *TemplateButtons) Scan(value any) error {
	var out []TemplateButton
	if err := scanJSON(value, &out, "TemplateButtons"); err != nil {
		return err
	}
	*b = out
	return nil
}

// Template is a reusable message skeleton with {{name}} placeholders.
// Variables holds placeholder names in order of first appearance across
// header, body and button urls; the provider receives body parameters in
// that order.
type Template struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_templates_uuid" json:"uuid"`

	Name          string             `gorm:"size:255;not null;uniqueIndex:uk_templates_name" json:"name"`
	Language      string             `gorm:"size:20;not null" json:"language"`
	Category      TemplateCategory   `gorm:"type:varchar(20);not null;index:idx_templates_category" json:"category"`
	Body          string             `gorm:"type:text;not null" json:"body"`
	HeaderType    TemplateHeaderType `gorm:"type:varchar(20);not null" json:"header_type"`
	HeaderContent *string            `gorm:"type:text" json:"header_content,omitempty"`
	Footer        *string            `gorm:"size:255" json:"footer,omitempty"`
	Buttons       TemplateButtons    `gorm:"type:jsonb" json:"buttons"`
	Variables     StringList         `gorm:"type:jsonb" json:"variables"`

	Status          TemplateStatus `gorm:"type:varchar(20);not null;index:idx_templates_status" json:"status"`
	RejectionReason *string        `gorm:"type:text" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_templates_created_at" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

// TemplateFilter represents filter criteria for template queries
type TemplateFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	Name     *string
	Language *string
	Category *TemplateCategory
	Status   *TemplateStatus
}
