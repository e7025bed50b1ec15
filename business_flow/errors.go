// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
	"strings"
)

// Business flow error constants
var (
	// Template-related errors
	ErrTemplateNotFound          = errors.New("template not found")
	ErrTemplateNotApproved       = errors.New("template is not approved")
	ErrTemplateNotEditable       = errors.New("template can only be edited while draft or rejected")
	ErrTemplateInUse             = errors.New("template is referenced by a campaign")
	ErrTemplateNameExists        = errors.New("template name already exists")
	ErrInvalidTemplateTransition = errors.New("invalid template status transition")
	ErrInvalidTemplateHeader     = errors.New("header content is required for the header type")
	ErrInvalidTemplateButton     = errors.New("invalid template button")

	// Contact-related errors
	ErrContactNotFound     = errors.New("contact not found")
	ErrContactInUse        = errors.New("contact is referenced by message logs")
	ErrInvalidMobile       = errors.New("invalid mobile number")
	ErrMobileAlreadyExists = errors.New("mobile number already exists")

	// Sender-related errors
	ErrWhatsAppNumberNotFound = errors.New("whatsapp number not found")
	ErrWhatsAppNumberInactive = errors.New("whatsapp number is inactive")
	ErrPhoneNumberIDExists    = errors.New("phone number id already registered")

	// Campaign-related errors
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrCampaignNameRequired   = errors.New("campaign name is required")
	ErrNoActiveContacts       = errors.New("no active contacts with a valid mobile")
	ErrCampaignNotPending     = errors.New("campaign is not pending")
	ErrCampaignNotRetryable   = errors.New("campaign does not accept retries in its current status")
	ErrCampaignNotCancellable = errors.New("campaign cannot be cancelled in its current status")
	ErrCampaignLocked         = errors.New("campaign is being modified by another request")

	// Webhook errors
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidVerifyToken   = errors.New("invalid webhook verify token")
	ErrInvalidWebhookMode   = errors.New("invalid webhook mode")
	ErrMalformedWebhook     = errors.New("malformed webhook payload")
	ErrMessageLogNotMatched = errors.New("no message log for provider message id")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

func IsTemplateNotApproved(err error) bool {
	return errors.Is(err, ErrTemplateNotApproved)
}

func IsTemplateNotEditable(err error) bool {
	return errors.Is(err, ErrTemplateNotEditable)
}

func IsTemplateInUse(err error) bool {
	return errors.Is(err, ErrTemplateInUse)
}

func IsTemplateNameExists(err error) bool {
	return errors.Is(err, ErrTemplateNameExists)
}

func IsInvalidTemplateTransition(err error) bool {
	return errors.Is(err, ErrInvalidTemplateTransition)
}

func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}

func IsContactInUse(err error) bool {
	return errors.Is(err, ErrContactInUse)
}

func IsInvalidMobile(err error) bool {
	return errors.Is(err, ErrInvalidMobile)
}

func IsMobileAlreadyExists(err error) bool {
	return errors.Is(err, ErrMobileAlreadyExists)
}

func IsWhatsAppNumberNotFound(err error) bool {
	return errors.Is(err, ErrWhatsAppNumberNotFound)
}

func IsWhatsAppNumberInactive(err error) bool {
	return errors.Is(err, ErrWhatsAppNumberInactive)
}

func IsPhoneNumberIDExists(err error) bool {
	return errors.Is(err, ErrPhoneNumberIDExists)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsNoActiveContacts(err error) bool {
	return errors.Is(err, ErrNoActiveContacts)
}

func IsCampaignNotPending(err error) bool {
	return errors.Is(err, ErrCampaignNotPending)
}

func IsCampaignNotRetryable(err error) bool {
	return errors.Is(err, ErrCampaignNotRetryable)
}

func IsCampaignNotCancellable(err error) bool {
	return errors.Is(err, ErrCampaignNotCancellable)
}

func IsCampaignLocked(err error) bool {
	return errors.Is(err, ErrCampaignLocked)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsInvalidVerifyToken(err error) bool {
	return errors.Is(err, ErrInvalidVerifyToken)
}

func IsMalformedWebhook(err error) bool {
	return errors.Is(err, ErrMalformedWebhook)
}

// IsNotFound reports any of the lookup failures that map to 404
func IsNotFound(err error) bool {
	return IsTemplateNotFound(err) || IsContactNotFound(err) || IsWhatsAppNumberNotFound(err) || IsCampaignNotFound(err)
}

// IsConflict reports state conflicts that map to 409
func IsConflict(err error) bool {
	return IsCampaignNotPending(err) || IsCampaignNotRetryable(err) || IsCampaignNotCancellable(err) ||
		IsCampaignLocked(err) || IsTemplateInUse(err) || IsContactInUse(err) || IsTemplateNotEditable(err) ||
		IsInvalidTemplateTransition(err) || IsMobileAlreadyExists(err) || IsTemplateNameExists(err) ||
		IsPhoneNumberIDExists(err)
}

// IsInvalidRequest reports precondition and validation failures that map to 400
func IsInvalidRequest(err error) bool {
	if IsTemplateNotApproved(err) || IsWhatsAppNumberInactive(err) || IsNoActiveContacts(err) ||
		IsInvalidMobile(err) || IsMalformedWebhook(err) ||
		errors.Is(err, ErrInvalidTemplateHeader) || errors.Is(err, ErrInvalidTemplateButton) ||
		errors.Is(err, ErrCampaignNameRequired) {
		return true
	}
	var be *BusinessError
	return errors.As(err, &be) && strings.HasSuffix(be.Code, "_VALIDATION_FAILED")
}

// ErrorCode returns the BusinessError code carried by err, or fallback
func ErrorCode(err error, fallback string) string {
	var be *BusinessError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return fallback
}
