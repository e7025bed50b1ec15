package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// ContactFlow manages message recipients
type ContactFlow interface {
	CreateContact(ctx context.Context, req *dto.CreateContactRequest, metadata *ClientMetadata) (*dto.ContactResponse, error)
	ImportContacts(ctx context.Context, req *dto.ImportContactsRequest, metadata *ClientMetadata) (*dto.ImportContactsResponse, error)
	GetContact(ctx context.Context, id uint) (*dto.ContactResponse, error)
	ListContacts(ctx context.Context, req *dto.ListContactsRequest) (*dto.ListContactsResponse, error)
	UpdateContact(ctx context.Context, req *dto.UpdateContactRequest, metadata *ClientMetadata) (*dto.ContactResponse, error)
	DeleteContact(ctx context.Context, id uint, metadata *ClientMetadata) error
}

type ContactFlowImpl struct {
	contactRepo    repository.ContactRepository
	messageLogRepo repository.MessageLogRepository
	audit          auditRecorder
	defaultRegion  string
}

func NewContactFlow(
	contactRepo repository.ContactRepository,
	messageLogRepo repository.MessageLogRepository,
	auditRepo repository.AuditLogRepository,
	defaultRegion string,
) ContactFlow {
	return &ContactFlowImpl{
		contactRepo:    contactRepo,
		messageLogRepo: messageLogRepo,
		audit:          auditRecorder{auditRepo: auditRepo},
		defaultRegion:  strings.ToUpper(defaultRegion),
	}
}

// NormalizeMobile parses raw with phonenumbers and returns its E.164 form.
// Numbers without a leading + are read in defaultRegion.
func NormalizeMobile(raw, defaultRegion string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMobile, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %s", ErrInvalidMobile, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (f *ContactFlowImpl) CreateContact(ctx context.Context, req *dto.CreateContactRequest, metadata *ClientMetadata) (*dto.ContactResponse, error) {
	contact, err := f.createContact(ctx, req)
	if err != nil {
		return nil, err
	}

	_ = f.audit.record(ctx, models.AuditActionContactCreated, fmt.Sprintf("Contact created: %s", contact.Mobile), true, nil, metadata,
		map[string]any{"contact_id": contact.ID})

	resp := ToContactResponse(contact)
	return &resp, nil
}

func (f *ContactFlowImpl) createContact(ctx context.Context, req *dto.CreateContactRequest) (*models.Contact, error) {
	mobile, err := NormalizeMobile(req.Mobile, f.defaultRegion)
	if err != nil {
		return nil, NewBusinessError("INVALID_MOBILE", "Mobile number is not valid", err)
	}

	existing, err := f.contactRepo.ByMobile(ctx, mobile)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
	}
	if existing != nil {
		return nil, NewBusinessError("MOBILE_ALREADY_EXISTS", "A contact with this mobile already exists", ErrMobileAlreadyExists)
	}

	contact := &models.Contact{
		UUID:     uuid.New(),
		Name:     strings.TrimSpace(req.Name),
		Mobile:   mobile,
		Email:    req.Email,
		IsActive: utils.ToPtr(true),
	}
	if err := f.contactRepo.Save(ctx, contact); err != nil {
		return nil, NewBusinessError("CONTACT_CREATION_FAILED", "Contact creation failed", err)
	}
	return contact, nil
}

// ImportContacts creates each row independently and reports per-row outcomes
func (f *ContactFlowImpl) ImportContacts(ctx context.Context, req *dto.ImportContactsRequest, metadata *ClientMetadata) (*dto.ImportContactsResponse, error) {
	resp := &dto.ImportContactsResponse{Results: make([]dto.ImportContactResult, 0, len(req.Contacts))}

	for i := range req.Contacts {
		row := &req.Contacts[i]
		result := dto.ImportContactResult{Index: i, Mobile: row.Mobile}

		contact, err := f.createContact(ctx, row)
		if err != nil {
			var be *BusinessError
			if errors.As(err, &be) && be.Err != nil {
				result.Error = be.Err.Error()
			} else {
				result.Error = err.Error()
			}
			resp.Failed++
		} else {
			result.ContactID = contact.ID
			result.Mobile = contact.Mobile
			resp.Created++
		}
		resp.Results = append(resp.Results, result)
	}

	_ = f.audit.record(ctx, models.AuditActionContactCreated,
		fmt.Sprintf("Contacts imported: %d created, %d failed", resp.Created, resp.Failed), resp.Failed == 0, nil, metadata, nil)

	return resp, nil
}

func (f *ContactFlowImpl) getContact(ctx context.Context, id uint) (*models.Contact, error) {
	contact, err := f.contactRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
	}
	if contact == nil {
		return nil, NewBusinessError("CONTACT_NOT_FOUND", "Contact not found", ErrContactNotFound)
	}
	return contact, nil
}

func (f *ContactFlowImpl) GetContact(ctx context.Context, id uint) (*dto.ContactResponse, error) {
	contact, err := f.getContact(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToContactResponse(contact)
	return &resp, nil
}

func (f *ContactFlowImpl) ListContacts(ctx context.Context, req *dto.ListContactsRequest) (*dto.ListContactsResponse, error) {
	limit, offset := req.Normalize()

	filter := models.ContactFilter{IsActive: req.IsActive}
	if req.Name != "" {
		filter.Name = &req.Name
	}
	if req.Mobile != "" {
		mobile := req.Mobile
		if normalized, err := NormalizeMobile(req.Mobile, f.defaultRegion); err == nil {
			mobile = normalized
		}
		filter.Mobile = &mobile
	}

	total, err := f.contactRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LIST_FAILED", "Failed to list contacts", err)
	}
	contacts, err := f.contactRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LIST_FAILED", "Failed to list contacts", err)
	}

	items := make([]dto.ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		items = append(items, ToContactResponse(c))
	}
	return &dto.ListContactsResponse{Items: items, Pagination: dto.NewPaginationInfo(total, req.Page, limit)}, nil
}

func (f *ContactFlowImpl) UpdateContact(ctx context.Context, req *dto.UpdateContactRequest, metadata *ClientMetadata) (*dto.ContactResponse, error) {
	contact, err := f.getContact(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Mobile != nil {
		mobile, err := NormalizeMobile(*req.Mobile, f.defaultRegion)
		if err != nil {
			return nil, NewBusinessError("INVALID_MOBILE", "Mobile number is not valid", err)
		}
		if mobile != contact.Mobile {
			existing, err := f.contactRepo.ByMobile(ctx, mobile)
			if err != nil {
				return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
			}
			if existing != nil {
				return nil, NewBusinessError("MOBILE_ALREADY_EXISTS", "A contact with this mobile already exists", ErrMobileAlreadyExists)
			}
			contact.Mobile = mobile
		}
	}
	if req.Name != nil {
		contact.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		contact.Email = req.Email
	}
	if req.IsActive != nil {
		contact.IsActive = req.IsActive
	}

	if err := f.contactRepo.Update(ctx, contact); err != nil {
		return nil, NewBusinessError("CONTACT_UPDATE_FAILED", "Contact update failed", err)
	}

	resp := ToContactResponse(contact)
	return &resp, nil
}

// DeleteContact removes a contact that no message log references
func (f *ContactFlowImpl) DeleteContact(ctx context.Context, id uint, metadata *ClientMetadata) error {
	contact, err := f.getContact(ctx, id)
	if err != nil {
		return err
	}

	referenced, err := f.messageLogRepo.Exists(ctx, models.MessageLogFilter{ContactID: &contact.ID})
	if err != nil {
		return NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to check contact usage", err)
	}
	if referenced {
		return NewBusinessError("CONTACT_IN_USE", "Contact is referenced by campaign messages", ErrContactInUse)
	}

	if err := f.contactRepo.Delete(ctx, contact.ID); err != nil {
		return NewBusinessError("CONTACT_DELETE_FAILED", "Contact deletion failed", err)
	}

	_ = f.audit.record(ctx, models.AuditActionContactDeleted, fmt.Sprintf("Contact deleted: %s", contact.Mobile), true, nil, metadata,
		map[string]any{"contact_id": contact.ID})
	return nil
}
