package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/google/uuid"
)

// WhatsAppNumberFlow manages sender numbers. Access tokens are write-only.
type WhatsAppNumberFlow interface {
	CreateNumber(ctx context.Context, req *dto.CreateWhatsAppNumberRequest, metadata *ClientMetadata) (*dto.WhatsAppNumberResponse, error)
	GetNumber(ctx context.Context, id uint) (*dto.WhatsAppNumberResponse, error)
	ListNumbers(ctx context.Context, req *dto.ListWhatsAppNumbersRequest) (*dto.ListWhatsAppNumbersResponse, error)
	UpdateNumber(ctx context.Context, req *dto.UpdateWhatsAppNumberRequest, metadata *ClientMetadata) (*dto.WhatsAppNumberResponse, error)
	VerifyNumber(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.WhatsAppNumberResponse, error)
}

type WhatsAppNumberFlowImpl struct {
	numberRepo repository.WhatsAppNumberRepository
	client     services.WhatsAppClient
	audit      auditRecorder
}

func NewWhatsAppNumberFlow(
	numberRepo repository.WhatsAppNumberRepository,
	client services.WhatsAppClient,
	auditRepo repository.AuditLogRepository,
) WhatsAppNumberFlow {
	return &WhatsAppNumberFlowImpl{
		numberRepo: numberRepo,
		client:     client,
		audit:      auditRecorder{auditRepo: auditRepo},
	}
}

func (f *WhatsAppNumberFlowImpl) CreateNumber(ctx context.Context, req *dto.CreateWhatsAppNumberRequest, metadata *ClientMetadata) (*dto.WhatsAppNumberResponse, error) {
	phoneNumberID := strings.TrimSpace(req.PhoneNumberID)

	existing, err := f.numberRepo.ByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_LOOKUP_FAILED", "Failed to lookup whatsapp number", err)
	}
	if existing != nil {
		return nil, NewBusinessError("PHONE_NUMBER_ID_EXISTS", "Phone number id is already registered", ErrPhoneNumberIDExists)
	}

	number := &models.WhatsAppNumber{
		UUID:               uuid.New(),
		PhoneNumberID:      phoneNumberID,
		AccessToken:        req.AccessToken,
		DisplayPhoneNumber: req.DisplayPhoneNumber,
		DisplayName:        req.DisplayName,
		IsActive:           utils.ToPtr(true),
	}
	if err := f.numberRepo.Save(ctx, number); err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_CREATION_FAILED", "WhatsApp number creation failed", err)
	}

	_ = f.audit.record(ctx, models.AuditActionWhatsAppNumberCreated, fmt.Sprintf("WhatsApp number registered: %s", number.DisplayPhoneNumber), true, nil, metadata,
		map[string]any{"whatsapp_number_id": number.ID})

	resp := ToWhatsAppNumberResponse(number)
	return &resp, nil
}

func (f *WhatsAppNumberFlowImpl) getNumber(ctx context.Context, id uint) (*models.WhatsAppNumber, error) {
	number, err := f.numberRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_LOOKUP_FAILED", "Failed to lookup whatsapp number", err)
	}
	if number == nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_NOT_FOUND", "WhatsApp number not found", ErrWhatsAppNumberNotFound)
	}
	return number, nil
}

func (f *WhatsAppNumberFlowImpl) GetNumber(ctx context.Context, id uint) (*dto.WhatsAppNumberResponse, error) {
	number, err := f.getNumber(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToWhatsAppNumberResponse(number)
	return &resp, nil
}

func (f *WhatsAppNumberFlowImpl) ListNumbers(ctx context.Context, req *dto.ListWhatsAppNumbersRequest) (*dto.ListWhatsAppNumbersResponse, error) {
	limit, offset := req.Normalize()
	filter := models.WhatsAppNumberFilter{IsActive: req.IsActive}

	total, err := f.numberRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_LIST_FAILED", "Failed to list whatsapp numbers", err)
	}
	numbers, err := f.numberRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_LIST_FAILED", "Failed to list whatsapp numbers", err)
	}

	items := make([]dto.WhatsAppNumberResponse, 0, len(numbers))
	for _, n := range numbers {
		items = append(items, ToWhatsAppNumberResponse(n))
	}
	return &dto.ListWhatsAppNumbersResponse{Items: items, Pagination: dto.NewPaginationInfo(total, req.Page, limit)}, nil
}

func (f *WhatsAppNumberFlowImpl) UpdateNumber(ctx context.Context, req *dto.UpdateWhatsAppNumberRequest, metadata *ClientMetadata) (*dto.WhatsAppNumberResponse, error) {
	number, err := f.getNumber(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.AccessToken != nil {
		number.AccessToken = *req.AccessToken
	}
	if req.DisplayPhoneNumber != nil {
		number.DisplayPhoneNumber = *req.DisplayPhoneNumber
	}
	if req.DisplayName != nil {
		number.DisplayName = req.DisplayName
	}
	if req.IsActive != nil {
		number.IsActive = req.IsActive
	}

	if err := f.numberRepo.Update(ctx, number); err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_UPDATE_FAILED", "WhatsApp number update failed", err)
	}

	_ = f.audit.record(ctx, models.AuditActionWhatsAppNumberUpdated, fmt.Sprintf("WhatsApp number updated: %s", number.DisplayPhoneNumber), true, nil, metadata,
		map[string]any{"whatsapp_number_id": number.ID, "credential_rotated": req.AccessToken != nil})

	resp := ToWhatsAppNumberResponse(number)
	return &resp, nil
}

// VerifyNumber checks the stored credential against the provider and refreshes display fields
func (f *WhatsAppNumberFlowImpl) VerifyNumber(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.WhatsAppNumberResponse, error) {
	number, err := f.getNumber(ctx, id)
	if err != nil {
		return nil, err
	}

	info, err := f.client.GetPhoneNumber(ctx, services.SenderCredentials{PhoneNumberID: number.PhoneNumberID, AccessToken: number.AccessToken})
	if err != nil {
		errMsg := err.Error()
		_ = f.audit.record(ctx, models.AuditActionWhatsAppNumberVerified, "WhatsApp number verification failed", false, &errMsg, metadata,
			map[string]any{"whatsapp_number_id": number.ID})
		return nil, NewBusinessError("WHATSAPP_NUMBER_VERIFY_FAILED", "Provider rejected the whatsapp number credentials", err)
	}

	if info.DisplayPhoneNumber != "" {
		number.DisplayPhoneNumber = info.DisplayPhoneNumber
	}
	if info.VerifiedName != "" {
		number.DisplayName = utils.ToPtr(info.VerifiedName)
	}
	number.LastVerifiedAt = utils.UTCNowPtr()

	if err := f.numberRepo.Update(ctx, number); err != nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_UPDATE_FAILED", "WhatsApp number update failed", err)
	}

	_ = f.audit.record(ctx, models.AuditActionWhatsAppNumberVerified, fmt.Sprintf("WhatsApp number verified: %s", number.DisplayPhoneNumber), true, nil, metadata,
		map[string]any{"whatsapp_number_id": number.ID})

	resp := ToWhatsAppNumberResponse(number)
	return &resp, nil
}
