package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/google/uuid"
)

// TemplateFlow manages message templates and their approval lifecycle
type TemplateFlow interface {
	CreateTemplate(ctx context.Context, req *dto.CreateTemplateRequest, metadata *ClientMetadata) (*dto.TemplateResponse, error)
	GetTemplate(ctx context.Context, id uint) (*dto.TemplateResponse, error)
	ListTemplates(ctx context.Context, req *dto.ListTemplatesRequest) (*dto.ListTemplatesResponse, error)
	UpdateTemplate(ctx context.Context, req *dto.UpdateTemplateRequest, metadata *ClientMetadata) (*dto.TemplateResponse, error)
	SubmitTemplate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.TemplateResponse, error)
	ApproveTemplate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.TemplateResponse, error)
	RejectTemplate(ctx context.Context, id uint, reason string, metadata *ClientMetadata) (*dto.TemplateResponse, error)
	ReviseTemplate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.TemplateResponse, error)
	PreviewTemplate(ctx context.Context, id uint, req *dto.PreviewTemplateRequest) (*dto.PreviewTemplateResponse, error)
}

type TemplateFlowImpl struct {
	templateRepo repository.TemplateRepository
	campaignRepo repository.CampaignRepository
	audit        auditRecorder
}

func NewTemplateFlow(
	templateRepo repository.TemplateRepository,
	campaignRepo repository.CampaignRepository,
	auditRepo repository.AuditLogRepository,
) TemplateFlow {
	return &TemplateFlowImpl{
		templateRepo: templateRepo,
		campaignRepo: campaignRepo,
		audit:        auditRecorder{auditRepo: auditRepo},
	}
}

func toTemplateButtons(in []dto.TemplateButtonDTO) models.TemplateButtons {
	out := make(models.TemplateButtons, 0, len(in))
	for _, b := range in {
		out = append(out, models.TemplateButton{
			Type:        b.Type,
			Text:        b.Text,
			URL:         b.URL,
			PhoneNumber: b.PhoneNumber,
		})
	}
	return out
}

// validateTemplate checks the structural rules the validator tags cannot express
func validateTemplate(t *models.Template) error {
	if !t.Category.Valid() {
		return fmt.Errorf("invalid category %q", t.Category)
	}
	if !t.HeaderType.Valid() {
		return fmt.Errorf("invalid header type %q", t.HeaderType)
	}
	if t.HeaderType != models.TemplateHeaderNone && strings.TrimSpace(utils.Deref(t.HeaderContent)) == "" {
		return ErrInvalidTemplateHeader
	}
	for i, b := range t.Buttons {
		switch b.Type {
		case models.TemplateButtonQuickReply:
		case models.TemplateButtonURL:
			if b.URL == "" {
				return fmt.Errorf("%w: button %d needs a url", ErrInvalidTemplateButton, i)
			}
		case models.TemplateButtonPhoneNumber:
			if b.PhoneNumber == "" {
				return fmt.Errorf("%w: button %d needs a phone number", ErrInvalidTemplateButton, i)
			}
		default:
			return fmt.Errorf("%w: button %d has type %q", ErrInvalidTemplateButton, i, b.Type)
		}
	}
	return nil
}

func (f *TemplateFlowImpl) CreateTemplate(ctx context.Context, req *dto.CreateTemplateRequest, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	headerType := models.TemplateHeaderNone
	if req.HeaderType != "" {
		headerType = models.TemplateHeaderType(req.HeaderType)
	}

	template := &models.Template{
		UUID:          uuid.New(),
		Name:          strings.TrimSpace(req.Name),
		Language:      req.Language,
		Category:      models.TemplateCategory(req.Category),
		Body:          req.Body,
		HeaderType:    headerType,
		HeaderContent: req.HeaderContent,
		Footer:        req.Footer,
		Buttons:       toTemplateButtons(req.Buttons),
		Status:        models.TemplateStatusDraft,
	}
	template.Variables = TemplateVariables(template)

	if err := validateTemplate(template); err != nil {
		return nil, NewBusinessError("TEMPLATE_VALIDATION_FAILED", "Template validation failed", err)
	}

	existing, err := f.templateRepo.ByName(ctx, template.Name)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if existing != nil {
		return nil, NewBusinessError("TEMPLATE_NAME_EXISTS", "A template with this name already exists", ErrTemplateNameExists)
	}

	if err := f.templateRepo.Save(ctx, template); err != nil {
		return nil, NewBusinessError("TEMPLATE_CREATION_FAILED", "Template creation failed", err)
	}

	_ = f.audit.record(ctx, models.AuditActionTemplateCreated, fmt.Sprintf("Template created: %s", template.Name), true, nil, metadata,
		map[string]any{"template_id": template.ID})

	resp := ToTemplateResponse(template)
	return &resp, nil
}

func (f *TemplateFlowImpl) getTemplate(ctx context.Context, id uint) (*models.Template, error) {
	template, err := f.templateRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if template == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_FOUND", "Template not found", ErrTemplateNotFound)
	}
	return template, nil
}

func (f *TemplateFlowImpl) GetTemplate(ctx context.Context, id uint) (*dto.TemplateResponse, error) {
	template, err := f.getTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToTemplateResponse(template)
	return &resp, nil
}

func (f *TemplateFlowImpl) ListTemplates(ctx context.Context, req *dto.ListTemplatesRequest) (*dto.ListTemplatesResponse, error) {
	limit, offset := req.Normalize()

	filter := models.TemplateFilter{}
	if req.Status != "" {
		status := models.TemplateStatus(req.Status)
		filter.Status = &status
	}
	if req.Category != "" {
		category := models.TemplateCategory(req.Category)
		filter.Category = &category
	}
	if req.Name != "" {
		filter.Name = &req.Name
	}

	total, err := f.templateRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LIST_FAILED", "Failed to list templates", err)
	}
	templates, err := f.templateRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LIST_FAILED", "Failed to list templates", err)
	}

	items := make([]dto.TemplateResponse, 0, len(templates))
	for _, t := range templates {
		items = append(items, ToTemplateResponse(t))
	}
	return &dto.ListTemplatesResponse{Items: items, Pagination: dto.NewPaginationInfo(total, req.Page, limit)}, nil
}

// UpdateTemplate edits a DRAFT or REJECTED template that no campaign references yet
func (f *TemplateFlowImpl) UpdateTemplate(ctx context.Context, req *dto.UpdateTemplateRequest, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	template, err := f.getTemplate(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !template.Status.Editable() {
		return nil, NewBusinessError("TEMPLATE_NOT_EDITABLE", "Template is not editable in its current status", ErrTemplateNotEditable)
	}

	inUse, err := f.campaignRepo.Exists(ctx, models.CampaignFilter{TemplateID: &template.ID})
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to check template usage", err)
	}
	if inUse {
		return nil, NewBusinessError("TEMPLATE_IN_USE", "Template is referenced by a campaign", ErrTemplateInUse)
	}

	if req.Language != nil {
		template.Language = *req.Language
	}
	if req.Category != nil {
		template.Category = models.TemplateCategory(*req.Category)
	}
	if req.Body != nil {
		template.Body = *req.Body
	}
	if req.HeaderType != nil {
		template.HeaderType = models.TemplateHeaderType(*req.HeaderType)
	}
	if req.HeaderContent != nil {
		template.HeaderContent = req.HeaderContent
	}
	if req.Footer != nil {
		template.Footer = req.Footer
	}
	if req.Buttons != nil {
		template.Buttons = toTemplateButtons(req.Buttons)
	}
	template.Variables = TemplateVariables(template)

	if err := validateTemplate(template); err != nil {
		return nil, NewBusinessError("TEMPLATE_VALIDATION_FAILED", "Template validation failed", err)
	}

	if err := f.templateRepo.Update(ctx, template); err != nil {
		return nil, NewBusinessError("TEMPLATE_UPDATE_FAILED", "Template update failed", err)
	}

	_ = f.audit.record(ctx, models.AuditActionTemplateUpdated, fmt.Sprintf("Template updated: %s", template.Name), true, nil, metadata,
		map[string]any{"template_id": template.ID})

	resp := ToTemplateResponse(template)
	return &resp, nil
}

func (f *TemplateFlowImpl) transition(ctx context.Context, id uint, to models.TemplateStatus, reason *string, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	template, err := f.getTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	from := template.Status
	if !from.CanTransitionTo(to) {
		return nil, NewBusinessErrorf("INVALID_TEMPLATE_TRANSITION", "Template cannot move from %s to %s", ErrInvalidTemplateTransition, from, to)
	}

	moved, err := f.templateRepo.TransitionStatus(ctx, id, from, to, reason)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_UPDATE_FAILED", "Template status update failed", err)
	}
	if !moved {
		return nil, NewBusinessError("INVALID_TEMPLATE_TRANSITION", "Template status changed concurrently", ErrInvalidTemplateTransition)
	}

	_ = f.audit.record(ctx, models.AuditActionTemplateStatusChanged, fmt.Sprintf("Template %s: %s -> %s", template.Name, from, to), true, nil, metadata,
		map[string]any{"template_id": id, "from": from, "to": to})

	return f.GetTemplate(ctx, id)
}

func (f *TemplateFlowImpl) SubmitTemplate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	return f.transition(ctx, id, models.TemplateStatusPending, nil, metadata)
}

func (f *TemplateFlowImpl) ApproveTemplate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	return f.transition(ctx, id, models.TemplateStatusApproved, nil, metadata)
}

func (f *TemplateFlowImpl) RejectTemplate(ctx context.Context, id uint, reason string, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	return f.transition(ctx, id, models.TemplateStatusRejected, &reason, metadata)
}

func (f *TemplateFlowImpl) ReviseTemplate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.TemplateResponse, error) {
	return f.transition(ctx, id, models.TemplateStatusDraft, nil, metadata)
}

// PreviewTemplate renders the body and provider components for sample values
func (f *TemplateFlowImpl) PreviewTemplate(ctx context.Context, id uint, req *dto.PreviewTemplateRequest) (*dto.PreviewTemplateResponse, error) {
	template, err := f.getTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := BuildTemplatePayload(template, req.Variables)
	return &dto.PreviewTemplateResponse{
		Content:          RenderTemplate(template.Body, req.Variables),
		Components:       payload.Components,
		MissingVariables: MissingVariables(template.Variables, req.Variables),
	}, nil
}
