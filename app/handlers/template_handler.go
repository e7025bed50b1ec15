package handlers

import (
	"context"
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/gofiber/fiber/v3"
)

// TemplateHandlerInterface defines the contract for template handlers
type TemplateHandlerInterface interface {
	CreateTemplate(c fiber.Ctx) error
	GetTemplate(c fiber.Ctx) error
	ListTemplates(c fiber.Ctx) error
	UpdateTemplate(c fiber.Ctx) error
	SubmitTemplate(c fiber.Ctx) error
	ApproveTemplate(c fiber.Ctx) error
	RejectTemplate(c fiber.Ctx) error
	ReviseTemplate(c fiber.Ctx) error
	PreviewTemplate(c fiber.Ctx) error
}

// TemplateHandler handles template-related HTTP requests
type TemplateHandler struct {
	baseHandler
	templateFlow businessflow.TemplateFlow
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templateFlow businessflow.TemplateFlow) *TemplateHandler {
	return &TemplateHandler{
		baseHandler:  newBaseHandler(),
		templateFlow: templateFlow,
	}
}

// CreateTemplate handles template creation
// @Summary Create Template
// @Description Create a DRAFT message template; placeholders are extracted from header, body and url buttons
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateTemplateRequest true "Template data"
// @Success 201 {object} dto.APIResponse{data=dto.TemplateResponse} "Template created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 409 {object} dto.APIResponse "Template name already exists"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/templates [post]
func (h *TemplateHandler) CreateTemplate(c fiber.Ctx) error {
	var req dto.CreateTemplateRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/templates")
	defer cancel()

	result, err := h.templateFlow.CreateTemplate(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Template creation failed", "TEMPLATE_CREATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Template created successfully", result)
}

// GetTemplate returns one template
// @Summary Get Template
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Success 200 {object} dto.APIResponse{data=dto.TemplateResponse}
// @Failure 404 {object} dto.APIResponse "Template not found"
// @Router /api/v1/templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/templates/%d", id))
	defer cancel()

	result, err := h.templateFlow.GetTemplate(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get template", "TEMPLATE_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template retrieved successfully", result)
}

// ListTemplates lists templates
// @Summary List Templates
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param status query string false "DRAFT, PENDING, APPROVED or REJECTED"
// @Param category query string false "MARKETING, UTILITY or AUTHENTICATION"
// @Param name query string false "Name contains"
// @Success 200 {object} dto.APIResponse{data=dto.ListTemplatesResponse}
// @Router /api/v1/templates [get]
func (h *TemplateHandler) ListTemplates(c fiber.Ctx) error {
	var req dto.ListTemplatesRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/templates")
	defer cancel()

	result, err := h.templateFlow.ListTemplates(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to list templates", "TEMPLATE_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Templates retrieved successfully", result)
}

// UpdateTemplate edits a DRAFT or REJECTED template
// @Summary Update Template
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Param request body dto.UpdateTemplateRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.TemplateResponse}
// @Failure 404 {object} dto.APIResponse "Template not found"
// @Failure 409 {object} dto.APIResponse "Template not editable or in use"
// @Router /api/v1/templates/{id} [put]
func (h *TemplateHandler) UpdateTemplate(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}
	var req dto.UpdateTemplateRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	req.ID = id

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/templates/%d", id))
	defer cancel()

	result, err := h.templateFlow.UpdateTemplate(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Template update failed", "TEMPLATE_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template updated successfully", result)
}

// SubmitTemplate moves a DRAFT template to PENDING
// @Summary Submit Template
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Success 200 {object} dto.APIResponse{data=dto.TemplateResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/templates/{id}/submit [post]
func (h *TemplateHandler) SubmitTemplate(c fiber.Ctx) error {
	return h.transition(c, "submit", h.templateFlow.SubmitTemplate)
}

// ApproveTemplate moves a PENDING template to APPROVED
// @Summary Approve Template
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Success 200 {object} dto.APIResponse{data=dto.TemplateResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/templates/{id}/approve [post]
func (h *TemplateHandler) ApproveTemplate(c fiber.Ctx) error {
	return h.transition(c, "approve", h.templateFlow.ApproveTemplate)
}

// ReviseTemplate moves a REJECTED template back to DRAFT
// @Summary Revise Template
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Success 200 {object} dto.APIResponse{data=dto.TemplateResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/templates/{id}/revise [post]
func (h *TemplateHandler) ReviseTemplate(c fiber.Ctx) error {
	return h.transition(c, "revise", h.templateFlow.ReviseTemplate)
}

// RejectTemplate moves a PENDING template to REJECTED with a reason
// @Summary Reject Template
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Param request body dto.RejectTemplateRequest true "Rejection reason"
// @Success 200 {object} dto.APIResponse{data=dto.TemplateResponse}
// @Failure 409 {object} dto.APIResponse "Invalid status transition"
// @Router /api/v1/templates/{id}/reject [post]
func (h *TemplateHandler) RejectTemplate(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}
	var req dto.RejectTemplateRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/templates/%d/reject", id))
	defer cancel()

	result, err := h.templateFlow.RejectTemplate(ctx, id, req.Reason, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Template status update failed", "TEMPLATE_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template rejected", result)
}

// PreviewTemplate renders a template with sample values
// @Summary Preview Template
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Template ID"
// @Param request body dto.PreviewTemplateRequest true "Sample variables"
// @Success 200 {object} dto.APIResponse{data=dto.PreviewTemplateResponse}
// @Failure 404 {object} dto.APIResponse "Template not found"
// @Router /api/v1/templates/{id}/preview [post]
func (h *TemplateHandler) PreviewTemplate(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}
	var req dto.PreviewTemplateRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/templates/%d/preview", id))
	defer cancel()

	result, err := h.templateFlow.PreviewTemplate(ctx, id, &req)
	if err != nil {
		return h.flowError(c, err, "Template preview failed", "TEMPLATE_PREVIEW_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template rendered", result)
}

type templateTransitionFunc func(ctx context.Context, id uint, metadata *businessflow.ClientMetadata) (*dto.TemplateResponse, error)

func (h *TemplateHandler) transition(c fiber.Ctx, action string, fn templateTransitionFunc) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/templates/%d/%s", id, action))
	defer cancel()

	result, err := fn(ctx, id, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Template status update failed", "TEMPLATE_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template status updated", result)
}
