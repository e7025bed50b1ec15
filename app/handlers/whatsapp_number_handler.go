package handlers

import (
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/gofiber/fiber/v3"
)

// WhatsAppNumberHandlerInterface defines the contract for sender number handlers
type WhatsAppNumberHandlerInterface interface {
	CreateNumber(c fiber.Ctx) error
	GetNumber(c fiber.Ctx) error
	ListNumbers(c fiber.Ctx) error
	UpdateNumber(c fiber.Ctx) error
	VerifyNumber(c fiber.Ctx) error
}

// WhatsAppNumberHandler handles sender number HTTP requests. Access tokens are
// accepted on write and never returned.
type WhatsAppNumberHandler struct {
	baseHandler
	numberFlow businessflow.WhatsAppNumberFlow
}

func NewWhatsAppNumberHandler(numberFlow businessflow.WhatsAppNumberFlow) *WhatsAppNumberHandler {
	return &WhatsAppNumberHandler{
		baseHandler: newBaseHandler(),
		numberFlow:  numberFlow,
	}
}

// CreateNumber registers a sender number
// @Summary Register WhatsApp Number
// @Tags WhatsApp Numbers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateWhatsAppNumberRequest true "Sender credentials"
// @Success 201 {object} dto.APIResponse{data=dto.WhatsAppNumberResponse}
// @Failure 409 {object} dto.APIResponse "Phone number id already registered"
// @Router /api/v1/whatsapp-numbers [post]
func (h *WhatsAppNumberHandler) CreateNumber(c fiber.Ctx) error {
	var req dto.CreateWhatsAppNumberRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/whatsapp-numbers")
	defer cancel()

	result, err := h.numberFlow.CreateNumber(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "WhatsApp number creation failed", "WHATSAPP_NUMBER_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "WhatsApp number registered successfully", result)
}

// GetNumber returns one sender
// @Summary Get WhatsApp Number
// @Tags WhatsApp Numbers
// @Produce json
// @Security BearerAuth
// @Param id path int true "WhatsApp number ID"
// @Success 200 {object} dto.APIResponse{data=dto.WhatsAppNumberResponse}
// @Failure 404 {object} dto.APIResponse "WhatsApp number not found"
// @Router /api/v1/whatsapp-numbers/{id} [get]
func (h *WhatsAppNumberHandler) GetNumber(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/whatsapp-numbers/%d", id))
	defer cancel()

	result, err := h.numberFlow.GetNumber(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get whatsapp number", "WHATSAPP_NUMBER_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "WhatsApp number retrieved successfully", result)
}

// ListNumbers lists senders
// @Summary List WhatsApp Numbers
// @Tags WhatsApp Numbers
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param is_active query bool false "Active flag"
// @Success 200 {object} dto.APIResponse{data=dto.ListWhatsAppNumbersResponse}
// @Router /api/v1/whatsapp-numbers [get]
func (h *WhatsAppNumberHandler) ListNumbers(c fiber.Ctx) error {
	var req dto.ListWhatsAppNumbersRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/whatsapp-numbers")
	defer cancel()

	result, err := h.numberFlow.ListNumbers(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to list whatsapp numbers", "WHATSAPP_NUMBER_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "WhatsApp numbers retrieved successfully", result)
}

// UpdateNumber rotates credentials or toggles the active flag
// @Summary Update WhatsApp Number
// @Tags WhatsApp Numbers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "WhatsApp number ID"
// @Param request body dto.UpdateWhatsAppNumberRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.WhatsAppNumberResponse}
// @Failure 404 {object} dto.APIResponse "WhatsApp number not found"
// @Router /api/v1/whatsapp-numbers/{id} [put]
func (h *WhatsAppNumberHandler) UpdateNumber(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}
	var req dto.UpdateWhatsAppNumberRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	req.ID = id

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/whatsapp-numbers/%d", id))
	defer cancel()

	result, err := h.numberFlow.UpdateNumber(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "WhatsApp number update failed", "WHATSAPP_NUMBER_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "WhatsApp number updated successfully", result)
}

// VerifyNumber checks the stored credential against the provider
// @Summary Verify WhatsApp Number
// @Tags WhatsApp Numbers
// @Produce json
// @Security BearerAuth
// @Param id path int true "WhatsApp number ID"
// @Success 200 {object} dto.APIResponse{data=dto.WhatsAppNumberResponse}
// @Failure 404 {object} dto.APIResponse "WhatsApp number not found"
// @Failure 502 {object} dto.APIResponse "Provider rejected the credentials"
// @Router /api/v1/whatsapp-numbers/{id}/verify [post]
func (h *WhatsAppNumberHandler) VerifyNumber(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/whatsapp-numbers/%d/verify", id))
	defer cancel()

	result, err := h.numberFlow.VerifyNumber(ctx, id, h.metadata(c))
	if err != nil {
		if businessflow.ErrorCode(err, "") == "WHATSAPP_NUMBER_VERIFY_FAILED" {
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Provider rejected the whatsapp number credentials", "WHATSAPP_NUMBER_VERIFY_FAILED", unwrapDetail(err))
		}
		return h.flowError(c, err, "WhatsApp number verification failed", "WHATSAPP_NUMBER_VERIFY_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "WhatsApp number verified", result)
}
