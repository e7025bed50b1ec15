package handlers

import (
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ContactHandlerInterface defines the contract for contact handlers
type ContactHandlerInterface interface {
	CreateContact(c fiber.Ctx) error
	ImportContacts(c fiber.Ctx) error
	GetContact(c fiber.Ctx) error
	ListContacts(c fiber.Ctx) error
	UpdateContact(c fiber.Ctx) error
	DeleteContact(c fiber.Ctx) error
}

// ContactHandler handles contact-related HTTP requests
type ContactHandler struct {
	baseHandler
	contactFlow businessflow.ContactFlow
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactFlow businessflow.ContactFlow) *ContactHandler {
	return &ContactHandler{
		baseHandler: newBaseHandler(),
		contactFlow: contactFlow,
	}
}

// CreateContact handles contact creation
// @Summary Create Contact
// @Description Create a recipient; the mobile is normalised to E.164
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateContactRequest true "Contact data"
// @Success 201 {object} dto.APIResponse{data=dto.ContactResponse} "Contact created successfully"
// @Failure 400 {object} dto.APIResponse "Invalid mobile or validation error"
// @Failure 409 {object} dto.APIResponse "Mobile already exists"
// @Router /api/v1/contacts [post]
func (h *ContactHandler) CreateContact(c fiber.Ctx) error {
	var req dto.CreateContactRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts")
	defer cancel()

	result, err := h.contactFlow.CreateContact(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Contact creation failed", "CONTACT_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Contact created successfully", result)
}

// ImportContacts handles bulk contact creation
// @Summary Import Contacts
// @Description Create many contacts; each row succeeds or fails on its own
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ImportContactsRequest true "Rows to import"
// @Success 200 {object} dto.APIResponse{data=dto.ImportContactsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/contacts/import [post]
func (h *ContactHandler) ImportContacts(c fiber.Ctx) error {
	var req dto.ImportContactsRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/contacts/import", 2*defaultRequestTimeout)
	defer cancel()

	result, err := h.contactFlow.ImportContacts(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Contact import failed", "CONTACT_IMPORT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, fmt.Sprintf("Imported %d contacts, %d failed", result.Created, result.Failed), result)
}

// GetContact returns one contact
// @Summary Get Contact
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} dto.APIResponse{data=dto.ContactResponse}
// @Failure 404 {object} dto.APIResponse "Contact not found"
// @Router /api/v1/contacts/{id} [get]
func (h *ContactHandler) GetContact(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/contacts/%d", id))
	defer cancel()

	result, err := h.contactFlow.GetContact(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get contact", "CONTACT_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contact retrieved successfully", result)
}

// ListContacts lists contacts
// @Summary List Contacts
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param name query string false "Name contains"
// @Param mobile query string false "Exact mobile, any format"
// @Param is_active query bool false "Active flag"
// @Success 200 {object} dto.APIResponse{data=dto.ListContactsResponse}
// @Router /api/v1/contacts [get]
func (h *ContactHandler) ListContacts(c fiber.Ctx) error {
	var req dto.ListContactsRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts")
	defer cancel()

	result, err := h.contactFlow.ListContacts(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to list contacts", "CONTACT_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contacts retrieved successfully", result)
}

// UpdateContact changes contact fields, including the active flag
// @Summary Update Contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Param request body dto.UpdateContactRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.ContactResponse}
// @Failure 404 {object} dto.APIResponse "Contact not found"
// @Failure 409 {object} dto.APIResponse "Mobile already exists"
// @Router /api/v1/contacts/{id} [put]
func (h *ContactHandler) UpdateContact(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}
	var req dto.UpdateContactRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	req.ID = id

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/contacts/%d", id))
	defer cancel()

	result, err := h.contactFlow.UpdateContact(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Contact update failed", "CONTACT_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contact updated successfully", result)
}

// DeleteContact removes a contact no campaign message references
// @Summary Delete Contact
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Contact not found"
// @Failure 409 {object} dto.APIResponse "Contact referenced by campaign messages"
// @Router /api/v1/contacts/{id} [delete]
func (h *ContactHandler) DeleteContact(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/contacts/%d", id))
	defer cancel()

	if err := h.contactFlow.DeleteContact(ctx, id, h.metadata(c)); err != nil {
		return h.flowError(c, err, "Contact deletion failed", "CONTACT_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contact deleted successfully", fiber.Map{"id": id})
}
