package handlers

import (
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	RetryFailedMessages(c fiber.Ctx) error
	GetStatistics(c fiber.Ctx) error
	ListMessageLogs(c fiber.Ctx) error
	ExportReport(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	baseHandler
	campaignFlow businessflow.CampaignFlow
	reportFlow   businessflow.CampaignReportFlow
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, reportFlow businessflow.CampaignReportFlow) *CampaignHandler {
	return &CampaignHandler{
		baseHandler:  newBaseHandler(),
		campaignFlow: campaignFlow,
		reportFlow:   reportFlow,
	}
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Description Create a PENDING campaign with one PENDING message per active recipient
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Template not approved, sender inactive or no active contacts"
// @Failure 404 {object} dto.APIResponse "Template or sender not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// GetCampaign returns one campaign with its counters
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/campaigns/%d", id))
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get campaign", "CAMPAIGN_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ListCampaigns handles listing campaigns
// @Summary List Campaigns
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param status query string false "PENDING, PROCESSING, COMPLETED, FAILED or CANCELLED"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	var req dto.ListCampaignsRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// StartCampaign moves a PENDING campaign to PROCESSING and enqueues its messages
// @Summary Start Campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 202 {object} dto.APIResponse{data=dto.StartCampaignResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign not pending or locked"
// @Router /api/v1/campaigns/{id}/start [post]
func (h *CampaignHandler) StartCampaign(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/campaigns/%d/start", id))
	defer cancel()

	result, err := h.campaignFlow.StartCampaign(ctx, id, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Campaign start failed", "CAMPAIGN_START_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign started", result)
}

// CancelCampaign stops a PENDING or PROCESSING campaign
// @Summary Cancel Campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CancelCampaignResponse}
// @Failure 409 {object} dto.APIResponse "Campaign cannot be cancelled"
// @Router /api/v1/campaigns/{id}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/campaigns/%d/cancel", id))
	defer cancel()

	result, err := h.campaignFlow.CancelCampaign(ctx, id, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Campaign cancellation failed", "CAMPAIGN_CANCEL_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign cancelled", result)
}

// RetryFailedMessages re-enqueues FAILED messages that have retries left
// @Summary Retry Failed Messages
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 202 {object} dto.APIResponse{data=dto.RetryCampaignResponse}
// @Failure 409 {object} dto.APIResponse "Campaign not retryable"
// @Router /api/v1/campaigns/{id}/retry [post]
func (h *CampaignHandler) RetryFailedMessages(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/campaigns/%d/retry", id))
	defer cancel()

	result, err := h.campaignFlow.RetryFailedMessages(ctx, id, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Campaign retry failed", "CAMPAIGN_RETRY_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, fmt.Sprintf("%d messages re-enqueued", result.Retried), result)
}

// GetStatistics returns the counter snapshot and derived rates
// @Summary Campaign Statistics
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param recompute query bool false "Rebuild counters from the message logs"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignStatisticsResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{id}/statistics [get]
func (h *CampaignHandler) GetStatistics(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/campaigns/%d/statistics", id))
	defer cancel()

	var result *dto.CampaignStatisticsResponse
	if fiber.Query[bool](c, "recompute") {
		result, err = h.campaignFlow.RecomputeStatistics(ctx, id)
	} else {
		result, err = h.campaignFlow.GetStatistics(ctx, id)
	}
	if err != nil {
		return h.flowError(c, err, "Failed to get campaign statistics", "CAMPAIGN_STATISTICS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign statistics retrieved successfully", result)
}

// ListMessageLogs pages through a campaign's messages
// @Summary Campaign Messages
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param status query string false "PENDING, SENT, DELIVERED, READ or FAILED"
// @Success 200 {object} dto.APIResponse{data=dto.ListMessageLogsResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{id}/messages [get]
func (h *CampaignHandler) ListMessageLogs(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}
	var req dto.ListMessageLogsRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}
	req.CampaignID = id

	ctx, cancel := h.createRequestContext(c, fmt.Sprintf("/api/v1/campaigns/%d/messages", id))
	defer cancel()

	result, err := h.campaignFlow.ListMessageLogs(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to list campaign messages", "MESSAGE_LOG_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign messages retrieved successfully", result)
}

// ExportReport downloads the campaign report workbook
// @Summary Export Campaign Report
// @Tags Campaigns
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {file} file "XLSX workbook"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{id}/report [get]
func (h *CampaignHandler) ExportReport(c fiber.Ctx) error {
	id, ok, err := h.paramID(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContextWithTimeout(c, fmt.Sprintf("/api/v1/campaigns/%d/report", id), 2*defaultRequestTimeout)
	defer cancel()

	content, filename, err := h.reportFlow.ExportCampaignReport(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Campaign report export failed", "CAMPAIGN_REPORT_FAILED")
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(content)
}
