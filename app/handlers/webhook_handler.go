package handlers

import (
	"errors"
	"log"

	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandler receives provider callbacks. It is mounted outside the
// operator auth group; callers authenticate with the verify token and the
// payload signature instead.
type WebhookHandler struct {
	baseHandler
	webhookFlow businessflow.WebhookFlow
}

func NewWebhookHandler(webhookFlow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{
		baseHandler: newBaseHandler(),
		webhookFlow: webhookFlow,
	}
}

// VerifySubscription answers the provider's subscription handshake
// @Summary Webhook Verification
// @Tags Webhooks
// @Produce plain
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Configured verify token"
// @Param hub.challenge query string true "Echoed back on success"
// @Success 200 {string} string "challenge"
// @Failure 400 {object} dto.APIResponse "Missing parameters"
// @Failure 403 {object} dto.APIResponse "Mode or token mismatch"
// @Router /api/v1/webhooks/whatsapp [get]
func (h *WebhookHandler) VerifySubscription(c fiber.Ctx) error {
	challenge, err := h.webhookFlow.VerifySubscription(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		if errors.Is(err, businessflow.ErrMalformedWebhook) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, errorMessage(err, "Missing verification parameters"), businessflow.ErrorCode(err, "WEBHOOK_VERIFY_PARAMS_MISSING"), nil)
		}
		return h.ErrorResponse(c, fiber.StatusForbidden, errorMessage(err, "Webhook verification failed"), businessflow.ErrorCode(err, "WEBHOOK_VERIFY_FAILED"), nil)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// ReceiveEvents stores a status callback for asynchronous processing
// @Summary Webhook Events
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Hub-Signature-256 header string true "sha256=<hex hmac of the raw body>"
// @Success 200 {object} dto.APIResponse{data=dto.WebhookIngestResponse}
// @Failure 400 {object} dto.APIResponse "Malformed payload"
// @Failure 401 {object} dto.APIResponse "Invalid signature"
// @Failure 500 {object} dto.APIResponse "Events could not be stored"
// @Router /api/v1/webhooks/whatsapp [post]
func (h *WebhookHandler) ReceiveEvents(c fiber.Ctx) error {
	body := c.Body()

	if err := h.webhookFlow.VerifySignature(body, c.Get(utils.WebhookSignatureHeader)); err != nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook signature", "INVALID_SIGNATURE", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/webhooks/whatsapp")
	defer cancel()

	result, err := h.webhookFlow.Ingest(ctx, body)
	if err != nil {
		if businessflow.IsInvalidRequest(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, errorMessage(err, "Malformed webhook payload"), "MALFORMED_WEBHOOK", unwrapDetail(err))
		}
		log.Printf("webhook ingest failed: %v", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to persist webhook events", "WEBHOOK_PERSIST_FAILED", nil)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": result.Received})
}
