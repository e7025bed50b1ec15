package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/metrics"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"gorm.io/gorm"
)

const unsupportedStatusNote = "unsupported status"

// WebhookFlow persists provider status callbacks and applies them to message logs
type WebhookFlow interface {
	VerifySubscription(mode, token, challenge string) (string, error)
	VerifySignature(body []byte, signature string) error
	Ingest(ctx context.Context, body []byte) (*dto.WebhookIngestResponse, error)
	ProcessEvent(ctx context.Context, eventID uint) error
	ReconcileEvents(ctx context.Context, minAge time.Duration, maxAttempts, limit int) (int, error)
}

// WebhookFlowImpl implements WebhookFlow
type WebhookFlowImpl struct {
	eventRepo      repository.WebhookEventRepository
	messageLogRepo repository.MessageLogRepository
	queueRepo      repository.QueueTaskRepository
	stats          *CampaignStatistics
	whatsappConfig config.WhatsAppConfig
	queueConfig    config.QueueConfig
	db             *gorm.DB
	logger         *log.Logger
}

func NewWebhookFlow(
	eventRepo repository.WebhookEventRepository,
	messageLogRepo repository.MessageLogRepository,
	queueRepo repository.QueueTaskRepository,
	stats *CampaignStatistics,
	whatsappConfig config.WhatsAppConfig,
	queueConfig config.QueueConfig,
	db *gorm.DB,
	logger *log.Logger,
) WebhookFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookFlowImpl{
		eventRepo:      eventRepo,
		messageLogRepo: messageLogRepo,
		queueRepo:      queueRepo,
		stats:          stats,
		whatsappConfig: whatsappConfig,
		queueConfig:    queueConfig,
		db:             db,
		logger:         logger,
	}
}

// VerifySubscription answers the provider's GET handshake with the challenge
func (f *WebhookFlowImpl) VerifySubscription(mode, token, challenge string) (string, error) {
	if mode == "" || token == "" || challenge == "" {
		return "", NewBusinessError("WEBHOOK_VERIFY_PARAMS_MISSING", "hub.mode, hub.verify_token and hub.challenge are required", ErrMalformedWebhook)
	}
	if mode != "subscribe" {
		return "", NewBusinessError("WEBHOOK_VERIFY_FAILED", "Unsupported hub.mode", ErrInvalidWebhookMode)
	}
	expected := f.whatsappConfig.VerifyToken
	if expected == "" || !hmac.Equal([]byte(token), []byte(expected)) {
		return "", NewBusinessError("WEBHOOK_VERIFY_FAILED", "Verify token mismatch", ErrInvalidVerifyToken)
	}
	return challenge, nil
}

// VerifySignature checks X-Hub-Signature-256 when an app secret is configured
func (f *WebhookFlowImpl) VerifySignature(body []byte, signature string) error {
	secret := f.whatsappConfig.AppSecret
	if secret == "" {
		return nil
	}

	hexSig, ok := strings.CutPrefix(strings.TrimSpace(signature), "sha256=")
	if !ok {
		return NewBusinessError("INVALID_SIGNATURE", "Missing or malformed signature", ErrInvalidSignature)
	}
	given, err := hex.DecodeString(hexSig)
	if err != nil {
		return NewBusinessError("INVALID_SIGNATURE", "Malformed signature", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(given, mac.Sum(nil)) {
		return NewBusinessError("INVALID_SIGNATURE", "Signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// SignPayload returns the header value the provider would send for body
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (f *WebhookFlowImpl) maxAttempts() int {
	if f.queueConfig.MaxAttempts > 0 {
		return f.queueConfig.MaxAttempts
	}
	return utils.DefaultQueueMaxAttempts
}

// Ingest stores every status item verbatim and enqueues its processing in the
// same transaction. Only a body that is not JSON at all is rejected; items
// that do not decode are kept unprocessed with the decode error.
func (f *WebhookFlowImpl) Ingest(ctx context.Context, body []byte) (*dto.WebhookIngestResponse, error) {
	if !json.Valid(body) {
		return nil, NewBusinessError("MALFORMED_WEBHOOK", "Malformed webhook payload", ErrMalformedWebhook)
	}

	now := utils.UTCNow()
	events := make([]*models.WebhookEvent, 0)

	var payload dto.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		events = append(events, undecodableWebhookEvent(body, err))
	} else {
		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				for _, raw := range change.Value.Statuses {
					events = append(events, newWebhookEvent(raw, now))
				}
			}
		}
	}

	if len(events) == 0 {
		return &dto.WebhookIngestResponse{Received: 0}, nil
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.eventRepo.SaveBatch(txCtx, events); err != nil {
			return err
		}

		tasks := make([]*models.QueueTask, 0, len(events))
		for _, event := range events {
			if event.Processed || !event.Decoded() {
				continue
			}
			task := models.NewProcessWebhookTask(event.ID, now, f.maxAttempts())
			tasks = append(tasks, &task)
		}
		return f.queueRepo.SaveBatch(txCtx, tasks)
	})
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_PERSIST_FAILED", "Failed to persist webhook events", err)
	}

	for _, event := range events {
		result := "received"
		if !event.Decoded() {
			result = "undecodable"
			f.logger.Printf("stored undecodable webhook item %q: %s", event.ProviderMessageID, utils.Deref(event.LastError))
		}
		metrics.WebhookEvent(string(event.EventType), result)
	}

	return &dto.WebhookIngestResponse{Received: len(events)}, nil
}

func newWebhookEvent(raw json.RawMessage, now time.Time) *models.WebhookEvent {
	var status dto.WebhookStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return undecodableWebhookEvent(raw, err)
	}

	eventType, supported := models.WebhookEventTypeFor(status.Status)
	occurredAt := utils.ParseUnixTimestamp(status.Timestamp)

	event := &models.WebhookEvent{
		EventType:         eventType,
		ProviderMessageID: status.ID,
		Status:            status.Status,
		OccurredAt:        &occurredAt,
		Payload:           models.RawJSON(raw),
	}
	if status.RecipientID != "" {
		event.RecipientID = &status.RecipientID
	}
	if !supported {
		event.Processed = true
		event.ProcessedAt = &now
		event.LastError = utils.ToPtr(unsupportedStatusNote)
	}
	return event
}

// undecodableWebhookEvent keeps raw JSON that does not fit the status shape.
// Identifying fields are copied when they are strings.
func undecodableWebhookEvent(raw []byte, decodeErr error) *models.WebhookEvent {
	var loose map[string]any
	_ = json.Unmarshal(raw, &loose)
	id, _ := loose["id"].(string)
	status, _ := loose["status"].(string)

	return &models.WebhookEvent{
		EventType:         models.WebhookEventUnsupported,
		ProviderMessageID: id,
		Status:            utils.Truncate(status, 32),
		Payload:           models.RawJSON(raw),
		LastError:         utils.ToPtr(models.WebhookDecodeErrorPrefix + decodeErr.Error()),
	}
}

// ProcessEvent applies one stored event to its message log. An event whose
// message is unknown stays unprocessed so a later attempt can match it.
func (f *WebhookFlowImpl) ProcessEvent(ctx context.Context, eventID uint) error {
	event, err := f.eventRepo.ByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event == nil || event.Processed {
		return nil
	}

	if !event.Decoded() {
		// left unprocessed for inspection
		return nil
	}

	target, ok := event.EventType.TargetStatus()
	if !ok {
		metrics.WebhookEvent(string(event.EventType), "unsupported")
		return f.eventRepo.MarkProcessed(ctx, event.ID, utils.ToPtr(unsupportedStatusNote), utils.UTCNow())
	}

	msg, err := f.messageLogRepo.ByProviderMessageID(ctx, event.ProviderMessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		metrics.WebhookEvent(string(event.EventType), "unmatched")
		if err := f.eventRepo.RecordFailure(ctx, event.ID, ErrMessageLogNotMatched.Error()); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrMessageLogNotMatched, event.ProviderMessageID)
	}

	occurredAt := utils.UTCNow()
	if event.OccurredAt != nil {
		occurredAt = event.OccurredAt.UTC()
	}

	var applied bool
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		applied, err = f.messageLogRepo.Transition(txCtx, msg.ID, target, transitionUpdates(target, occurredAt, event))
		if err != nil {
			return err
		}

		var note *string
		if !applied {
			note = utils.ToPtr(fmt.Sprintf("ignored %s for message in status %s", event.Status, msg.Status))
		}
		return f.eventRepo.MarkProcessed(txCtx, event.ID, note, utils.UTCNow())
	})
	if err != nil {
		return err
	}

	if applied {
		metrics.WebhookEvent(string(event.EventType), "applied")
	} else {
		metrics.WebhookEvent(string(event.EventType), "ignored")
	}

	if _, err := f.stats.CheckCompletion(ctx, msg.CampaignID); err != nil {
		f.logger.Printf("completion check for campaign %d failed: %v", msg.CampaignID, err)
	}
	return nil
}

func transitionUpdates(target models.MessageLogStatus, at time.Time, event *models.WebhookEvent) map[string]any {
	switch target {
	case models.MessageLogStatusSent:
		return map[string]any{"sent_at": gorm.Expr("COALESCE(sent_at, ?)", at)}
	case models.MessageLogStatusDelivered:
		return map[string]any{"delivered_at": at}
	case models.MessageLogStatusRead:
		return map[string]any{
			"read_at":      at,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
		}
	case models.MessageLogStatusFailed:
		return map[string]any{
			"failed_at":     at,
			"error_message": providerErrorText(event.Payload),
		}
	default:
		return nil
	}
}

// providerErrorText extracts errors[0] of a failed status item
func providerErrorText(payload models.RawJSON) string {
	var status dto.WebhookStatus
	if err := json.Unmarshal(payload, &status); err != nil || len(status.Errors) == 0 {
		return "delivery failed"
	}
	e := status.Errors[0]
	text := e.Message
	if text == "" {
		text = e.Title
	}
	if e.Code != 0 {
		text = fmt.Sprintf("(#%d) %s", e.Code, text)
	}
	if e.ErrorData.Details != "" {
		text += ": " + e.ErrorData.Details
	}
	return text
}

// ReconcileEvents re-enqueues unprocessed events that have no open task
func (f *WebhookFlowImpl) ReconcileEvents(ctx context.Context, minAge time.Duration, maxAttempts, limit int) (int, error) {
	now := utils.UTCNow()
	events, err := f.eventRepo.ListReconcilable(ctx, now.Add(-minAge), maxAttempts, limit)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	tasks := make([]*models.QueueTask, 0, len(events))
	for _, event := range events {
		task := models.NewProcessWebhookTask(event.ID, now, f.maxAttempts())
		tasks = append(tasks, &task)
	}
	if err := f.queueRepo.SaveBatch(ctx, tasks); err != nil {
		return 0, err
	}

	for _, event := range events {
		metrics.WebhookEvent(string(event.EventType), "reconciled")
	}
	return len(tasks), nil
}
