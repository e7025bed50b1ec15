package businessflow

import (
	"context"
	"errors"
	"log"

	"github.com/amirphl/Orochi-WhatsApp/app/metrics"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
)

// MessageDispatchFlow executes one send task: a single provider call for one
// message log. Only infrastructure errors and local throttling are returned;
// delivery failures are recorded on the row.
type MessageDispatchFlow interface {
	SendMessage(ctx context.Context, messageLogID uint) error
	// AbandonMessage fails a still-pending message whose send task ran out of attempts
	AbandonMessage(ctx context.Context, messageLogID uint, reason string) error
}

// MessageDispatchFlowImpl implements MessageDispatchFlow
type MessageDispatchFlowImpl struct {
	messageLogRepo repository.MessageLogRepository
	campaignRepo   repository.CampaignRepository
	templateRepo   repository.TemplateRepository
	numberRepo     repository.WhatsAppNumberRepository
	client         services.WhatsAppClient
	stats          *CampaignStatistics
	logger         *log.Logger
}

func NewMessageDispatchFlow(
	messageLogRepo repository.MessageLogRepository,
	campaignRepo repository.CampaignRepository,
	templateRepo repository.TemplateRepository,
	numberRepo repository.WhatsAppNumberRepository,
	client services.WhatsAppClient,
	stats *CampaignStatistics,
	logger *log.Logger,
) MessageDispatchFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &MessageDispatchFlowImpl{
		messageLogRepo: messageLogRepo,
		campaignRepo:   campaignRepo,
		templateRepo:   templateRepo,
		numberRepo:     numberRepo,
		client:         client,
		stats:          stats,
		logger:         logger,
	}
}

func (f *MessageDispatchFlowImpl) SendMessage(ctx context.Context, messageLogID uint) error {
	msg, err := f.messageLogRepo.ByID(ctx, messageLogID)
	if err != nil {
		return err
	}
	// a re-delivered task for a row that already moved on is a no-op
	if msg == nil || msg.Status != models.MessageLogStatusPending {
		return nil
	}

	campaign, err := f.campaignRepo.ByID(ctx, msg.CampaignID)
	if err != nil {
		return err
	}
	if campaign == nil || campaign.Status == models.CampaignStatusCancelled {
		return nil
	}

	number, err := f.numberRepo.ByID(ctx, msg.WhatsAppNumberID)
	if err != nil {
		return err
	}
	if number == nil || !utils.IsTrue(number.IsActive) {
		return f.fail(ctx, msg, ErrWhatsAppNumberInactive.Error())
	}

	template, err := f.templateRepo.ByID(ctx, msg.TemplateID)
	if err != nil {
		return err
	}
	if template == nil {
		return f.fail(ctx, msg, ErrTemplateNotFound.Error())
	}

	payload := BuildTemplatePayload(template, msg.Variables)
	sender := services.SenderCredentials{PhoneNumberID: number.PhoneNumberID, AccessToken: number.AccessToken}

	providerID, sendErr := f.client.SendTemplate(ctx, sender, msg.Mobile, payload)

	// the provider may have accepted the message even if ctx ended meanwhile
	writeCtx := context.WithoutCancel(ctx)

	if sendErr != nil {
		switch {
		case errors.Is(sendErr, services.ErrSendThrottled):
			// nothing left the process; run the task again later
			metrics.MessageSent("throttled")
			return sendErr
		case errors.Is(ctx.Err(), context.Canceled):
			// the worker is stopping
			return ctx.Err()
		}
		metrics.MessageSent("failed")
		return f.fail(writeCtx, msg, sendErr.Error())
	}

	moved, err := f.messageLogRepo.Transition(writeCtx, msg.ID, models.MessageLogStatusSent, map[string]any{
		"provider_message_id": providerID,
		"sent_at":             utils.UTCNow(),
		"error_message":       nil,
	})
	if err != nil {
		return err
	}
	metrics.MessageSent("sent")
	if !moved {
		// cancelled while in flight; keep the id so later callbacks still match
		if _, err := f.messageLogRepo.AttachProviderMessageID(writeCtx, msg.ID, providerID); err != nil {
			return err
		}
		f.logger.Printf("message log %d was sent as %s but is no longer pending", msg.ID, providerID)
	}

	f.checkCompletion(writeCtx, msg.CampaignID)
	return nil
}

func (f *MessageDispatchFlowImpl) AbandonMessage(ctx context.Context, messageLogID uint, reason string) error {
	msg, err := f.messageLogRepo.ByID(ctx, messageLogID)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}

	moved, err := f.messageLogRepo.FailPending(ctx, msg.ID, reason, utils.UTCNow())
	if err != nil {
		return err
	}
	if moved {
		metrics.MessageSent("failed")
		f.checkCompletion(ctx, msg.CampaignID)
	}
	return nil
}

func (f *MessageDispatchFlowImpl) fail(ctx context.Context, msg *models.MessageLog, reason string) error {
	if _, err := f.messageLogRepo.Transition(ctx, msg.ID, models.MessageLogStatusFailed, map[string]any{
		"error_message": reason,
		"failed_at":     utils.UTCNow(),
	}); err != nil {
		return err
	}
	f.checkCompletion(ctx, msg.CampaignID)
	return nil
}

func (f *MessageDispatchFlowImpl) checkCompletion(ctx context.Context, campaignID uint) {
	if _, err := f.stats.CheckCompletion(ctx, campaignID); err != nil {
		f.logger.Printf("completion check for campaign %d failed: %v", campaignID, err)
	}
}
