package businessflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/metrics"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// e164Pattern is the canonical stored mobile form
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{0,14}$`)

// CampaignFlow handles the campaign business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	GetCampaign(ctx context.Context, id uint) (*dto.CampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	StartCampaign(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.StartCampaignResponse, error)
	CancelCampaign(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.CancelCampaignResponse, error)
	RetryFailedMessages(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.RetryCampaignResponse, error)
	GetStatistics(ctx context.Context, id uint) (*dto.CampaignStatisticsResponse, error)
	RecomputeStatistics(ctx context.Context, id uint) (*dto.CampaignStatisticsResponse, error)
	ListMessageLogs(ctx context.Context, req *dto.ListMessageLogsRequest) (*dto.ListMessageLogsResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo   repository.CampaignRepository
	messageLogRepo repository.MessageLogRepository
	templateRepo   repository.TemplateRepository
	contactRepo    repository.ContactRepository
	numberRepo     repository.WhatsAppNumberRepository
	queueRepo      repository.QueueTaskRepository
	audit          auditRecorder
	stats          *CampaignStatistics
	locker         services.Locker
	campaignConfig config.CampaignConfig
	queueConfig    config.QueueConfig
	db             *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	messageLogRepo repository.MessageLogRepository,
	templateRepo repository.TemplateRepository,
	contactRepo repository.ContactRepository,
	numberRepo repository.WhatsAppNumberRepository,
	queueRepo repository.QueueTaskRepository,
	auditRepo repository.AuditLogRepository,
	stats *CampaignStatistics,
	locker services.Locker,
	campaignConfig config.CampaignConfig,
	queueConfig config.QueueConfig,
	db *gorm.DB,
) CampaignFlow {
	if locker == nil {
		locker = services.NewLocker(nil, "")
	}
	return &CampaignFlowImpl{
		campaignRepo:   campaignRepo,
		messageLogRepo: messageLogRepo,
		templateRepo:   templateRepo,
		contactRepo:    contactRepo,
		numberRepo:     numberRepo,
		queueRepo:      queueRepo,
		audit:          auditRecorder{auditRepo: auditRepo},
		stats:          stats,
		locker:         locker,
		campaignConfig: campaignConfig,
		queueConfig:    queueConfig,
		db:             db,
	}
}

// CreateCampaign validates the template, sender and audience, then writes the
// campaign and one PENDING message log per eligible contact atomically.
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.createCampaign(ctx, req)
	if err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = s.audit.record(ctx, models.AuditActionCampaignCreationFailed, errMsg, false, &errMsg, metadata, map[string]any{
			"template_id":        req.TemplateID,
			"whatsapp_number_id": req.WhatsAppNumberID,
			"contacts":           len(req.ContactIDs),
		})

		var be *BusinessError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created successfully: %s", campaign.UUID.String())
	_ = s.audit.record(ctx, models.AuditActionCampaignCreated, msg, true, nil, metadata, map[string]any{
		"campaign_id":    campaign.ID,
		"total_messages": campaign.TotalMessages,
	})

	resp := ToCampaignResponse(campaign)
	return &resp, nil
}

func (s *CampaignFlowImpl) createCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*models.Campaign, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrCampaignNameRequired)
	}

	template, err := s.templateRepo.ByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_FOUND", "Template not found", ErrTemplateNotFound)
	}
	if template.Status != models.TemplateStatusApproved {
		return nil, NewBusinessError("TEMPLATE_NOT_APPROVED", "Template must be approved before use", ErrTemplateNotApproved)
	}

	number, err := s.numberRepo.ByID(ctx, req.WhatsAppNumberID)
	if err != nil {
		return nil, err
	}
	if number == nil {
		return nil, NewBusinessError("WHATSAPP_NUMBER_NOT_FOUND", "WhatsApp number not found", ErrWhatsAppNumberNotFound)
	}
	if !utils.IsTrue(number.IsActive) {
		return nil, NewBusinessError("WHATSAPP_NUMBER_INACTIVE", "WhatsApp number is inactive", ErrWhatsAppNumberInactive)
	}

	contacts, err := s.eligibleContacts(ctx, req.ContactIDs)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, NewBusinessError("NO_ACTIVE_CONTACTS", "No active contacts with a valid mobile", ErrNoActiveContacts)
	}

	campaign := &models.Campaign{
		UUID:             uuid.New(),
		Name:             name,
		WhatsAppNumberID: number.ID,
		TemplateID:       template.ID,
		Status:           models.CampaignStatusPending,
		CreatedBy:        operatorIDFromContext(ctx),
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}

		logs := make([]*models.MessageLog, 0, len(contacts))
		for _, contact := range contacts {
			vars := models.StringMap(req.Variables[contact.ID])
			if vars == nil {
				vars = models.StringMap{}
			}
			logs = append(logs, &models.MessageLog{
				CampaignID:       campaign.ID,
				ContactID:        contact.ID,
				WhatsAppNumberID: number.ID,
				TemplateID:       template.ID,
				Mobile:           contact.Mobile,
				Content:          RenderTemplate(template.Body, vars),
				Variables:        vars,
				Status:           models.MessageLogStatusPending,
			})
		}

		if err := s.messageLogRepo.SaveBatch(txCtx, logs); err != nil {
			return err
		}

		return s.campaignRepo.SetTotalMessages(txCtx, campaign.ID, uint64(len(logs)))
	})
	if err != nil {
		return nil, err
	}

	campaign.TotalMessages = uint64(len(contacts))
	campaign.PendingCount = campaign.TotalMessages
	metrics.CampaignTransition(models.CampaignStatusPending.String())

	return campaign, nil
}

// eligibleContacts resolves ids to active contacts whose mobile is canonical E.164
func (s *CampaignFlowImpl) eligibleContacts(ctx context.Context, ids []uint) ([]*models.Contact, error) {
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(unique, id) {
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return nil, nil
	}

	eligible := make([]*models.Contact, 0, len(unique))
	for _, chunk := range utils.Chunk(unique, 1000) {
		contacts, err := s.contactRepo.ByFilter(ctx, models.ContactFilter{
			IDs:      chunk,
			IsActive: utils.ToPtr(true),
		}, "id ASC", 0, 0)
		if err != nil {
			return nil, err
		}
		for _, c := range contacts {
			if e164Pattern.MatchString(c.Mobile) {
				eligible = append(eligible, c)
			}
		}
	}
	return eligible, nil
}

func (s *CampaignFlowImpl) getCampaign(ctx context.Context, id uint) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

// lockCampaign serializes start, retry and cancel of one campaign across instances
func (s *CampaignFlowImpl) lockCampaign(ctx context.Context, id uint) (func(), error) {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf("campaign:%d", id), utils.CampaignLockTTL)
	if err != nil {
		if errors.Is(err, services.ErrLockHeld) {
			return nil, NewBusinessError("CAMPAIGN_LOCKED", "Campaign is locked by another operation", ErrCampaignLocked)
		}
		return nil, NewBusinessError("CAMPAIGN_LOCK_FAILED", "Failed to lock campaign", err)
	}
	return release, nil
}

func (s *CampaignFlowImpl) chunkSize() int {
	if s.campaignConfig.ChunkSize > 0 {
		return s.campaignConfig.ChunkSize
	}
	return utils.DefaultChunkSize
}

func (s *CampaignFlowImpl) batchDelay() time.Duration {
	if s.campaignConfig.BatchDelay > 0 {
		return s.campaignConfig.BatchDelay
	}
	return utils.DefaultBatchDelay
}

func (s *CampaignFlowImpl) maxAttempts() int {
	if s.queueConfig.MaxAttempts > 0 {
		return s.queueConfig.MaxAttempts
	}
	return utils.DefaultQueueMaxAttempts
}

// sendTasks builds one send task per log; batch i becomes available at now + i*delay
func (s *CampaignFlowImpl) sendTasks(campaignID uint, logs []*models.MessageLog, now time.Time) ([]*models.QueueTask, int) {
	batches := utils.Chunk(logs, s.chunkSize())
	tasks := make([]*models.QueueTask, 0, len(logs))
	for i, batch := range batches {
		availableAt := now.Add(time.Duration(i) * s.batchDelay())
		for _, log := range batch {
			task := models.NewSendMessageTask(log.ID, campaignID, availableAt, s.maxAttempts())
			tasks = append(tasks, &task)
		}
	}
	return tasks, len(batches)
}

// StartCampaign moves a PENDING campaign to PROCESSING and enqueues its sends
func (s *CampaignFlowImpl) StartCampaign(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.StartCampaignResponse, error) {
	release, err := s.lockCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusPending {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_PENDING", "Campaign is %s and cannot be started", ErrCampaignNotPending, campaign.Status)
	}

	resp := &dto.StartCampaignResponse{CampaignID: campaign.ID}
	now := utils.UTCNow()

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		moved, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID,
			[]models.CampaignStatus{models.CampaignStatusPending},
			models.CampaignStatusProcessing,
			map[string]any{"started_at": now},
		)
		if err != nil {
			return err
		}
		if !moved {
			return NewBusinessError("CAMPAIGN_NOT_PENDING", "Campaign was already started", ErrCampaignNotPending)
		}

		pending, err := s.messageLogRepo.ListByCampaignAndStatus(txCtx, campaign.ID, models.MessageLogStatusPending)
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			resp.Status = models.CampaignStatusCompleted.String()
			_, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID,
				[]models.CampaignStatus{models.CampaignStatusProcessing},
				models.CampaignStatusCompleted,
				map[string]any{"completed_at": now},
			)
			return err
		}

		tasks, batches := s.sendTasks(campaign.ID, pending, now)
		if err := s.queueRepo.SaveBatch(txCtx, tasks); err != nil {
			return err
		}

		resp.Status = models.CampaignStatusProcessing.String()
		resp.EnqueuedTasks = len(tasks)
		resp.Batches = batches
		return nil
	})
	if err != nil {
		errMsg := fmt.Sprintf("Campaign start failed: %s", err.Error())
		_ = s.audit.record(ctx, models.AuditActionCampaignStartFailed, errMsg, false, &errMsg, metadata, map[string]any{"campaign_id": id})

		var be *BusinessError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, NewBusinessError("CAMPAIGN_START_FAILED", "Campaign start failed", err)
	}

	metrics.CampaignTransition(resp.Status)
	s.stats.Invalidate(ctx, campaign.ID)

	msg := fmt.Sprintf("Campaign started: %d messages in %d batches", resp.EnqueuedTasks, resp.Batches)
	_ = s.audit.record(ctx, models.AuditActionCampaignStarted, msg, true, nil, metadata, map[string]any{"campaign_id": id})

	return resp, nil
}

// CancelCampaign stops a PENDING or PROCESSING campaign. Pending messages are
// failed and unclaimed send tasks are withdrawn in the same transaction.
func (s *CampaignFlowImpl) CancelCampaign(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.CancelCampaignResponse, error) {
	release, err := s.lockCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.CanTransitionTo(models.CampaignStatusCancelled) {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_CANCELLABLE", "Campaign is %s and cannot be cancelled", ErrCampaignNotCancellable, campaign.Status)
	}

	resp := &dto.CancelCampaignResponse{CampaignID: campaign.ID, Status: models.CampaignStatusCancelled.String()}
	now := utils.UTCNow()

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		moved, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID,
			[]models.CampaignStatus{models.CampaignStatusPending, models.CampaignStatusProcessing},
			models.CampaignStatusCancelled,
			map[string]any{"cancelled_at": now},
		)
		if err != nil {
			return err
		}
		if !moved {
			return NewBusinessError("CAMPAIGN_NOT_CANCELLABLE", "Campaign can no longer be cancelled", ErrCampaignNotCancellable)
		}

		if resp.FailedMessages, err = s.messageLogRepo.FailPendingByCampaign(txCtx, campaign.ID, "campaign cancelled", now); err != nil {
			return err
		}
		if resp.CancelledTasks, err = s.queueRepo.CancelOpenByCampaign(txCtx, campaign.ID, now); err != nil {
			return err
		}

		_, err = s.stats.Recompute(txCtx, campaign.ID)
		return err
	})
	if err != nil {
		var be *BusinessError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, NewBusinessError("CAMPAIGN_CANCEL_FAILED", "Campaign cancellation failed", err)
	}

	metrics.CampaignTransition(resp.Status)
	s.stats.Invalidate(ctx, campaign.ID)

	msg := fmt.Sprintf("Campaign cancelled: %d pending messages failed, %d tasks withdrawn", resp.FailedMessages, resp.CancelledTasks)
	_ = s.audit.record(ctx, models.AuditActionCampaignCancelled, msg, true, nil, metadata, map[string]any{"campaign_id": id})

	return resp, nil
}

// RetryFailedMessages puts every FAILED message of the campaign back to
// PENDING and enqueues a fresh send for it. Other rows are untouched.
func (s *CampaignFlowImpl) RetryFailedMessages(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.RetryCampaignResponse, error) {
	release, err := s.lockCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusProcessing && campaign.Status != models.CampaignStatusCompleted {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_RETRYABLE", "Campaign is %s and does not accept retries", ErrCampaignNotRetryable, campaign.Status)
	}

	resp := &dto.RetryCampaignResponse{CampaignID: campaign.ID, Status: campaign.Status.String()}
	now := utils.UTCNow()

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		failed, err := s.messageLogRepo.ListByCampaignAndStatus(txCtx, campaign.ID, models.MessageLogStatusFailed)
		if err != nil {
			return err
		}

		retried := make([]*models.MessageLog, 0, len(failed))
		for _, log := range failed {
			if s.campaignConfig.MaxRetryCount > 0 && log.RetryCount >= s.campaignConfig.MaxRetryCount {
				resp.Skipped++
				continue
			}
			moved, err := s.messageLogRepo.ResetForRetry(txCtx, log.ID)
			if err != nil {
				return err
			}
			if moved {
				retried = append(retried, log)
			}
		}
		resp.Retried = len(retried)
		if len(retried) == 0 {
			return nil
		}

		tasks, _ := s.sendTasks(campaign.ID, retried, now)
		if err := s.queueRepo.SaveBatch(txCtx, tasks); err != nil {
			return err
		}

		if campaign.Status == models.CampaignStatusCompleted {
			moved, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID,
				[]models.CampaignStatus{models.CampaignStatusCompleted},
				models.CampaignStatusProcessing,
				map[string]any{"completed_at": nil},
			)
			if err != nil {
				return err
			}
			if moved {
				resp.Status = models.CampaignStatusProcessing.String()
			}
		}

		byStatus, err := s.messageLogRepo.CountByStatus(txCtx, campaign.ID)
		if err != nil {
			return err
		}
		return s.campaignRepo.UpdateCounters(txCtx, campaign.ID, models.CountersFromStatuses(byStatus))
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RETRY_FAILED", "Retrying failed messages failed", err)
	}

	s.stats.Invalidate(ctx, campaign.ID)

	msg := fmt.Sprintf("Campaign retry: %d messages re-queued, %d skipped", resp.Retried, resp.Skipped)
	_ = s.audit.record(ctx, models.AuditActionCampaignRetried, msg, true, nil, metadata, map[string]any{"campaign_id": id})

	return resp, nil
}

func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, id uint) (*dto.CampaignResponse, error) {
	campaign, err := s.getCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToCampaignResponse(campaign)
	return &resp, nil
}

func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	limit, offset := req.Normalize()

	filter := models.CampaignFilter{}
	if req.Status != "" {
		status := models.CampaignStatus(req.Status)
		filter.Status = &status
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	items := make([]dto.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, ToCampaignResponse(c))
	}

	return &dto.ListCampaignsResponse{
		Items:      items,
		Pagination: dto.NewPaginationInfo(total, req.Page, limit),
	}, nil
}

// GetStatistics returns cached statistics, running the completion check on a miss
func (s *CampaignFlowImpl) GetStatistics(ctx context.Context, id uint) (*dto.CampaignStatisticsResponse, error) {
	stats, err := s.stats.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", err)
		}
		return nil, NewBusinessError("CAMPAIGN_STATISTICS_FAILED", "Failed to compute campaign statistics", err)
	}
	return stats, nil
}

func (s *CampaignFlowImpl) RecomputeStatistics(ctx context.Context, id uint) (*dto.CampaignStatisticsResponse, error) {
	stats, err := s.stats.Recompute(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", err)
		}
		return nil, NewBusinessError("CAMPAIGN_STATISTICS_FAILED", "Failed to compute campaign statistics", err)
	}
	return stats, nil
}

func (s *CampaignFlowImpl) ListMessageLogs(ctx context.Context, req *dto.ListMessageLogsRequest) (*dto.ListMessageLogsResponse, error) {
	if _, err := s.getCampaign(ctx, req.CampaignID); err != nil {
		return nil, err
	}

	limit, offset := req.Normalize()
	filter := models.MessageLogFilter{CampaignID: &req.CampaignID}
	if req.Status != "" {
		status := models.MessageLogStatus(req.Status)
		filter.Status = &status
	}

	total, err := s.messageLogRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOG_LIST_FAILED", "Failed to list messages", err)
	}
	logs, err := s.messageLogRepo.ByFilter(ctx, filter, "id ASC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOG_LIST_FAILED", "Failed to list messages", err)
	}

	items := make([]dto.MessageLogResponse, 0, len(logs))
	for _, l := range logs {
		items = append(items, ToMessageLogResponse(l))
	}

	return &dto.ListMessageLogsResponse{
		Items:      items,
		Pagination: dto.NewPaginationInfo(total, req.Page, limit),
	}, nil
}
