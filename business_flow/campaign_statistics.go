package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/metrics"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
)

// CampaignStatistics recomputes campaign counters from message logs and
// closes campaigns that have nothing left pending. Both operations are
// idempotent and safe to run from any number of workers.
type CampaignStatistics struct {
	campaignRepo   repository.CampaignRepository
	messageLogRepo repository.MessageLogRepository
	cache          services.Cache
	cacheTTL       time.Duration
}

func NewCampaignStatistics(
	campaignRepo repository.CampaignRepository,
	messageLogRepo repository.MessageLogRepository,
	cache services.Cache,
	cacheTTL time.Duration,
) *CampaignStatistics {
	if cache == nil {
		cache = services.NewCache(nil, "")
	}
	if cacheTTL <= 0 {
		cacheTTL = utils.DefaultStatisticsCacheTTL
	}
	return &CampaignStatistics{
		campaignRepo:   campaignRepo,
		messageLogRepo: messageLogRepo,
		cache:          cache,
		cacheTTL:       cacheTTL,
	}
}

func statisticsCacheKey(campaignID uint) string {
	return fmt.Sprintf("campaign:%d:statistics", campaignID)
}

// Recompute aggregates message logs with one grouped query, overwrites the
// campaign counters and completes the campaign when it has nothing pending.
func (s *CampaignStatistics) Recompute(ctx context.Context, campaignID uint) (*dto.CampaignStatisticsResponse, error) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}

	byStatus, err := s.messageLogRepo.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	counters := models.CountersFromStatuses(byStatus)

	if campaign.Status == models.CampaignStatusProcessing && counters.Pending == 0 {
		now := utils.UTCNow()
		moved, err := s.campaignRepo.TransitionStatus(ctx, campaignID,
			[]models.CampaignStatus{models.CampaignStatusProcessing},
			models.CampaignStatusCompleted,
			map[string]any{"completed_at": now},
		)
		if err != nil {
			return nil, err
		}
		if moved {
			campaign.Status = models.CampaignStatusCompleted
			campaign.CompletedAt = &now
			metrics.CampaignTransition(models.CampaignStatusCompleted.String())
		}
	}

	if err := s.campaignRepo.UpdateCounters(ctx, campaignID, counters); err != nil {
		return nil, err
	}
	campaign.ApplyCounters(counters)

	_ = s.cache.Delete(ctx, statisticsCacheKey(campaignID))

	return ToCampaignStatisticsResponse(campaign, counters), nil
}

// CheckCompletion completes a PROCESSING campaign with zero pending messages.
// It reports whether the campaign is COMPLETED afterwards.
func (s *CampaignStatistics) CheckCompletion(ctx context.Context, campaignID uint) (bool, error) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if campaign == nil {
		return false, ErrCampaignNotFound
	}
	if campaign.Status != models.CampaignStatusProcessing {
		return campaign.Status == models.CampaignStatusCompleted, nil
	}

	stats, err := s.Recompute(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return stats.Status == models.CampaignStatusCompleted.String(), nil
}

// Get serves statistics from the cache, recomputing on a miss
func (s *CampaignStatistics) Get(ctx context.Context, campaignID uint) (*dto.CampaignStatisticsResponse, error) {
	var cached dto.CampaignStatisticsResponse
	if hit, err := s.cache.GetJSON(ctx, statisticsCacheKey(campaignID), &cached); err == nil && hit {
		return &cached, nil
	}

	stats, err := s.Recompute(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	_ = s.cache.SetJSON(ctx, statisticsCacheKey(campaignID), stats, s.cacheTTL)
	return stats, nil
}

// Invalidate drops the cached statistics of a campaign
func (s *CampaignStatistics) Invalidate(ctx context.Context, campaignID uint) {
	_ = s.cache.Delete(ctx, statisticsCacheKey(campaignID))
}

// SweepProcessing runs the completion check over every PROCESSING campaign
// and returns how many were completed.
func (s *CampaignStatistics) SweepProcessing(ctx context.Context) (int, error) {
	status := models.CampaignStatusProcessing
	campaigns, err := s.campaignRepo.ByFilter(ctx, models.CampaignFilter{Status: &status}, "id ASC", 0, 0)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, c := range campaigns {
		done, err := s.CheckCompletion(ctx, c.ID)
		if err != nil {
			return completed, fmt.Errorf("completion check for campaign %d: %w", c.ID, err)
		}
		if done {
			completed++
		}
	}
	return completed, nil
}
