package businessflow_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/models"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient runs onSend inside the provider call
type scriptedClient struct {
	onSend func(ctx context.Context) (string, error)
}

func (c *scriptedClient) SendTemplate(ctx context.Context, _ services.SenderCredentials, _ string, _ services.TemplatePayload) (string, error) {
	return c.onSend(ctx)
}

func (c *scriptedClient) GetPhoneNumber(context.Context, services.SenderCredentials) (*services.PhoneNumberInfo, error) {
	return nil, fmt.Errorf("not supported")
}

func dispatchWith(env *flowEnv, client services.WhatsAppClient) businessflow.MessageDispatchFlow {
	return businessflow.NewMessageDispatchFlow(env.MessageLogRepo, env.CampaignRepo, env.TemplateRepo, env.NumberRepo,
		client, env.Stats, log.New(io.Discard, "", 0))
}

func TestSendMessage(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := testingutil.CreateTestContext()

		t.Run("DeliversWholeCampaign", func(t *testing.T) {
			tpl, number, contacts := seedCampaignInputs(t, env, 2)
			campaign, err := env.Campaign.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				Name:             "Dispatch",
				WhatsAppNumberID: number.ID,
				TemplateID:       tpl.ID,
				ContactIDs:       contactIDs(contacts),
				Variables: map[uint]map[string]string{
					contacts[0].ID: {"name": "Asha", "code": "1042"},
					contacts[1].ID: {"name": "Ravi", "code": "2077"},
				},
			}, testMetadata())
			require.NoError(t, err)
			_, err = env.Campaign.StartCampaign(ctx, campaign.ID, testMetadata())
			require.NoError(t, err)

			logs, err := env.MessageLogRepo.ListByCampaignAndStatus(ctx, campaign.ID, models.MessageLogStatusPending)
			require.NoError(t, err)
			require.Len(t, logs, 2)

			for _, l := range logs {
				require.NoError(t, env.Dispatch.SendMessage(ctx, l.ID))
			}

			sent := env.Client.GetSentMessages()
			require.Len(t, sent, 2)
			assert.Equal(t, contacts[0].Mobile, sent[0].To)
			assert.Equal(t, number.PhoneNumberID, sent[0].Sender.PhoneNumberID)
			assert.Equal(t, number.AccessToken, sent[0].Sender.AccessToken)
			assert.Equal(t, tpl.Name, sent[0].Template.Name)
			assert.Equal(t, "en_US", sent[0].Template.Language.Code)
			require.Len(t, sent[0].Template.Components, 1)
			body := sent[0].Template.Components[0]
			assert.Equal(t, "body", body.Type)
			require.Len(t, body.Parameters, 2)
			assert.Equal(t, "Asha", body.Parameters[0].Text)
			assert.Equal(t, "1042", body.Parameters[1].Text)

			first, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusSent, first.Status)
			assert.Equal(t, sent[0].MessageID, utils.Deref(first.ProviderMessageID))
			assert.NotNil(t, first.SentAt)

			stored, err := env.CampaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
			assert.Equal(t, uint64(2), stored.SentCount)
			assert.Zero(t, stored.PendingCount)

			// a re-delivered task is a no-op
			require.NoError(t, env.Dispatch.SendMessage(ctx, logs[0].ID))
			assert.Len(t, env.Client.GetSentMessages(), 2)
		})

		t.Run("ProviderRejectionFailsMessage", func(t *testing.T) {
			campaign, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing,
				models.MessageLogStatusPending, models.MessageLogStatusPending)
			require.NoError(t, err)

			env.Client.FailFor(logs[0].Mobile, &services.ProviderError{StatusCode: 400, Code: 131026, Message: "Message undeliverable"})

			require.NoError(t, env.Dispatch.SendMessage(ctx, logs[0].ID))

			failed, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusFailed, failed.Status)
			assert.Equal(t, "(#131026) Message undeliverable", utils.Deref(failed.ErrorMessage))
			assert.NotNil(t, failed.FailedAt)
			assert.Nil(t, failed.ProviderMessageID)

			stored, err := env.CampaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusProcessing, stored.Status)

			require.NoError(t, env.Dispatch.SendMessage(ctx, logs[1].ID))
			stored, err = env.CampaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
			assert.Equal(t, uint64(1), stored.FailedCount)
			assert.Equal(t, uint64(1), stored.SentCount)
		})

		t.Run("InactiveSenderFailsMessage", func(t *testing.T) {
			campaign, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing, models.MessageLogStatusPending)
			require.NoError(t, err)
			require.NoError(t, env.DB.DB.Model(&models.WhatsAppNumber{}).
				Where("id = ?", campaign.WhatsAppNumberID).Update("is_active", false).Error)

			before := len(env.Client.GetSentMessages())
			require.NoError(t, env.Dispatch.SendMessage(ctx, logs[0].ID))
			assert.Len(t, env.Client.GetSentMessages(), before)

			failed, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusFailed, failed.Status)
			assert.Equal(t, "whatsapp number is inactive", utils.Deref(failed.ErrorMessage))
		})

		t.Run("SkipsMessagesThatMovedOn", func(t *testing.T) {
			_, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing,
				models.MessageLogStatusSent, models.MessageLogStatusFailed)
			require.NoError(t, err)

			before := len(env.Client.GetSentMessages())
			for _, l := range logs {
				require.NoError(t, env.Dispatch.SendMessage(ctx, l.ID))
			}
			assert.Len(t, env.Client.GetSentMessages(), before)

			sent, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusSent, sent.Status)
		})

		t.Run("MissingMessageIsNoOp", func(t *testing.T) {
			assert.NoError(t, env.Dispatch.SendMessage(ctx, 123456789))
		})

		t.Run("ProviderTimeoutFailsMessage", func(t *testing.T) {
			campaign, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing, models.MessageLogStatusPending)
			require.NoError(t, err)

			blocking := dispatchWith(env, &scriptedClient{onSend: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}})

			taskCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			require.NoError(t, blocking.SendMessage(taskCtx, logs[0].ID))

			failed, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusFailed, failed.Status)
			assert.Equal(t, "context deadline exceeded", utils.Deref(failed.ErrorMessage))

			stored, err := env.CampaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
		})

		t.Run("StoppingWorkerLeavesMessagePending", func(t *testing.T) {
			_, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing, models.MessageLogStatusPending)
			require.NoError(t, err)

			stopCtx, stop := context.WithCancel(ctx)
			interrupted := dispatchWith(env, &scriptedClient{onSend: func(ctx context.Context) (string, error) {
				stop()
				return "", ctx.Err()
			}})

			err = interrupted.SendMessage(stopCtx, logs[0].ID)
			assert.ErrorIs(t, err, context.Canceled)

			pending, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusPending, pending.Status)
		})

		t.Run("ThrottledSendIsHandedBack", func(t *testing.T) {
			_, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing, models.MessageLogStatusPending)
			require.NoError(t, err)

			env.Client.FailFor(logs[0].Mobile, fmt.Errorf("%w: rate: Wait(n=1) would exceed context deadline", services.ErrSendThrottled))

			err = env.Dispatch.SendMessage(ctx, logs[0].ID)
			assert.ErrorIs(t, err, services.ErrSendThrottled)

			pending, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusPending, pending.Status)
			assert.Nil(t, pending.ErrorMessage)
		})

		t.Run("AbandonMessageFailsPendingRow", func(t *testing.T) {
			campaign, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing,
				models.MessageLogStatusPending, models.MessageLogStatusSent)
			require.NoError(t, err)

			require.NoError(t, env.Dispatch.AbandonMessage(ctx, logs[0].ID, "database is locked"))
			require.NoError(t, env.Dispatch.AbandonMessage(ctx, logs[1].ID, "database is locked"))
			require.NoError(t, env.Dispatch.AbandonMessage(ctx, 123456789, "gone"))

			failed, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusFailed, failed.Status)
			assert.Equal(t, "database is locked", utils.Deref(failed.ErrorMessage))
			assert.NotNil(t, failed.FailedAt)

			sent, err := env.MessageLogRepo.ByID(ctx, logs[1].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusSent, sent.Status)

			stored, err := env.CampaignRepo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
		})

		t.Run("CancelDuringSendKeepsProviderID", func(t *testing.T) {
			campaign, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing, models.MessageLogStatusPending)
			require.NoError(t, err)

			racing := dispatchWith(env, &scriptedClient{onSend: func(context.Context) (string, error) {
				_, err := env.Campaign.CancelCampaign(ctx, campaign.ID, testMetadata())
				require.NoError(t, err)
				return "wamid.inflight", nil
			}})
			require.NoError(t, racing.SendMessage(ctx, logs[0].ID))

			row, err := env.MessageLogRepo.ByID(ctx, logs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageLogStatusFailed, row.Status)
			assert.Equal(t, "campaign cancelled", utils.Deref(row.ErrorMessage))
			assert.Equal(t, "wamid.inflight", utils.Deref(row.ProviderMessageID))

			// a later callback now matches and is settled instead of retried
			event, procErr := ingestAndProcess(t, env, status("wamid.inflight", "delivered"))
			require.NoError(t, procErr)
			assert.True(t, event.Processed)
		})
	})
}
