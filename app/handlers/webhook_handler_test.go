package handlers_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amirphl/Orochi-WhatsApp/app/handlers"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVerifyToken = "verify-me"
	testAppSecret   = "app-secret"
)

const deliveredPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "102290129340398",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550783881", "phone_number_id": "106540352242922"},
        "statuses": [
          {"id": "wamid.HBgLMTY1MDM4Nzk0MzkVAgARGBI3", "status": "delivered", "timestamp": "1740830400", "recipient_id": "447400123456"},
          {"id": "wamid.HBgLMTY1MDM4Nzk0MzkVAgARGBI4", "status": "read", "timestamp": "1740830460", "recipient_id": "447400123457"}
        ]
      }
    }]
  }]
}`

type webhookEnv struct {
	app       *fiber.App
	eventRepo repository.WebhookEventRepository
	queueRepo repository.QueueTaskRepository
}

func withWebhookApp(t *testing.T, fn func(env *webhookEnv)) {
	t.Helper()
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		db := testDB.DB
		campaignRepo := repository.NewCampaignRepository(db)
		messageLogRepo := repository.NewMessageLogRepository(db)
		eventRepo := repository.NewWebhookEventRepository(db)
		queueRepo := repository.NewQueueTaskRepository(db)

		stats := businessflow.NewCampaignStatistics(campaignRepo, messageLogRepo, nil, 0)
		flow := businessflow.NewWebhookFlow(eventRepo, messageLogRepo, queueRepo, stats,
			config.WhatsAppConfig{VerifyToken: testVerifyToken, AppSecret: testAppSecret},
			config.QueueConfig{MaxAttempts: 5}, db, log.New(io.Discard, "", 0))

		h := handlers.NewWebhookHandler(flow)
		app := fiber.New()
		app.Get("/api/v1/webhooks/whatsapp", h.VerifySubscription)
		app.Post("/api/v1/webhooks/whatsapp", h.ReceiveEvents)

		fn(&webhookEnv{app: app, eventRepo: eventRepo, queueRepo: queueRepo})
		return nil
	})
	require.NoError(t, err)
}

func signedRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/whatsapp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(utils.WebhookSignatureHeader, signature)
	}
	return req
}

func TestVerifySubscriptionHandler(t *testing.T) {
	withWebhookApp(t, func(env *webhookEnv) {
		tests := []struct {
			name     string
			query    string
			wantCode int
			wantBody string
		}{
			{
				name:     "handshake echoes the challenge",
				query:    "?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444",
				wantCode: fiber.StatusOK,
				wantBody: "1158201444",
			},
			{
				name:     "token mismatch",
				query:    "?hub.mode=subscribe&hub.verify_token=guess&hub.challenge=1158201444",
				wantCode: fiber.StatusForbidden,
			},
			{
				name:     "unsupported mode",
				query:    "?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1158201444",
				wantCode: fiber.StatusForbidden,
			},
			{
				name:     "missing challenge",
				query:    "?hub.mode=subscribe&hub.verify_token=verify-me",
				wantCode: fiber.StatusBadRequest,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/whatsapp"+tt.query, nil))
				require.NoError(t, err)
				defer resp.Body.Close()

				assert.Equal(t, tt.wantCode, resp.StatusCode)
				if tt.wantBody != "" {
					body, err := io.ReadAll(resp.Body)
					require.NoError(t, err)
					assert.Equal(t, tt.wantBody, string(body))
				}
			})
		}
	})
}

func TestReceiveEventsHandler(t *testing.T) {
	t.Run("signed payload is stored and enqueued", func(t *testing.T) {
		withWebhookApp(t, func(env *webhookEnv) {
			resp, err := env.app.Test(signedRequest(deliveredPayload, businessflow.SignPayload([]byte(deliveredPayload), testAppSecret)))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.EqualValues(t, 2, decodeResponse(t, resp)["received"])

			ctx := context.Background()
			events, err := env.eventRepo.Count(ctx, models.WebhookEventFilter{})
			require.NoError(t, err)
			assert.EqualValues(t, 2, events)

			kind := models.QueueTaskProcessWebhookEvent
			tasks, err := env.queueRepo.Count(ctx, models.QueueTaskFilter{Kind: &kind})
			require.NoError(t, err)
			assert.EqualValues(t, 2, tasks)
		})
	})

	t.Run("bad signature stores nothing", func(t *testing.T) {
		withWebhookApp(t, func(env *webhookEnv) {
			for _, sig := range []string{"", "sha256=00ff", businessflow.SignPayload([]byte(deliveredPayload), "other-secret")} {
				resp, err := env.app.Test(signedRequest(deliveredPayload, sig))
				require.NoError(t, err)
				assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
				assert.Equal(t, "INVALID_SIGNATURE", errorCode(t, decodeResponse(t, resp)))
			}

			events, err := env.eventRepo.Count(context.Background(), models.WebhookEventFilter{})
			require.NoError(t, err)
			assert.Zero(t, events)
		})
	})

	t.Run("malformed payload", func(t *testing.T) {
		withWebhookApp(t, func(env *webhookEnv) {
			body := `{"entry": "not-a-list"`
			resp, err := env.app.Test(signedRequest(body, businessflow.SignPayload([]byte(body), testAppSecret)))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "MALFORMED_WEBHOOK", errorCode(t, decodeResponse(t, resp)))
		})
	})

	t.Run("payload without statuses", func(t *testing.T) {
		withWebhookApp(t, func(env *webhookEnv) {
			body := `{"object":"whatsapp_business_account","entry":[]}`
			resp, err := env.app.Test(signedRequest(body, businessflow.SignPayload([]byte(body), testAppSecret)))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.EqualValues(t, 0, decodeResponse(t, resp)["received"])
		})
	})
}
