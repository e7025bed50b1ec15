package businessflow_test

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// flowEnv wires every flow against one throwaway database and a miniredis instance
type flowEnv struct {
	DB       *testingutil.TestDB
	Fixtures *testingutil.TestFixtures
	Redis    *miniredis.Miniredis
	Locker   services.Locker
	Client   *services.MockWhatsAppClient

	TemplateRepo   repository.TemplateRepository
	ContactRepo    repository.ContactRepository
	NumberRepo     repository.WhatsAppNumberRepository
	CampaignRepo   repository.CampaignRepository
	MessageLogRepo repository.MessageLogRepository
	EventRepo      repository.WebhookEventRepository
	QueueRepo      repository.QueueTaskRepository
	AuditRepo      repository.AuditLogRepository

	Stats    *businessflow.CampaignStatistics
	Campaign businessflow.CampaignFlow
	Dispatch businessflow.MessageDispatchFlow
	Webhook  businessflow.WebhookFlow
	Template businessflow.TemplateFlow
	Contact  businessflow.ContactFlow
	Number   businessflow.WhatsAppNumberFlow
	Report   businessflow.CampaignReportFlow

	CampaignConfig config.CampaignConfig
	WhatsAppConfig config.WhatsAppConfig
}

type envOption func(*flowEnv)

func withCampaignConfig(cfg config.CampaignConfig) envOption {
	return func(e *flowEnv) { e.CampaignConfig = cfg }
}

func withAppSecret(secret string) envOption {
	return func(e *flowEnv) { e.WhatsAppConfig.AppSecret = secret }
}

func newFlowEnv(t *testing.T, testDB *testingutil.TestDB, opts ...envOption) *flowEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	env := &flowEnv{
		DB:       testDB,
		Fixtures: testingutil.NewTestFixtures(testDB),
		Redis:    mr,
		Locker:   services.NewLocker(rc, "test:"),
		Client:   services.NewMockWhatsAppClient(),
		CampaignConfig: config.CampaignConfig{
			ChunkSize:          2,
			BatchDelay:         5 * time.Second,
			StatisticsCacheTTL: time.Minute,
		},
		WhatsAppConfig: config.WhatsAppConfig{
			VerifyToken:   "verify-me",
			DefaultRegion: "GB",
		},
	}
	for _, opt := range opts {
		opt(env)
	}

	db := testDB.DB
	env.TemplateRepo = repository.NewTemplateRepository(db)
	env.ContactRepo = repository.NewContactRepository(db)
	env.NumberRepo = repository.NewWhatsAppNumberRepository(db)
	env.CampaignRepo = repository.NewCampaignRepository(db)
	env.MessageLogRepo = repository.NewMessageLogRepository(db)
	env.EventRepo = repository.NewWebhookEventRepository(db)
	env.QueueRepo = repository.NewQueueTaskRepository(db)
	env.AuditRepo = repository.NewAuditLogRepository(db)

	queueConfig := config.QueueConfig{MaxAttempts: 5}
	logger := log.New(io.Discard, "", 0)

	env.Stats = businessflow.NewCampaignStatistics(env.CampaignRepo, env.MessageLogRepo, services.NewCache(rc, "test:"), env.CampaignConfig.StatisticsCacheTTL)
	env.Campaign = businessflow.NewCampaignFlow(
		env.CampaignRepo, env.MessageLogRepo, env.TemplateRepo, env.ContactRepo, env.NumberRepo,
		env.QueueRepo, env.AuditRepo, env.Stats, env.Locker, env.CampaignConfig, queueConfig, db,
	)
	env.Dispatch = businessflow.NewMessageDispatchFlow(env.MessageLogRepo, env.CampaignRepo, env.TemplateRepo, env.NumberRepo, env.Client, env.Stats, logger)
	env.Webhook = businessflow.NewWebhookFlow(env.EventRepo, env.MessageLogRepo, env.QueueRepo, env.Stats, env.WhatsAppConfig, queueConfig, db, logger)
	env.Template = businessflow.NewTemplateFlow(env.TemplateRepo, env.CampaignRepo, env.AuditRepo)
	env.Contact = businessflow.NewContactFlow(env.ContactRepo, env.MessageLogRepo, env.AuditRepo, env.WhatsAppConfig.DefaultRegion)
	env.Number = businessflow.NewWhatsAppNumberFlow(env.NumberRepo, env.Client, env.AuditRepo)
	env.Report = businessflow.NewCampaignReportFlow(env.MessageLogRepo, env.Stats)

	return env
}

// withFlowEnv runs fn against a fresh database and always tears it down
func withFlowEnv(t *testing.T, fn func(env *flowEnv), opts ...envOption) {
	t.Helper()
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fn(newFlowEnv(t, testDB, opts...))
		return nil
	})
	require.NoError(t, err)
}

func testMetadata() *businessflow.ClientMetadata {
	md := businessflow.NewClientMetadata("127.0.0.1", "flow-test")
	md.SetRequestID("req-test")
	return md
}
