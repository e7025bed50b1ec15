// Package main provides the entry point for the Orochi WhatsApp campaign service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/handlers"
	"github.com/amirphl/Orochi-WhatsApp/app/middleware"
	"github.com/amirphl/Orochi-WhatsApp/app/router"
	"github.com/amirphl/Orochi-WhatsApp/app/scheduler"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/database"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Orochi WhatsApp service...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.NewLogger("", utils.LogFileOptions{
		Path:       cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	log.SetOutput(logger.Writer())
	log.SetFlags(logger.Flags())

	if err := initializeSentry(cfg); err != nil {
		log.Printf("Sentry disabled: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers before the server so in-flight tasks finish
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func initializeSentry(cfg *config.ProductionConfig) error {
	if cfg.Sentry.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Deployment.Version,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	log.Printf("Sentry initialized for environment %s", cfg.Sentry.Environment)
	return nil
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// A disabled cache yields a nil client; locks and the statistics cache then
// degrade to no-ops.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity
// issues. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeWhatsAppClient picks the provider client; the mock never leaves the process
func initializeWhatsAppClient(cfg config.WhatsAppConfig) services.WhatsAppClient {
	if cfg.UseMockProvider {
		log.Println("Using mock WhatsApp provider")
		return services.NewMockWhatsAppClient()
	}
	return services.NewWhatsAppClient(services.WhatsAppClientConfig{
		BaseURL:       cfg.BaseURL,
		APIVersion:    cfg.APIVersion,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RateLimitPerSecond,
		Burst:         cfg.RateLimitBurst,
	})
}

func migrateSchema(cfg config.DatabaseConfig) error {
	if !cfg.AutoMigrate {
		return nil
	}
	return database.Migrate(cfg, log.Default())
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	if err := migrateSchema(cfg.Database); err != nil {
		return nil, err
	}

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheck))
	}

	// Repositories
	templateRepo := repository.NewTemplateRepository(db)
	contactRepo := repository.NewContactRepository(db)
	numberRepo := repository.NewWhatsAppNumberRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	messageLogRepo := repository.NewMessageLogRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	queueRepo := repository.NewQueueTaskRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	locker := services.NewLocker(rc, cfg.Cache.RedisPrefix)
	cache := services.NewCache(rc, cfg.Cache.RedisPrefix)
	whatsappClient := initializeWhatsAppClient(cfg.WhatsApp)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Flows
	stats := businessflow.NewCampaignStatistics(campaignRepo, messageLogRepo, cache, cfg.Campaign.StatisticsCacheTTL)

	templateFlow := businessflow.NewTemplateFlow(templateRepo, campaignRepo, auditRepo)
	contactFlow := businessflow.NewContactFlow(contactRepo, messageLogRepo, auditRepo, cfg.WhatsApp.DefaultRegion)
	numberFlow := businessflow.NewWhatsAppNumberFlow(numberRepo, whatsappClient, auditRepo)

	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		messageLogRepo,
		templateRepo,
		contactRepo,
		numberRepo,
		queueRepo,
		auditRepo,
		stats,
		locker,
		cfg.Campaign,
		cfg.Queue,
		db,
	)

	dispatchFlow := businessflow.NewMessageDispatchFlow(
		messageLogRepo,
		campaignRepo,
		templateRepo,
		numberRepo,
		whatsappClient,
		stats,
		log.New(log.Writer(), "dispatch: ", log.Flags()),
	)

	webhookFlow := businessflow.NewWebhookFlow(
		webhookEventRepo,
		messageLogRepo,
		queueRepo,
		stats,
		cfg.WhatsApp,
		cfg.Queue,
		db,
		log.New(log.Writer(), "webhook: ", log.Flags()),
	)

	reportFlow := businessflow.NewCampaignReportFlow(messageLogRepo, stats)

	// Handlers
	h := router.Handlers{
		Template:       handlers.NewTemplateHandler(templateFlow),
		Contact:        handlers.NewContactHandler(contactFlow),
		WhatsAppNumber: handlers.NewWhatsAppNumberHandler(numberFlow),
		Campaign:       handlers.NewCampaignHandler(campaignFlow, reportFlow),
		Webhook:        handlers.NewWebhookHandler(webhookFlow),
	}

	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	healthChecks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}
	}

	appRouter := router.NewFiberRouter(cfg, h, authMiddleware, healthChecks)

	// Background loops
	if cfg.Queue.Enabled {
		worker := scheduler.NewQueueWorker(queueRepo, dispatchFlow, webhookFlow, cfg.Queue, log.New(log.Writer(), "queue: ", log.Flags()))
		stopFuncs = append(stopFuncs, worker.Start(context.Background()))
	}

	if cfg.Reconcile.Enabled {
		reconciler := scheduler.NewReconciler(webhookFlow, stats, locker, cfg.Reconcile, log.New(log.Writer(), "reconcile: ", log.Flags()))
		if err := reconciler.SetupJobs(); err != nil {
			return nil, err
		}
		stopFuncs = append(stopFuncs, reconciler.Start(context.Background()))
	}

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
