// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	Campaign   CampaignConfig   `json:"campaign"`
	Queue      QueueConfig      `json:"queue"`
	Reconcile  ReconcileConfig  `json:"reconcile"`
	Sentry     SentryConfig     `json:"sentry"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN renders the libpq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL renders the postgres:// form used by the migrator
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit  int           `json:"global_rate_limit"`  // requests per minute
	WebhookRateLimit int           `json:"webhook_rate_limit"` // requests per minute
	RateLimitWindow  time.Duration `json:"rate_limit_window"`

	IPBlacklist []string `json:"ip_blacklist"`
}

// JWTConfig verifies operator tokens issued by the identity service
type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	PrivateKey     string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey      string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys     bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"` // debug, info, warn, error
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	EnableAccessLog bool `json:"enable_access_log"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
	HealthCheck time.Duration `json:"health_check"`
}

// WhatsAppConfig configures the Cloud API client and webhook endpoint
type WhatsAppConfig struct {
	BaseURL            string        `json:"base_url"`
	APIVersion         string        `json:"api_version"`
	Timeout            time.Duration `json:"timeout"`
	RateLimitPerSecond float64       `json:"rate_limit_per_second"`
	RateLimitBurst     int           `json:"rate_limit_burst"`
	VerifyToken        string        `json:"-"`
	AppSecret          string        `json:"-"`
	DefaultRegion      string        `json:"default_region"`
	UseMockProvider    bool          `json:"use_mock_provider"`
}

type CampaignConfig struct {
	ChunkSize          int           `json:"chunk_size"`
	BatchDelay         time.Duration `json:"batch_delay"`
	MaxRetryCount      int           `json:"max_retry_count"` // 0 = unlimited
	StatisticsCacheTTL time.Duration `json:"statistics_cache_ttl"`
}

// QueueConfig configures the durable task queue consumer
type QueueConfig struct {
	Enabled           bool          `json:"enabled"`
	PollInterval      time.Duration `json:"poll_interval"`
	BatchSize         int           `json:"batch_size"`
	Workers           int           `json:"workers"`
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	TaskTimeout       time.Duration `json:"task_timeout"`
	MaxAttempts       int           `json:"max_attempts"`
}

type ReconcileConfig struct {
	Enabled     bool          `json:"enabled"`
	Cron        string        `json:"cron"`
	MaxAttempts int           `json:"max_attempts"`
	MinAge      time.Duration `json:"min_age"`
	BatchSize   int           `json:"batch_size"`
}

type SentryConfig struct {
	DSN              string  `json:"-"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Debug            bool    `json:"debug"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// IsDevelopment reports a local or development deployment
func (d DeploymentConfig) IsDevelopment() bool {
	return d.Environment == "development" || d.Environment == "local"
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := loadFromEnv()

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromEnv() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "orochi_whatsapp"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 8*1024*1024), // 8MB, contact imports
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			WebhookRateLimit: getEnvInt("WEBHOOK_RATE_LIMIT", 6000),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			IPBlacklist:      getEnvStringSlice("IP_BLACKLIST", []string{}),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:     getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:      getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:     getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "orochi-identity"),
			Audience:       getEnvString("JWT_AUDIENCE", "orochi-whatsapp-api"),
		},
		Logging: LoggingConfig{
			Level:           getEnvString("LOG_LEVEL", "info"),
			FilePath:        getEnvString("LOG_FILE_PATH", "/var/log/orochi-whatsapp/app.log"),
			MaxSize:         getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:          getEnvInt("LOG_MAX_AGE", 30),
			Compress:        getEnvBool("LOG_COMPRESS", true),
			EnableAccessLog: getEnvBool("LOG_ENABLE_ACCESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "orochi-wa:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			HealthCheck: getEnvDuration("CACHE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:            getEnvString("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion:         getEnvString("WHATSAPP_API_VERSION", "v21.0"),
			Timeout:            getEnvDuration("WHATSAPP_API_TIMEOUT", 15*time.Second),
			RateLimitPerSecond: getEnvFloat("WHATSAPP_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvInt("WHATSAPP_RATE_LIMIT_BURST", 1),
			VerifyToken:        getEnvString("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:          getEnvString("WHATSAPP_APP_SECRET", ""),
			DefaultRegion:      getEnvString("WHATSAPP_DEFAULT_REGION", "GB"),
			UseMockProvider:    getEnvBool("WHATSAPP_USE_MOCK", false),
		},
		Campaign: CampaignConfig{
			ChunkSize:          getEnvInt("CAMPAIGN_CHUNK_SIZE", 50),
			BatchDelay:         getEnvDuration("CAMPAIGN_BATCH_DELAY", 5*time.Second),
			MaxRetryCount:      getEnvInt("CAMPAIGN_MAX_RETRY_COUNT", 0),
			StatisticsCacheTTL: getEnvDuration("CAMPAIGN_STATISTICS_CACHE_TTL", 10*time.Second),
		},
		Queue: QueueConfig{
			Enabled:           getEnvBool("QUEUE_ENABLED", true),
			PollInterval:      getEnvDuration("QUEUE_POLL_INTERVAL", 1*time.Second),
			BatchSize:         getEnvInt("QUEUE_BATCH_SIZE", 50),
			Workers:           getEnvInt("QUEUE_WORKERS", 8),
			VisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 2*time.Minute),
			TaskTimeout:       getEnvDuration("QUEUE_TASK_TIMEOUT", 30*time.Second),
			MaxAttempts:       getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
		},
		Reconcile: ReconcileConfig{
			Enabled:     getEnvBool("RECONCILE_ENABLED", true),
			Cron:        getEnvString("RECONCILE_CRON", "@every 1m"),
			MaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 10),
			MinAge:      getEnvDuration("RECONCILE_MIN_AGE", 30*time.Second),
			BatchSize:   getEnvInt("RECONCILE_BATCH_SIZE", 500),
		},
		Sentry: SentryConfig{
			DSN:              getEnvString("SENTRY_DSN", ""),
			Environment:      getEnvString("SENTRY_ENVIRONMENT", getEnvString("APP_ENV", "production")),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0.1),
			Debug:            getEnvBool("SENTRY_DEBUG", false),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}
}

// loadEnvFile loads variables from path if it exists; already set variables win
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}
	return godotenv.Load(path)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PublicKey == "" {
			errs = append(errs, "JWT_PUBLIC_KEY is required when JWT_USE_RSA_KEYS is true")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.Issuer == "" {
		errs = append(errs, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errs = append(errs, "JWT_AUDIENCE is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Validate provider configuration
	if cfg.WhatsApp.VerifyToken == "" {
		errs = append(errs, "WHATSAPP_VERIFY_TOKEN is required")
	}
	if cfg.WhatsApp.RateLimitPerSecond <= 0 {
		errs = append(errs, "WHATSAPP_RATE_LIMIT_PER_SECOND must be positive")
	}
	if !cfg.WhatsApp.UseMockProvider && cfg.WhatsApp.BaseURL == "" {
		errs = append(errs, "WHATSAPP_API_BASE_URL is required")
	}

	// Validate dispatch configuration
	if cfg.Campaign.ChunkSize <= 0 {
		errs = append(errs, "CAMPAIGN_CHUNK_SIZE must be positive")
	}
	if cfg.Campaign.BatchDelay < 0 {
		errs = append(errs, "CAMPAIGN_BATCH_DELAY must not be negative")
	}
	if cfg.Campaign.MaxRetryCount < 0 {
		errs = append(errs, "CAMPAIGN_MAX_RETRY_COUNT must not be negative")
	}
	if cfg.Queue.Workers <= 0 {
		errs = append(errs, "QUEUE_WORKERS must be positive")
	}
	if cfg.Queue.BatchSize <= 0 {
		errs = append(errs, "QUEUE_BATCH_SIZE must be positive")
	}
	if cfg.Queue.PollInterval <= 0 {
		errs = append(errs, "QUEUE_POLL_INTERVAL must be positive")
	}
	if cfg.Queue.VisibilityTimeout <= cfg.Queue.TaskTimeout {
		errs = append(errs, "QUEUE_VISIBILITY_TIMEOUT must exceed QUEUE_TASK_TIMEOUT")
	}
	// a provider call has to give up while its task still has time to record the outcome
	if cfg.WhatsApp.Timeout <= 0 || cfg.WhatsApp.Timeout >= cfg.Queue.TaskTimeout {
		errs = append(errs, "WHATSAPP_API_TIMEOUT must be positive and shorter than QUEUE_TASK_TIMEOUT")
	}
	if cfg.Reconcile.Enabled && cfg.Reconcile.Cron == "" {
		errs = append(errs, "RECONCILE_CRON is required when reconciliation is enabled")
	}

	// Return validation errors if any
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
