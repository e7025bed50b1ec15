package utils

import (
	"time"
)

// Request context keys shared by handlers, flows and repositories
type contextKey string

const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	OperatorIDKey contextKey = "operator_id"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Campaign dispatch defaults
const (
	// DefaultChunkSize is the number of send tasks released per batch
	DefaultChunkSize = 50

	// DefaultBatchDelay is the offset added per batch index when enqueuing send tasks
	DefaultBatchDelay = 5 * time.Second

	// DefaultStatisticsCacheTTL is how long campaign statistics stay cached in redis
	DefaultStatisticsCacheTTL = 10 * time.Second

	// CampaignLockTTL bounds how long a campaign start/retry lock may be held
	CampaignLockTTL = 30 * time.Second

	// MessageLogInsertBatchSize is the CreateInBatches size used by SaveBatch
	MessageLogInsertBatchSize = 100
)

// Queue defaults
const (
	DefaultQueueMaxAttempts = 5
	QueueBackoffBase        = 5 * time.Second
	QueueBackoffMax         = 5 * time.Minute
)

// Provider defaults
const (
	DefaultWhatsAppBaseURL    = "https://graph.facebook.com"
	DefaultWhatsAppAPIVersion = "v21.0"
	WhatsAppMessagingProduct  = "whatsapp"
	WebhookSignatureHeader    = "X-Hub-Signature-256"
)
