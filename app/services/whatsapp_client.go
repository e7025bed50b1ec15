package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/metrics"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"golang.org/x/time/rate"
)

// ErrSendThrottled is returned when the local send budget cannot admit a
// message before the caller's deadline. Nothing reached the provider.
var ErrSendThrottled = errors.New("whatsapp send throttled")

// SenderCredentials identifies the WhatsApp Business number a call is made for
type SenderCredentials struct {
	PhoneNumberID string
	AccessToken   string
}

// TemplatePayload is the "template" object of a Cloud API message
type TemplatePayload struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplateComponent carries positional parameters for header, body or a button
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters"`
}

type TemplateParameter struct {
	Type     string     `json:"type"`
	Text     string     `json:"text,omitempty"`
	Image    *MediaLink `json:"image,omitempty"`
	Video    *MediaLink `json:"video,omitempty"`
	Document *MediaLink `json:"document,omitempty"`
}

type MediaLink struct {
	Link string `json:"link"`
}

type outboundMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *TemplatePayload `json:"template"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// PhoneNumberInfo is the subset of the phone number node used for verification
type PhoneNumberInfo struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

// ProviderError is a Graph API error response
type ProviderError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	FBTraceID  string `json:"fbtrace_id"`
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("(#%d) %s", e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp api http status %d: %s", e.StatusCode, e.Message)
}

// WhatsAppClient talks to the WhatsApp Cloud API
type WhatsAppClient interface {
	SendTemplate(ctx context.Context, sender SenderCredentials, to string, template TemplatePayload) (string, error)
	GetPhoneNumber(ctx context.Context, sender SenderCredentials) (*PhoneNumberInfo, error)
}

// WhatsAppClientConfig configures the HTTP client
type WhatsAppClientConfig struct {
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

type httpWhatsAppClient struct {
	cfg     WhatsAppClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewWhatsAppClient builds a Cloud API client. Outbound sends share one
// token bucket so the pool never exceeds the configured messages per second.
func NewWhatsAppClient(cfg WhatsAppClientConfig) WhatsAppClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = utils.DefaultWhatsAppBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = utils.DefaultWhatsAppAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &httpWhatsAppClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *httpWhatsAppClient) endpoint(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.APIVersion + "/" + strings.Join(escaped, "/")
}

func (c *httpWhatsAppClient) SendTemplate(ctx context.Context, sender SenderCredentials, to string, template TemplatePayload) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendThrottled, err)
	}

	msg := outboundMessage{
		MessagingProduct: utils.WhatsAppMessagingProduct,
		RecipientType:    "individual",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "template",
		Template:         &template,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	started := time.Now()
	defer metrics.ProviderRequest("send_template", started)

	var out sendResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint(sender.PhoneNumberID, "messages"), sender.AccessToken, body, &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp api returned no message id")
	}
	return out.Messages[0].ID, nil
}

func (c *httpWhatsAppClient) GetPhoneNumber(ctx context.Context, sender SenderCredentials) (*PhoneNumberInfo, error) {
	started := time.Now()
	defer metrics.ProviderRequest("get_phone_number", started)

	u := c.endpoint(sender.PhoneNumberID) + "?fields=" + url.QueryEscape("display_phone_number,verified_name")
	var out PhoneNumberInfo
	if err := c.do(ctx, http.MethodGet, u, sender.AccessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpWhatsAppClient) do(ctx context.Context, method, u, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read whatsapp api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error *ProviderError `json:"error"`
		}
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			return envelope.Error
		}
		return &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode whatsapp api response: %w", err)
	}
	return nil
}

// MockWhatsAppClient records outbound sends for tests and local runs
type MockWhatsAppClient struct {
	mu      sync.Mutex
	sent    []MockSentMessage
	failFor map[string]error
	counter int
}

type MockSentMessage struct {
	Sender    SenderCredentials
	To        string
	Template  TemplatePayload
	MessageID string
}

func NewMockWhatsAppClient() *MockWhatsAppClient {
	return &MockWhatsAppClient{failFor: map[string]error{}}
}

// FailFor makes every send to recipient return err. A phone number id as
// recipient also fails GetPhoneNumber for that sender.
func (m *MockWhatsAppClient) FailFor(recipient string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[recipient] = err
}

func (m *MockWhatsAppClient) SendTemplate(ctx context.Context, sender SenderCredentials, to string, template TemplatePayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failFor[to]; ok {
		return "", err
	}
	m.counter++
	id := fmt.Sprintf("wamid.mock.%d", m.counter)
	m.sent = append(m.sent, MockSentMessage{Sender: sender, To: to, Template: template, MessageID: id})
	return id, nil
}

func (m *MockWhatsAppClient) GetPhoneNumber(ctx context.Context, sender SenderCredentials) (*PhoneNumberInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failFor[sender.PhoneNumberID]; ok {
		return nil, err
	}
	return &PhoneNumberInfo{ID: sender.PhoneNumberID, DisplayPhoneNumber: "+1 555-0100", VerifiedName: "Mock Sender"}, nil
}

func (m *MockWhatsAppClient) GetSentMessages() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
