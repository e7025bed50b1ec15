package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppClientSendTemplate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"447400123456","wa_id":"447400123456"}],"messages":[{"id":"wamid.HBgM"}]}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(WhatsAppClientConfig{BaseURL: srv.URL, APIVersion: "v21.0", Timeout: 5 * time.Second})
	id, err := client.SendTemplate(context.Background(),
		SenderCredentials{PhoneNumberID: "1065", AccessToken: "secret-token"},
		"+447400123456",
		TemplatePayload{
			Name:     "order_confirmation",
			Language: TemplateLanguage{Code: "en_US"},
			Components: []TemplateComponent{{
				Type:       "body",
				Parameters: []TemplateParameter{{Type: "text", Text: "Asha"}, {Type: "text", Text: "1042"}},
			}},
		})
	require.NoError(t, err)
	assert.Equal(t, "wamid.HBgM", id)
	assert.Equal(t, "/v21.0/1065/messages", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)

	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "447400123456", gotBody["to"])
	assert.Equal(t, "template", gotBody["type"])
	tpl := gotBody["template"].(map[string]any)
	assert.Equal(t, "order_confirmation", tpl["name"])
	assert.Equal(t, "en_US", tpl["language"].(map[string]any)["code"])
	params := tpl["components"].([]any)[0].(map[string]any)["parameters"].([]any)
	assert.Equal(t, "1042", params[1].(map[string]any)["text"])
}

func TestWhatsAppClientProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Template name does not exist in the translation","type":"OAuthException","code":132001,"error_subcode":2494073,"fbtrace_id":"AbC"}}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(WhatsAppClientConfig{BaseURL: srv.URL})
	_, err := client.SendTemplate(context.Background(), SenderCredentials{PhoneNumberID: "1", AccessToken: "t"}, "+15550100", TemplatePayload{Name: "x"})
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 132001, perr.Code)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "(#132001) Template name does not exist in the translation", err.Error())
}

func TestWhatsAppClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewWhatsAppClient(WhatsAppClientConfig{BaseURL: srv.URL})
	_, err := client.SendTemplate(context.Background(), SenderCredentials{PhoneNumberID: "1", AccessToken: "t"}, "+15550100", TemplatePayload{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestWhatsAppClientGetPhoneNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/1065", r.URL.Path)
		assert.Equal(t, "display_phone_number,verified_name", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"id":"1065","display_phone_number":"+1 555-0100","verified_name":"Acme"}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(WhatsAppClientConfig{BaseURL: srv.URL})
	info, err := client.GetPhoneNumber(context.Background(), SenderCredentials{PhoneNumberID: "1065", AccessToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", info.VerifiedName)
}

func TestWhatsAppClientRateLimitHonoursContext(t *testing.T) {
	client := NewWhatsAppClient(WhatsAppClientConfig{BaseURL: "http://127.0.0.1:0", RatePerSecond: 0.001, Burst: 1})
	impl := client.(*httpWhatsAppClient)
	require.True(t, impl.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.SendTemplate(ctx, SenderCredentials{PhoneNumberID: "1"}, "+15550100", TemplatePayload{Name: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendThrottled)
	// the limiter refuses up front; the deadline has not passed yet
	assert.NoError(t, ctx.Err())

	var perr *ProviderError
	assert.False(t, errors.As(err, &perr))
}

func TestMockWhatsAppClient(t *testing.T) {
	mock := NewMockWhatsAppClient()
	mock.FailFor("+15550101", errors.New("(#131026) Message undeliverable"))

	id, err := mock.SendTemplate(context.Background(), SenderCredentials{}, "+15550100", TemplatePayload{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.mock.1", id)

	_, err = mock.SendTemplate(context.Background(), SenderCredentials{}, "+15550101", TemplatePayload{Name: "x"})
	assert.EqualError(t, err, "(#131026) Message undeliverable")
	assert.Len(t, mock.GetSentMessages(), 1)
}
