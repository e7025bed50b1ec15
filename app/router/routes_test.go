package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/handlers"
	"github.com/amirphl/Orochi-WhatsApp/app/middleware"
	"github.com/amirphl/Orochi-WhatsApp/app/router"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, env string, checks map[string]router.HealthCheck) *fiber.App {
	t.Helper()

	tokens, err := services.NewTokenService(time.Hour, "iss", "aud", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)

	cfg := &config.ProductionConfig{
		Security:   config.SecurityConfig{AllowedOrigins: []string{"*"}, GlobalRateLimit: 100, WebhookRateLimit: 100},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Deployment: config.DeploymentConfig{Environment: env, Version: "1.4.0"},
	}

	// Flows are never reached by these requests
	h := router.Handlers{
		Template:       handlers.NewTemplateHandler(nil),
		Contact:        handlers.NewContactHandler(nil),
		WhatsAppNumber: handlers.NewWhatsAppNumberHandler(nil),
		Campaign:       handlers.NewCampaignHandler(nil, nil),
		Webhook:        handlers.NewWebhookHandler(nil),
	}

	r := router.NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokens), checks)
	r.SetupRoutes()
	return r.GetApp()
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		app := newTestRouter(t, "production", map[string]router.HealthCheck{
			"database": func(context.Context) error { return nil },
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		data := decode(t, resp)["data"].(map[string]any)
		assert.Equal(t, "ok", data["status"])
		assert.Equal(t, "1.4.0", data["version"])
		assert.Equal(t, "ok", data["checks"].(map[string]any)["database"])
	})

	t.Run("degraded", func(t *testing.T) {
		app := newTestRouter(t, "production", map[string]router.HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp 127.0.0.1:6379: connection refused") },
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		data := decode(t, resp)["data"].(map[string]any)
		assert.Equal(t, "degraded", data["status"])
		checks := data["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["database"])
		assert.Contains(t, checks["redis"], "connection refused")
	})
}

func TestOperatorRoutesRequireAuth(t *testing.T) {
	app := newTestRouter(t, "production", nil)

	for _, target := range []string{"/api/v1/campaigns", "/api/v1/templates/1", "/api/v1/contacts", "/api/v1/whatsapp-numbers"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, target)
		resp.Body.Close()
	}
}

func TestUnknownRoute(t *testing.T) {
	app := newTestRouter(t, "production", nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode(t, resp)["error"].(map[string]any)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestRouter(t, "production", nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orochi_wa_http_requests_total")
}

func TestSwaggerOnlyInDevelopment(t *testing.T) {
	dev := newTestRouter(t, "development", nil)
	resp, err := dev.Test(httptest.NewRequest(http.MethodGet, "/api/v1/swagger.json", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Orochi WhatsApp API")
	assert.Contains(t, string(body), "/api/v1/campaigns/{id}/start")

	prod := newTestRouter(t, "production", nil)
	resp, err = prod.Test(httptest.NewRequest(http.MethodGet, "/api/v1/swagger.json", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
}
