package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/middleware"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

func newProtectedApp(t *testing.T, tokens services.TokenService) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/protected", middleware.NewAuthMiddleware(tokens).Authenticate(), func(c fiber.Ctx) error {
		operatorID, ok := middleware.GetOperatorIDFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		claims, ok := middleware.GetTokenClaimsFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"operator_id": operatorID, "issuer": claims.Issuer})
	})
	return app
}

func TestAuthenticate(t *testing.T) {
	tokens, err := services.NewTokenService(time.Hour, "orochi-identity", "orochi-whatsapp-api", false, "", "", testSecret)
	require.NoError(t, err)
	expired, err := services.NewTokenService(-time.Minute, "orochi-identity", "orochi-whatsapp-api", false, "", "", testSecret)
	require.NoError(t, err)
	foreign, err := services.NewTokenService(time.Hour, "orochi-identity", "orochi-whatsapp-api", false, "", "", "another-secret-key-that-is-32-chars!!")
	require.NoError(t, err)

	valid, err := tokens.GenerateAccessToken(42)
	require.NoError(t, err)
	stale, err := expired.GenerateAccessToken(42)
	require.NoError(t, err)
	forged, err := foreign.GenerateAccessToken(42)
	require.NoError(t, err)

	app := newProtectedApp(t, tokens)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{name: "missing header", wantCode: fiber.StatusUnauthorized, wantErr: "MISSING_AUTHORIZATION_HEADER"},
		{name: "basic scheme", header: "Basic b3BlcmF0b3I6c2VjcmV0", wantCode: fiber.StatusUnauthorized, wantErr: "INVALID_AUTHORIZATION_FORMAT"},
		{name: "expired token", header: "Bearer " + stale, wantCode: fiber.StatusUnauthorized, wantErr: "TOKEN_EXPIRED"},
		{name: "wrong signing key", header: "Bearer " + forged, wantCode: fiber.StatusUnauthorized, wantErr: "TOKEN_INVALID"},
		{name: "garbage", header: "Bearer not.a.jwt", wantCode: fiber.StatusUnauthorized, wantErr: "TOKEN_INVALID"},
		{name: "valid token", header: "Bearer " + valid, wantCode: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

			if tt.wantErr != "" {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.wantErr, body["error"].(map[string]any)["code"])
				return
			}
			assert.EqualValues(t, 42, body["operator_id"])
			assert.Equal(t, "orochi-identity", body["issuer"])
		})
	}
}
