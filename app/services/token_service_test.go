package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

func createTestTokenService(ttl time.Duration) (TokenService, error) {
	return NewTokenService(ttl, "test-issuer", "test-audience", false, "", "", testSecret)
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		publicKey   string
		secretKey   string
		expectError bool
	}{
		{name: "valid symmetric key configuration", secretKey: testSecret},
		{name: "missing secret key", expectError: true},
		{name: "rsa without public key", useRSAKeys: true, expectError: true},
		{name: "rsa with garbage public key", useRSAKeys: true, publicKey: "garbage", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(time.Hour, "iss", "aud", tt.useRSAKeys, "", tt.publicKey, tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, service)
		})
	}
}

func TestValidateToken(t *testing.T) {
	service, err := createTestTokenService(15 * time.Minute)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		token, err := service.GenerateAccessToken(42)
		require.NoError(t, err)

		claims, err := service.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, uint(42), claims.OperatorID)
		assert.Equal(t, "access", claims.TokenType)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := createTestTokenService(-time.Minute)
		require.NoError(t, err)
		token, err := expired.GenerateAccessToken(42)
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenService(time.Hour, "test-issuer", "test-audience", false, "", "", "another-secret-key-of-sufficient-size")
		require.NoError(t, err)
		token, err := other.GenerateAccessToken(42)
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewTokenService(time.Hour, "test-issuer", "someone-else", false, "", "", testSecret)
		require.NoError(t, err)
		token, err := other.GenerateAccessToken(42)
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("missing operator", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"token_type": "access",
			"iss":        "test-issuer",
			"aud":        "test-audience",
			"exp":        time.Now().Add(time.Hour).Unix(),
		})
		token, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.ValidateToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
