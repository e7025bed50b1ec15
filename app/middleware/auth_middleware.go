// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/gofiber/fiber/v3"
)

const (
	operatorIDLocal  = "operator_id"
	tokenClaimsLocal = "token_claims"
)

// AuthMiddleware handles JWT token validation for operator endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// Authenticate validates the bearer token and stores the operator in Locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}
		if claims.OperatorID == 0 {
			return unauthorized(c, "Invalid operator ID", "INVALID_OPERATOR_ID")
		}

		c.Locals(operatorIDLocal, claims.OperatorID)
		c.Locals(tokenClaimsLocal, claims)

		// Store RequestID for audit logging
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// GetOperatorIDFromContext extracts the operator ID set by Authenticate
func GetOperatorIDFromContext(c fiber.Ctx) (uint, bool) {
	operatorID, ok := c.Locals(operatorIDLocal).(uint)
	return operatorID, ok && operatorID != 0
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.OperatorClaims, bool) {
	claims, ok := c.Locals(tokenClaimsLocal).(*services.OperatorClaims)
	return claims, ok
}
