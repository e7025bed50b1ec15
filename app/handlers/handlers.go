// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/middleware"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response helpers every resource handler shares
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

func (h baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and returns the user-facing messages
func (h baseHandler) validate(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// bindJSON decodes and validates the body; it writes the 400 itself and
// reports false when the request must stop.
func (h baseHandler) bindJSON(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(req); messages != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}
	return true, nil
}

// bindQuery is bindJSON for query strings
func (h baseHandler) bindQuery(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().Query(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(req); messages != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}
	return true, nil
}

// paramID parses a positive numeric path parameter
func (h baseHandler) paramID(c fiber.Ctx, name string) (uint, bool, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false, h.ErrorResponse(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid %s", name), "INVALID_ID", raw)
	}
	return uint(id), true, nil
}

// flowError maps business errors to status codes; anything unclassified is a 500
func (h baseHandler) flowError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, errorMessage(err, message), businessflow.ErrorCode(err, "NOT_FOUND"), nil)
	case businessflow.IsConflict(err):
		return h.ErrorResponse(c, fiber.StatusConflict, errorMessage(err, message), businessflow.ErrorCode(err, "CONFLICT"), nil)
	case businessflow.IsInvalidRequest(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, errorMessage(err, message), businessflow.ErrorCode(err, "INVALID_REQUEST"), unwrapDetail(err))
	}

	log.Printf("%s: %v", message, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

func errorMessage(err error, fallback string) string {
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}

func unwrapDetail(err error) any {
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Err != nil {
		return be.Err.Error()
	}
	return nil
}

// metadata collects client information for audit rows
func (h baseHandler) metadata(c fiber.Ctx) *businessflow.ClientMetadata {
	md := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	md.SetRequestID(requestID(c))
	return md
}

func requestID(c fiber.Ctx) string {
	if id := requestid.FromContext(c); id != "" {
		return id
	}
	return c.Get("X-Request-ID")
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, defaultRequestTimeout)
}

func (h baseHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	if operatorID, ok := middleware.GetOperatorIDFromContext(c); ok {
		ctx = context.WithValue(ctx, utils.OperatorIDKey, operatorID)
	}

	return ctx, cancel
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "required_if":
		return err.Field() + " is required when " + err.Param()
	case "email":
		return "Invalid email format"
	case "e164":
		return err.Field() + " must be an E.164 phone number such as +447400123456"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
