// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/amirphl/medipay/app/dto"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

type requestContextKey string

// Context keys attached to every flow call
const (
	requestIDKey requestContextKey = "request_id"
	endpointKey  requestContextKey = "endpoint"
)

// NewValidator builds the validator shared by every handler. Money fields are validated
// through their decimal string form.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("decimal_gt0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	return v
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "url":
		return err.Field() + " must be a valid URL"
	case "datetime":
		return err.Field() + " must be a date in format " + err.Param()
	case "decimal_gt0":
		return err.Field() + " must be an amount greater than zero"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// baseHandler carries the response envelope and request plumbing every handler shares
type baseHandler struct {
	validator *validator.Validate
	logger    *zap.Logger
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validationErrors returns the readable validation failures of req, nil when it is valid
func (h *baseHandler) validationErrors(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// caller reads the principal the auth middleware stored on the request
func (h *baseHandler) caller(c fiber.Ctx) (businessflow.Caller, bool) {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return businessflow.Caller{}, false
	}
	role, _ := c.Locals("role").(string)
	return businessflow.Caller{UserID: userID, Role: role}, true
}

func (h *baseHandler) metadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(utils.RequestIDKey))
	return metadata
}

// createRequestContext creates a context with request-scoped values and the default timeout.
// The returned cancel func must be called once the flow returns.
func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	ctx = context.WithValue(ctx, requestIDKey, c.Get(utils.RequestIDKey))
	ctx = context.WithValue(ctx, endpointKey, endpoint)
	return ctx, cancel
}

// errorMapping is the HTTP rendering of one business error category
type errorMapping struct {
	match   func(error) bool
	status  int
	code    string
	message string
}

var businessErrorMappings = []errorMapping{
	{businessflow.IsOrderNotFound, fiber.StatusNotFound, "ORDER_NOT_FOUND", "Payment order not found"},
	{businessflow.IsTransactionNotFound, fiber.StatusNotFound, "TRANSACTION_NOT_FOUND", "Payment transaction not found"},
	{businessflow.IsRefundNotFound, fiber.StatusNotFound, "REFUND_NOT_FOUND", "Refund not found"},
	{businessflow.IsBalanceNotFound, fiber.StatusNotFound, "BALANCE_NOT_FOUND", "Balance not found"},
	{businessflow.IsPriceConfigNotFound, fiber.StatusNotFound, "PRICE_CONFIG_NOT_FOUND", "No current price for this service"},
	{businessflow.IsOrderExpired, fiber.StatusGone, "ORDER_EXPIRED", "Payment order has expired"},
	{businessflow.IsRefundInProgress, fiber.StatusConflict, "REFUND_IN_PROGRESS", "Another refund is in progress for this order"},
	{businessflow.IsInvalidOrderState, fiber.StatusConflict, "INVALID_ORDER_STATE", "Order is not in a valid state for this operation"},
	{businessflow.IsInvalidRefundState, fiber.StatusConflict, "INVALID_REFUND_STATE", "Refund is not in a valid state for this operation"},
	{businessflow.IsConcurrentUpdate, fiber.StatusConflict, "CONCURRENT_UPDATE", "Record was modified concurrently, please retry"},
	{businessflow.IsCallbackInProgress, fiber.StatusConflict, "CALLBACK_IN_PROGRESS", "Callback is already being processed"},
	{businessflow.IsForbidden, fiber.StatusForbidden, "FORBIDDEN", "Operation not permitted"},
	{businessflow.IsInsufficientFunds, fiber.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "Insufficient balance"},
	{businessflow.IsInvalidAmount, fiber.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero with at most two decimals"},
	{businessflow.IsRefundAmountExceedsOrder, fiber.StatusBadRequest, "REFUND_AMOUNT_EXCEEDS_ORDER", "Refund amount exceeds the refundable amount"},
	{businessflow.IsUnsupportedPaymentMethod, fiber.StatusBadRequest, "UNSUPPORTED_PAYMENT_METHOD", "Payment method is not supported"},
	{businessflow.IsInvalidLedgerOperation, fiber.StatusBadRequest, "INVALID_LEDGER_OPERATION", "Invalid balance transaction"},
	{businessflow.IsInvalidFilter, fiber.StatusBadRequest, "INVALID_FILTER", "Invalid filter"},
	{businessflow.IsInvalidOrderType, fiber.StatusBadRequest, "INVALID_ORDER_TYPE", "Order type is not supported"},
	{businessflow.IsInvalidConfigKey, fiber.StatusBadRequest, "INVALID_CONFIG_KEY", "Config key is not recognised for this gateway"},
	{businessflow.IsEncryptionUnavailable, fiber.StatusBadRequest, "ENCRYPTION_UNAVAILABLE", "Config encryption is not available"},
	{businessflow.IsSignatureVerificationFailed, fiber.StatusBadRequest, "SIGNATURE_VERIFICATION_FAILED", "Signature verification failed"},
	{businessflow.IsGatewayNotConfigured, fiber.StatusBadGateway, "GATEWAY_NOT_CONFIGURED", "Payment gateway is not configured"},
	{businessflow.IsExternalGateway, fiber.StatusBadGateway, "EXTERNAL_GATEWAY_ERROR", "Payment gateway error"},
}

// mapBusinessError finds the HTTP rendering of a known business error
func mapBusinessError(err error) (errorMapping, bool) {
	for _, m := range businessErrorMappings {
		if m.match(err) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// handleFlowError renders err. Unknown errors are logged and answered with a generic 500.
func (h *baseHandler) handleFlowError(c fiber.Ctx, err error, fallbackCode, fallbackMessage string) error {
	if m, ok := mapBusinessError(err); ok {
		return h.ErrorResponse(c, m.status, m.message, m.code, nil)
	}
	h.logger.Error(fallbackMessage,
		zap.Error(err),
		zap.String("code", businessflow.ErrorCode(err)),
		zap.String("path", c.Path()),
		zap.String("request_id", c.Get(utils.RequestIDKey)),
	)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *baseHandler) unauthorized(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "User not found in context", "MISSING_USER_ID", nil)
}
