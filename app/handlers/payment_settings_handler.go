package handlers

import (
	"github.com/amirphl/medipay/app/dto"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// PaymentSettingsHandlerInterface defines the contract for price and gateway settings handlers
type PaymentSettingsHandlerInterface interface {
	ListPrices(c fiber.Ctx) error
	GetPrice(c fiber.Ctx) error
	GetGatewayConfig(c fiber.Ctx) error
	UpdateGatewayConfig(c fiber.Ctx) error
}

// PaymentSettingsHandler serves service prices and gateway credential management
type PaymentSettingsHandler struct {
	baseHandler
	settingsFlow businessflow.PaymentSettingsFlow
}

// NewPaymentSettingsHandler creates a new settings handler
func NewPaymentSettingsHandler(settingsFlow businessflow.PaymentSettingsFlow, v *validator.Validate, logger *zap.Logger) *PaymentSettingsHandler {
	return &PaymentSettingsHandler{
		baseHandler:  baseHandler{validator: v, logger: logger},
		settingsFlow: settingsFlow,
	}
}

// ListPrices returns the current price of every service type
// @Summary List Service Prices
// @Tags Prices
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListPriceConfigsResponse} "Prices retrieved"
// @Router /api/v1/payments/prices [get]
func (h *PaymentSettingsHandler) ListPrices(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/prices")
	defer cancel()

	result, err := h.settingsFlow.ListPrices(ctx)
	if err != nil {
		return h.handleFlowError(c, err, "LIST_PRICES_FAILED", "Failed to list prices")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Prices retrieved successfully", result)
}

// GetPrice returns the current price of one service type
// @Summary Get Service Price
// @Tags Prices
// @Produce json
// @Param service_type path string true "Service type"
// @Success 200 {object} dto.APIResponse{data=dto.PriceConfigResponse} "Price retrieved"
// @Failure 404 {object} dto.APIResponse "No current price"
// @Router /api/v1/payments/prices/{service_type} [get]
func (h *PaymentSettingsHandler) GetPrice(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/prices/:service_type")
	defer cancel()

	result, err := h.settingsFlow.GetPrice(ctx, c.Params("service_type"))
	if err != nil {
		return h.handleFlowError(c, err, "GET_PRICE_FAILED", "Failed to retrieve price")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Price retrieved successfully", result)
}

// GetGatewayConfig returns the stored credentials of a gateway with secrets masked
// @Summary Get Gateway Config
// @Tags Admin Payments
// @Produce json
// @Security BearerAuth
// @Param payment_method path string true "alipay|wechat"
// @Success 200 {object} dto.APIResponse{data=dto.GatewayConfigResponse} "Config retrieved"
// @Failure 400 {object} dto.APIResponse "Unsupported payment method"
// @Failure 403 {object} dto.APIResponse "Admin only"
// @Router /api/v1/admin/payments/config/{payment_method} [get]
func (h *PaymentSettingsHandler) GetGatewayConfig(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/payments/config/:payment_method")
	defer cancel()

	result, err := h.settingsFlow.GetGatewayConfig(ctx, caller, c.Params("payment_method"))
	if err != nil {
		return h.handleFlowError(c, err, "GET_GATEWAY_CONFIG_FAILED", "Failed to retrieve gateway config")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Gateway config retrieved successfully", result)
}

// UpdateGatewayConfig upserts credential keys of a gateway
// @Summary Update Gateway Config
// @Tags Admin Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payment_method path string true "alipay|wechat"
// @Param request body dto.UpdateGatewayConfigRequest true "Credential entries"
// @Success 200 {object} dto.APIResponse{data=dto.GatewayConfigResponse} "Config updated"
// @Failure 400 {object} dto.APIResponse "Validation error or unknown key"
// @Failure 403 {object} dto.APIResponse "Admin only"
// @Router /api/v1/admin/payments/config/{payment_method} [put]
func (h *PaymentSettingsHandler) UpdateGatewayConfig(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.UpdateGatewayConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/payments/config/:payment_method")
	defer cancel()

	result, err := h.settingsFlow.UpdateGatewayConfig(ctx, caller, c.Params("payment_method"), &req, h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "UPDATE_GATEWAY_CONFIG_FAILED", "Failed to update gateway config")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Gateway config updated successfully", result)
}
