package handlers

import (
	"github.com/amirphl/medipay/app/dto"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// PaymentHandlerInterface defines the contract for payment order handlers
type PaymentHandlerInterface interface {
	CreateOrder(c fiber.Ctx) error
	ListOrders(c fiber.Ctx) error
	GetOrder(c fiber.Ctx) error
	GetOrderByNumber(c fiber.Ctx) error
	CancelOrder(c fiber.Ctx) error
	InitiatePayment(c fiber.Ctx) error
	GetStatistics(c fiber.Ctx) error
}

// PaymentHandler handles payment order HTTP requests
type PaymentHandler struct {
	baseHandler
	paymentFlow businessflow.PaymentFlow
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentFlow businessflow.PaymentFlow, v *validator.Validate, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		baseHandler: baseHandler{validator: v, logger: logger},
		paymentFlow: paymentFlow,
	}
}

// CreateOrder opens a payment order for the caller
// @Summary Create Payment Order
// @Description Open a pending payment order. When amount is omitted the current price of the order type applies.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreatePaymentOrderRequest true "Order data"
// @Success 201 {object} dto.APIResponse{data=dto.PaymentOrderResponse} "Order created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "No current price for this order type"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/payments/orders [post]
func (h *PaymentHandler) CreateOrder(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.CreatePaymentOrderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/orders")
	defer cancel()

	result, err := h.paymentFlow.CreateOrder(ctx, caller, &req, h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "CREATE_ORDER_FAILED", "Failed to create payment order")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Payment order created successfully", result)
}

// ListOrders pages through orders
// @Summary List Payment Orders
// @Description List orders newest first. Non-admin callers only see their own orders.
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Owner filter (admin only)"
// @Param status query string false "Order status"
// @Param order_type query string false "Order type"
// @Param start_date query string false "Created on or after (YYYY-MM-DD)"
// @Param end_date query string false "Created on or before (YYYY-MM-DD)"
// @Param page query int false "Page number (default: 1)" minimum(1)
// @Param page_size query int false "Items per page (default: 20, max: 100)" minimum(1) maximum(100)
// @Success 200 {object} dto.APIResponse{data=dto.ListPaymentOrdersResponse} "Orders retrieved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/payments/orders [get]
func (h *PaymentHandler) ListOrders(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.ListPaymentOrdersRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/orders")
	defer cancel()

	result, err := h.paymentFlow.ListOrders(ctx, caller, &req)
	if err != nil {
		return h.handleFlowError(c, err, "LIST_ORDERS_FAILED", "Failed to list payment orders")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment orders retrieved successfully", result)
}

// GetOrder returns one order
// @Summary Get Payment Order
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Order UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PaymentOrderResponse} "Order retrieved"
// @Failure 403 {object} dto.APIResponse "Not the owner"
// @Failure 404 {object} dto.APIResponse "Order not found"
// @Router /api/v1/payments/orders/{uuid} [get]
func (h *PaymentHandler) GetOrder(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/orders/:uuid")
	defer cancel()

	result, err := h.paymentFlow.GetOrder(ctx, caller, c.Params("uuid"))
	if err != nil {
		return h.handleFlowError(c, err, "GET_ORDER_FAILED", "Failed to retrieve payment order")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment order retrieved successfully", result)
}

// GetOrderByNumber returns one order by its business number
// @Summary Get Payment Order By Number
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param order_no path string true "Order number"
// @Success 200 {object} dto.APIResponse{data=dto.PaymentOrderResponse} "Order retrieved"
// @Failure 403 {object} dto.APIResponse "Not the owner"
// @Failure 404 {object} dto.APIResponse "Order not found"
// @Router /api/v1/payments/orders/by-number/{order_no} [get]
func (h *PaymentHandler) GetOrderByNumber(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/orders/by-number/:order_no")
	defer cancel()

	result, err := h.paymentFlow.GetOrderByNumber(ctx, caller, c.Params("order_no"))
	if err != nil {
		return h.handleFlowError(c, err, "GET_ORDER_FAILED", "Failed to retrieve payment order")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment order retrieved successfully", result)
}

// CancelOrder cancels a pending order
// @Summary Cancel Payment Order
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Order UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PaymentOrderResponse} "Order cancelled"
// @Failure 403 {object} dto.APIResponse "Not the owner"
// @Failure 404 {object} dto.APIResponse "Order not found"
// @Failure 409 {object} dto.APIResponse "Order is not pending"
// @Router /api/v1/payments/orders/{uuid}/cancel [post]
func (h *PaymentHandler) CancelOrder(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/orders/:uuid/cancel")
	defer cancel()

	result, err := h.paymentFlow.CancelOrder(ctx, caller, c.Params("uuid"), h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "CANCEL_ORDER_FAILED", "Failed to cancel payment order")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment order cancelled successfully", result)
}

// InitiatePayment starts paying a pending order with the chosen method
// @Summary Initiate Payment
// @Description Pay from the wallet balance or start a gateway payment and return what the client needs to finish it.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Order UUID"
// @Param request body dto.InitiatePaymentRequest true "Payment method"
// @Success 200 {object} dto.APIResponse{data=dto.InitiatePaymentResponse} "Payment initiated"
// @Failure 400 {object} dto.APIResponse "Validation error or unsupported method"
// @Failure 402 {object} dto.APIResponse "Insufficient balance"
// @Failure 409 {object} dto.APIResponse "Order is not pending"
// @Failure 410 {object} dto.APIResponse "Order expired"
// @Failure 502 {object} dto.APIResponse "Gateway error"
// @Router /api/v1/payments/orders/{uuid}/pay [post]
func (h *PaymentHandler) InitiatePayment(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.InitiatePaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/orders/:uuid/pay")
	defer cancel()

	result, err := h.paymentFlow.InitiatePayment(ctx, caller, c.Params("uuid"), &req, h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "INITIATE_PAYMENT_FAILED", "Failed to initiate payment")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment initiated successfully", result)
}

// GetStatistics aggregates order counts and amounts
// @Summary Payment Statistics
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Owner filter (admin only)"
// @Param start_date query string false "Created on or after (YYYY-MM-DD)"
// @Param end_date query string false "Created on or before (YYYY-MM-DD)"
// @Success 200 {object} dto.APIResponse{data=dto.PaymentStatisticsResponse} "Statistics retrieved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/payments/statistics [get]
func (h *PaymentHandler) GetStatistics(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.PaymentStatisticsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/statistics")
	defer cancel()

	result, err := h.paymentFlow.GetStatistics(ctx, caller, &req)
	if err != nil {
		return h.handleFlowError(c, err, "GET_STATISTICS_FAILED", "Failed to compute payment statistics")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment statistics retrieved successfully", result)
}
