package handlers

import (
	"fmt"

	"github.com/amirphl/medipay/app/dto"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PaymentAdminHandlerInterface defines the contract for admin payment operations
type PaymentAdminHandlerInterface interface {
	ExportOrders(c fiber.Ctx) error
	ReconcileTransaction(c fiber.Ctx) error
}

// PaymentAdminHandler handles back-office payment requests
type PaymentAdminHandler struct {
	baseHandler
	paymentFlow businessflow.PaymentFlow
}

// NewPaymentAdminHandler creates a new admin payment handler
func NewPaymentAdminHandler(paymentFlow businessflow.PaymentFlow, v *validator.Validate, logger *zap.Logger) *PaymentAdminHandler {
	return &PaymentAdminHandler{
		baseHandler: baseHandler{validator: v, logger: logger},
		paymentFlow: paymentFlow,
	}
}

// ExportOrders downloads the filtered orders as an Excel workbook
// @Summary Export Payment Orders
// @Tags Admin Payments
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param user_id query string false "Owner filter"
// @Param status query string false "Order status"
// @Param order_type query string false "Order type"
// @Param start_date query string false "Created on or after (YYYY-MM-DD)"
// @Param end_date query string false "Created on or before (YYYY-MM-DD)"
// @Success 200 {file} file "Workbook"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 403 {object} dto.APIResponse "Admin only"
// @Router /api/v1/admin/payments/orders/export [get]
func (h *PaymentAdminHandler) ExportOrders(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.ExportPaymentOrdersRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/payments/orders/export")
	defer cancel()

	filename, data, err := h.paymentFlow.ExportOrders(ctx, caller, &req)
	if err != nil {
		return h.handleFlowError(c, err, "EXPORT_ORDERS_FAILED", "Failed to export payment orders")
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(data)
}

// ReconcileTransaction queries the provider for a pending gateway transaction and applies the result
// @Summary Reconcile Transaction
// @Tags Admin Payments
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Transaction UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ReconcileTransactionResponse} "Transaction reconciled"
// @Failure 403 {object} dto.APIResponse "Admin only"
// @Failure 404 {object} dto.APIResponse "Transaction not found"
// @Failure 502 {object} dto.APIResponse "Gateway error"
// @Router /api/v1/admin/payments/transactions/{uuid}/reconcile [post]
func (h *PaymentAdminHandler) ReconcileTransaction(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/payments/transactions/:uuid/reconcile")
	defer cancel()

	result, err := h.paymentFlow.ReconcileTransaction(ctx, caller, c.Params("uuid"), h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "RECONCILE_TRANSACTION_FAILED", "Failed to reconcile transaction")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Transaction reconciled successfully", result)
}
