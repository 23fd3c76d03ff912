package handlers

import (
	"github.com/amirphl/medipay/app/dto"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// RefundHandlerInterface defines the contract for refund handlers
type RefundHandlerInterface interface {
	CreateRefund(c fiber.Ctx) error
	GetRefund(c fiber.Ctx) error
	ReviewRefund(c fiber.Ctx) error
}

// RefundHandler handles refund HTTP requests
type RefundHandler struct {
	baseHandler
	refundFlow businessflow.RefundFlow
}

// NewRefundHandler creates a new refund handler
func NewRefundHandler(refundFlow businessflow.RefundFlow, v *validator.Validate, logger *zap.Logger) *RefundHandler {
	return &RefundHandler{
		baseHandler: baseHandler{validator: v, logger: logger},
		refundFlow:  refundFlow,
	}
}

// CreateRefund requests a refund against a paid order
// @Summary Request Refund
// @Description Request a full or partial refund. Only one refund per order may be open at a time.
// @Tags Refunds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateRefundRequest true "Refund data"
// @Success 201 {object} dto.APIResponse{data=dto.RefundResponse} "Refund requested"
// @Failure 400 {object} dto.APIResponse "Validation error or amount exceeds refundable amount"
// @Failure 403 {object} dto.APIResponse "Not the owner"
// @Failure 404 {object} dto.APIResponse "Order not found"
// @Failure 409 {object} dto.APIResponse "Order not refundable or refund already open"
// @Router /api/v1/payments/refunds [post]
func (h *RefundHandler) CreateRefund(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.CreateRefundRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/refunds")
	defer cancel()

	result, err := h.refundFlow.CreateRefund(ctx, caller, &req, h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "CREATE_REFUND_FAILED", "Failed to request refund")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Refund requested successfully", result)
}

// GetRefund returns one refund record
// @Summary Get Refund
// @Tags Refunds
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Refund UUID"
// @Success 200 {object} dto.APIResponse{data=dto.RefundResponse} "Refund retrieved"
// @Failure 403 {object} dto.APIResponse "Not the owner"
// @Failure 404 {object} dto.APIResponse "Refund not found"
// @Router /api/v1/payments/refunds/{uuid} [get]
func (h *RefundHandler) GetRefund(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/refunds/:uuid")
	defer cancel()

	result, err := h.refundFlow.GetRefund(ctx, caller, c.Params("uuid"))
	if err != nil {
		return h.handleFlowError(c, err, "GET_REFUND_FAILED", "Failed to retrieve refund")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Refund retrieved successfully", result)
}

// ReviewRefund approves or rejects a pending refund
// @Summary Review Refund
// @Description Approve (and execute) or reject a pending refund. Admin only.
// @Tags Refunds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Refund UUID"
// @Param request body dto.ReviewRefundRequest true "Review decision"
// @Success 200 {object} dto.APIResponse{data=dto.RefundResponse} "Refund reviewed"
// @Failure 403 {object} dto.APIResponse "Admin only"
// @Failure 404 {object} dto.APIResponse "Refund not found"
// @Failure 409 {object} dto.APIResponse "Refund is not pending"
// @Failure 502 {object} dto.APIResponse "Gateway refund failed"
// @Router /api/v1/payments/refunds/{uuid}/review [post]
func (h *RefundHandler) ReviewRefund(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.ReviewRefundRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/refunds/:uuid/review")
	defer cancel()

	result, err := h.refundFlow.ReviewRefund(ctx, caller, c.Params("uuid"), &req, h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "REVIEW_REFUND_FAILED", "Failed to review refund")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Refund reviewed successfully", result)
}
