package handlers

import (
	"github.com/amirphl/medipay/app/dto"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// BalanceHandlerInterface defines the contract for wallet handlers
type BalanceHandlerInterface interface {
	GetBalance(c fiber.Ctx) error
	ListTransactions(c fiber.Ctx) error
	AdjustBalance(c fiber.Ctx) error
}

// BalanceHandler handles wallet HTTP requests
type BalanceHandler struct {
	baseHandler
	balanceFlow businessflow.BalanceFlow
}

// NewBalanceHandler creates a new wallet handler
func NewBalanceHandler(balanceFlow businessflow.BalanceFlow, v *validator.Validate, logger *zap.Logger) *BalanceHandler {
	return &BalanceHandler{
		baseHandler: baseHandler{validator: v, logger: logger},
		balanceFlow: balanceFlow,
	}
}

// GetBalance returns the caller's wallet
// @Summary Get Balance
// @Description Return the wallet of the caller, creating an empty one on first access. Admins may pass user_id.
// @Tags Balance
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Wallet owner (admin only)"
// @Success 200 {object} dto.APIResponse{data=dto.UserBalanceResponse} "Balance retrieved"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/payments/balance [get]
func (h *BalanceHandler) GetBalance(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var userID *string
	if v := c.Query("user_id"); v != "" {
		userID = &v
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/balance")
	defer cancel()

	result, err := h.balanceFlow.GetBalance(ctx, caller, userID)
	if err != nil {
		return h.handleFlowError(c, err, "GET_BALANCE_FAILED", "Failed to retrieve balance")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Balance retrieved successfully", result)
}

// ListTransactions pages through wallet history
// @Summary List Balance Transactions
// @Tags Balance
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Wallet owner (admin only)"
// @Param transaction_type query string false "income|expense|freeze|unfreeze"
// @Param page query int false "Page number (default: 1)" minimum(1)
// @Param page_size query int false "Items per page (default: 20, max: 100)" minimum(1) maximum(100)
// @Success 200 {object} dto.APIResponse{data=dto.ListBalanceTransactionsResponse} "History retrieved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/payments/balance/transactions [get]
func (h *BalanceHandler) ListTransactions(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.ListBalanceTransactionsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/payments/balance/transactions")
	defer cancel()

	result, err := h.balanceFlow.ListTransactions(ctx, caller, &req)
	if err != nil {
		return h.handleFlowError(c, err, "LIST_BALANCE_TRANSACTIONS_FAILED", "Failed to list balance transactions")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Balance transactions retrieved successfully", result)
}

// AdjustBalance applies a manual ledger correction
// @Summary Adjust Balance
// @Description Apply one income, expense, freeze or unfreeze entry to a wallet. Admin only.
// @Tags Admin Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.AdjustBalanceRequest true "Adjustment"
// @Success 200 {object} dto.APIResponse{data=dto.AdjustBalanceResponse} "Balance adjusted"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 402 {object} dto.APIResponse "Insufficient balance"
// @Failure 403 {object} dto.APIResponse "Admin only"
// @Router /api/v1/admin/payments/balances/adjust [post]
func (h *BalanceHandler) AdjustBalance(c fiber.Ctx) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.AdjustBalanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/payments/balances/adjust")
	defer cancel()

	result, err := h.balanceFlow.AdjustBalance(ctx, caller, &req, h.metadata(c))
	if err != nil {
		return h.handleFlowError(c, err, "ADJUST_BALANCE_FAILED", "Failed to adjust balance")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Balance adjusted successfully", result)
}
