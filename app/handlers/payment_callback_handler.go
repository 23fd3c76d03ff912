package handlers

import (
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// PaymentCallbackHandlerInterface defines the contract for gateway notification handlers
type PaymentCallbackHandlerInterface interface {
	AlipayCallback(c fiber.Ctx) error
	WechatCallback(c fiber.Ctx) error
}

// PaymentCallbackHandler receives asynchronous gateway notifications. Responses are the
// provider's own acknowledgement bodies rather than the JSON envelope.
type PaymentCallbackHandler struct {
	baseHandler
	paymentFlow businessflow.PaymentFlow
}

// NewPaymentCallbackHandler creates a new gateway notification handler
func NewPaymentCallbackHandler(paymentFlow businessflow.PaymentFlow, v *validator.Validate, logger *zap.Logger) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		baseHandler: baseHandler{validator: v, logger: logger},
		paymentFlow: paymentFlow,
	}
}

// AlipayCallback receives wallet gateway A notifications
// @Summary Alipay Notification
// @Description Signed asynchronous notification from gateway A (form encoded)
// @Tags Payment Callbacks
// @Accept x-www-form-urlencoded
// @Produce plain
// @Success 200 {string} string "success"
// @Failure 400 {string} string "failure"
// @Router /api/v1/payments/callback/alipay [post]
func (h *PaymentCallbackHandler) AlipayCallback(c fiber.Ctx) error {
	return h.handleNotification(c, models.PaymentMethodAlipay, "/api/v1/payments/callback/alipay")
}

// WechatCallback receives wallet gateway B notifications
// @Summary WeChat Pay Notification
// @Description Signed asynchronous notification from gateway B (XML)
// @Tags Payment Callbacks
// @Accept xml
// @Produce xml
// @Success 200 {string} string "SUCCESS ack"
// @Failure 400 {string} string "FAIL ack"
// @Router /api/v1/payments/callback/wechat [post]
func (h *PaymentCallbackHandler) WechatCallback(c fiber.Ctx) error {
	return h.handleNotification(c, models.PaymentMethodWechat, "/api/v1/payments/callback/wechat")
}

func (h *PaymentCallbackHandler) handleNotification(c fiber.Ctx, method models.PaymentMethod, endpoint string) error {
	// fasthttp reuses the body buffer after the handler returns
	body := append([]byte(nil), c.Body()...)

	ctx, cancel := h.createRequestContext(c, endpoint)
	defer cancel()

	err := h.paymentFlow.HandleGatewayNotification(ctx, method, body, h.metadata(c))
	if err == nil {
		return h.ack(c, method, fiber.StatusOK, true)
	}

	if m, ok := mapBusinessError(err); ok {
		h.logger.Warn("gateway notification not applied",
			zap.String("payment_method", method.String()),
			zap.String("code", m.code),
			zap.Error(err),
		)
		return h.ack(c, method, m.status, false)
	}

	h.logger.Error("gateway notification failed",
		zap.String("payment_method", method.String()),
		zap.Error(err),
	)
	return h.ack(c, method, fiber.StatusInternalServerError, false)
}

func (h *PaymentCallbackHandler) ack(c fiber.Ctx, method models.PaymentMethod, status int, success bool) error {
	contentType, body := h.paymentFlow.NotificationAck(method, success)
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(status).Send(body)
}
