package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/models"
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubPaymentFlow returns the configured result from every method the handlers call
type stubPaymentFlow struct {
	businessflow.PaymentFlow

	err          error
	order        *dto.PaymentOrderResponse
	initiated    *dto.InitiatePaymentResponse
	lastCaller   businessflow.Caller
	lastOrderRef string
	lastBody     []byte
}

func (s *stubPaymentFlow) CreateOrder(ctx context.Context, caller businessflow.Caller, req *dto.CreatePaymentOrderRequest, metadata *businessflow.ClientMetadata) (*dto.PaymentOrderResponse, error) {
	s.lastCaller = caller
	return s.order, s.err
}

func (s *stubPaymentFlow) GetOrder(ctx context.Context, caller businessflow.Caller, orderUUID string) (*dto.PaymentOrderResponse, error) {
	s.lastCaller = caller
	s.lastOrderRef = orderUUID
	return s.order, s.err
}

func (s *stubPaymentFlow) InitiatePayment(ctx context.Context, caller businessflow.Caller, orderUUID string, req *dto.InitiatePaymentRequest, metadata *businessflow.ClientMetadata) (*dto.InitiatePaymentResponse, error) {
	s.lastCaller = caller
	s.lastOrderRef = orderUUID
	return s.initiated, s.err
}

func (s *stubPaymentFlow) HandleGatewayNotification(ctx context.Context, method models.PaymentMethod, body []byte, metadata *businessflow.ClientMetadata) error {
	s.lastBody = body
	return s.err
}

func (s *stubPaymentFlow) NotificationAck(method models.PaymentMethod, success bool) (string, []byte) {
	if success {
		return "application/xml", []byte("<xml><return_code>SUCCESS</return_code></xml>")
	}
	return "application/xml", []byte("<xml><return_code>FAIL</return_code></xml>")
}

func withCaller(userID uuid.UUID, role string) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("role", role)
		return c.Next()
	}
}

func decodeEnvelope(t *testing.T, resp *http.Response) dto.APIResponse {
	t.Helper()
	var out dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCodeOf(t *testing.T, env dto.APIResponse) string {
	t.Helper()
	detail, ok := env.Error.(map[string]any)
	require.True(t, ok, "error detail missing")
	code, _ := detail["code"].(string)
	return code
}

func TestNewValidatorDecimal(t *testing.T) {
	v := NewValidator()

	ok := dto.CreateRefundRequest{OrderUUID: uuid.NewString(), RefundAmount: decimal.RequireFromString("10.50"), RefundReason: "no show"}
	assert.NoError(t, v.Struct(&ok))

	zero := ok
	zero.RefundAmount = decimal.Zero
	assert.Error(t, v.Struct(&zero))

	negative := ok
	negative.RefundAmount = decimal.RequireFromString("-1")
	assert.Error(t, v.Struct(&negative))

	// amount is optional on orders
	order := dto.CreatePaymentOrderRequest{OrderType: "consultation"}
	assert.NoError(t, v.Struct(&order))

	bad := decimal.RequireFromString("0")
	order.Amount = &bad
	assert.Error(t, v.Struct(&order))
}

func TestMapBusinessError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{businessflow.ErrOrderNotFound, fiber.StatusNotFound, "ORDER_NOT_FOUND"},
		{businessflow.ErrPriceConfigNotFound, fiber.StatusNotFound, "PRICE_CONFIG_NOT_FOUND"},
		{businessflow.ErrOrderExpired, fiber.StatusGone, "ORDER_EXPIRED"},
		{businessflow.ErrRefundInProgress, fiber.StatusConflict, "REFUND_IN_PROGRESS"},
		{businessflow.ErrConcurrentUpdate, fiber.StatusConflict, "CONCURRENT_UPDATE"},
		{businessflow.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
		{businessflow.ErrInsufficientFunds, fiber.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
		{businessflow.ErrRefundAmountExceedsOrder, fiber.StatusBadRequest, "REFUND_AMOUNT_EXCEEDS_ORDER"},
		{businessflow.ErrSignatureVerificationFailed, fiber.StatusBadRequest, "SIGNATURE_VERIFICATION_FAILED"},
		{businessflow.ErrGatewayNotConfigured, fiber.StatusBadGateway, "GATEWAY_NOT_CONFIGURED"},
		{businessflow.ErrExternalGateway, fiber.StatusBadGateway, "EXTERNAL_GATEWAY_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			wrapped := businessflow.NewBusinessError("SOME_FLOW_FAILED", "wrapped", tc.err)
			m, ok := mapBusinessError(wrapped)
			require.True(t, ok)
			assert.Equal(t, tc.status, m.status)
			assert.Equal(t, tc.code, m.code)
		})
	}

	_, ok := mapBusinessError(errors.New("connection refused"))
	assert.False(t, ok)
}

func newPaymentApp(flow businessflow.PaymentFlow, userID uuid.UUID, role string) *fiber.App {
	h := NewPaymentHandler(flow, NewValidator(), zap.NewNop())
	app := fiber.New()
	if userID != uuid.Nil {
		app.Use(withCaller(userID, role))
	}
	app.Post("/orders", h.CreateOrder)
	app.Get("/orders/:uuid", h.GetOrder)
	app.Post("/orders/:uuid/pay", h.InitiatePayment)
	return app
}

func TestPaymentHandler(t *testing.T) {
	userID := uuid.New()

	t.Run("creates an order for the caller", func(t *testing.T) {
		flow := &stubPaymentFlow{order: &dto.PaymentOrderResponse{OrderNo: "ORD202601010000000001", Status: "pending"}}
		app := newPaymentApp(flow, userID, services.RolePatient)

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"order_type":"consultation","amount":"50.00"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.True(t, env.Success)
		assert.Equal(t, userID, flow.lastCaller.UserID)
		assert.Equal(t, services.RolePatient, flow.lastCaller.Role)
	})

	t.Run("rejects an invalid body before reaching the flow", func(t *testing.T) {
		flow := &stubPaymentFlow{}
		app := newPaymentApp(flow, userID, services.RolePatient)

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"order_type":"surgery"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, decodeEnvelope(t, resp)))
		assert.Equal(t, uuid.Nil, flow.lastCaller.UserID)
	})

	t.Run("requires an authenticated caller", func(t *testing.T) {
		app := newPaymentApp(&stubPaymentFlow{}, uuid.Nil, "")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/orders/"+uuid.NewString(), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("maps business errors to status codes", func(t *testing.T) {
		flow := &stubPaymentFlow{err: businessflow.NewBusinessError("GET_ORDER_FAILED", "Order not found", businessflow.ErrOrderNotFound)}
		app := newPaymentApp(flow, userID, services.RolePatient)

		orderUUID := uuid.NewString()
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/orders/"+orderUUID, nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "ORDER_NOT_FOUND", errorCodeOf(t, decodeEnvelope(t, resp)))
		assert.Equal(t, orderUUID, flow.lastOrderRef)
	})

	t.Run("insufficient balance is payment required", func(t *testing.T) {
		flow := &stubPaymentFlow{err: businessflow.NewBusinessError("INITIATE_PAYMENT_FAILED", "Insufficient balance", businessflow.ErrInsufficientFunds)}
		app := newPaymentApp(flow, userID, services.RolePatient)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+uuid.NewString()+"/pay", strings.NewReader(`{"payment_method":"balance"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	})

	t.Run("unknown errors are hidden behind a 500", func(t *testing.T) {
		flow := &stubPaymentFlow{err: errors.New("pq: connection reset")}
		app := newPaymentApp(flow, userID, services.RolePatient)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/orders/"+uuid.NewString(), nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(body), "connection reset")
	})
}

func TestPaymentCallbackHandler(t *testing.T) {
	newApp := func(flow businessflow.PaymentFlow) *fiber.App {
		h := NewPaymentCallbackHandler(flow, NewValidator(), zap.NewNop())
		app := fiber.New()
		app.Post("/callback/wechat", h.WechatCallback)
		return app
	}
	notification := "<xml><out_trade_no>ORD202601010000000001</out_trade_no></xml>"

	t.Run("acknowledges an applied notification", func(t *testing.T) {
		flow := &stubPaymentFlow{}
		resp, err := newApp(flow).Test(httptest.NewRequest(http.MethodPost, "/callback/wechat", strings.NewReader(notification)))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "SUCCESS")
		assert.Equal(t, notification, string(flow.lastBody))
	})

	t.Run("forged notification gets the failure ack", func(t *testing.T) {
		flow := &stubPaymentFlow{err: businessflow.NewBusinessError("PAYMENT_CALLBACK_FAILED", "Notification could not be verified", businessflow.ErrSignatureVerificationFailed)}
		resp, err := newApp(flow).Test(httptest.NewRequest(http.MethodPost, "/callback/wechat", strings.NewReader(notification)))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "FAIL")
	})
}
