package businessflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amirphl/medipay/app/services"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/config"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	testingutil "github.com/amirphl/medipay/testing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway is a scripted wallet gateway
type fakeGateway struct {
	method models.PaymentMethod

	mu          sync.Mutex
	createErr   error
	createFail  bool
	queryStatus services.CallbackStatus
	refundErr   error
	created     []*services.GatewayOrderRequest
	refunds     []*services.GatewayRefundRequest
}

func newFakeGateway(method models.PaymentMethod) *fakeGateway {
	return &fakeGateway{method: method, queryStatus: services.CallbackStatusPending}
}

func (g *fakeGateway) Method() models.PaymentMethod { return g.method }

func (g *fakeGateway) CreateOrder(ctx context.Context, creds services.GatewayCredentials, req *services.GatewayOrderRequest) (*services.GatewayOrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.createFail {
		return &services.GatewayOrderResult{Success: false, Code: "ORDERPAID", Message: "order already paid"}, nil
	}
	return &services.GatewayOrderResult{
		Success:      true,
		PrepayID:     "prepay-" + req.OrderNo,
		QRCode:       "weixin://wxpay/bizpayurl?pr=" + req.OrderNo,
		RequestData:  map[string]string{"out_trade_no": req.OrderNo},
		ResponseData: map[string]string{"return_code": "SUCCESS"},
	}, nil
}

func (g *fakeGateway) QueryOrder(ctx context.Context, creds services.GatewayCredentials, orderNo string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]string{
		"out_trade_no": orderNo,
		"trade_no":     "provider-" + orderNo,
		"status":       string(g.queryStatus),
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, creds services.GatewayCredentials, req *services.GatewayRefundRequest) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return map[string]string{"refund_id": "provider-refund-" + req.RefundNo}, nil
}

func (g *fakeGateway) VerifyNotification(creds services.GatewayCredentials, params map[string]string) (bool, error) {
	return params["sign"] == "valid", nil
}

func (g *fakeGateway) DecodeNotification(body []byte) (map[string]string, error) {
	return services.DecodeWechatXML(body)
}

func (g *fakeGateway) ParseNotification(params map[string]string) (*services.PaymentCallbackData, error) {
	amount, err := decimal.NewFromString(params["amount"])
	if err != nil {
		return nil, err
	}
	return &services.PaymentCallbackData{
		OrderNo:               params["out_trade_no"],
		ExternalTransactionID: params["transaction_id"],
		Amount:                amount,
		Status:                services.CallbackStatus(params["status"]),
		Raw:                   params,
	}, nil
}

func (g *fakeGateway) ParseQueryResult(raw map[string]string) (*services.PaymentCallbackData, error) {
	return &services.PaymentCallbackData{
		OrderNo:               raw["out_trade_no"],
		ExternalTransactionID: raw["trade_no"],
		Status:                services.CallbackStatus(raw["status"]),
		Raw:                   raw,
	}, nil
}

func (g *fakeGateway) NotificationAck(success bool) (string, []byte) {
	if success {
		return "text/plain", []byte("ok")
	}
	return "text/plain", []byte("fail")
}

// recordingScheduler remembers which transactions were queued for reconciliation
type recordingScheduler struct {
	mu     sync.Mutex
	queued []uuid.UUID
}

func (s *recordingScheduler) ScheduleReconcile(ctx context.Context, transactionUUID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, transactionUUID)
	return nil
}

func (s *recordingScheduler) last() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) == 0 {
		return uuid.Nil
	}
	return s.queued[len(s.queued)-1]
}

type flowHarness struct {
	db         *testingutil.TestDB
	fixtures   *testingutil.TestFixtures
	wechat     *fakeGateway
	scheduler  *recordingScheduler
	ledger     businessflow.BalanceLedger
	settings   businessflow.PaymentSettingsFlow
	payments   businessflow.PaymentFlow
	refunds    businessflow.RefundFlow
	balances   businessflow.BalanceFlow
	admin      businessflow.Caller
	paymentCfg config.PaymentConfig
}

func newFlowHarness(t *testing.T, tdb *testingutil.TestDB) *flowHarness {
	t.Helper()
	logger := zap.NewNop()

	orderRepo := repository.NewPaymentOrderRepository(tdb.DB)
	txnRepo := repository.NewPaymentTransactionRepository(tdb.DB)
	refundRepo := repository.NewRefundRecordRepository(tdb.DB)
	balanceRepo := repository.NewUserBalanceRepository(tdb.DB)
	balanceTxRepo := repository.NewBalanceTransactionRepository(tdb.DB)
	appointmentRepo := repository.NewAppointmentRepository(tdb.DB)
	auditRepo := repository.NewAuditLogRepository(tdb.DB)
	priceRepo := repository.NewPriceConfigRepository(tdb.DB)
	configRepo := repository.NewPaymentConfigRepository(tdb.DB)

	cipher, err := services.NewConfigCipher("")
	require.NoError(t, err)

	wechat := newFakeGateway(models.PaymentMethodWechat)
	scheduler := &recordingScheduler{}
	paymentCfg := config.PaymentConfig{GatewayRefundEnabled: true}
	gateways := []services.PaymentGateway{wechat}

	ledger := businessflow.NewBalanceLedger(balanceRepo, balanceTxRepo)
	settings := businessflow.NewPaymentSettingsFlow(priceRepo, configRepo, auditRepo, cipher,
		map[models.PaymentMethod]map[string]string{
			models.PaymentMethodWechat: {"app_id": "wx-test", "mch_id": "1900000109", "api_key": "secret"},
		}, nil, "test:", 0, logger)

	return &flowHarness{
		db:        tdb,
		fixtures:  testingutil.NewTestFixtures(tdb),
		wechat:    wechat,
		scheduler: scheduler,
		ledger:    ledger,
		settings:  settings,
		payments: businessflow.NewPaymentFlow(orderRepo, txnRepo, appointmentRepo, auditRepo, ledger, settings, settings,
			gateways, scheduler, nil, tdb.DB, paymentCfg, config.CacheConfig{}, logger),
		refunds:    businessflow.NewRefundFlow(orderRepo, txnRepo, refundRepo, auditRepo, ledger, settings, gateways, tdb.DB, paymentCfg, logger),
		balances:   businessflow.NewBalanceFlow(ledger, balanceTxRepo, auditRepo, tdb.DB, logger),
		admin:      businessflow.Caller{UserID: uuid.New(), Role: services.RoleAdmin},
		paymentCfg: paymentCfg,
	}
}

func newPatient() businessflow.Caller {
	return businessflow.Caller{UserID: uuid.New(), Role: services.RolePatient}
}

// withFlows runs fn against a fresh database, skipping when PostgreSQL is not reachable
func withFlows(t *testing.T, fn func(h *flowHarness)) {
	t.Helper()
	err := testingutil.TestWithDB(func(tdb *testingutil.TestDB) error {
		fn(newFlowHarness(t, tdb))
		return nil
	})
	if errors.Is(err, testingutil.ErrDatabaseUnavailable) {
		t.Skipf("skipping database test: %v", err)
	}
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
