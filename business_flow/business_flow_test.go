package businessflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMoney(t *testing.T) {
	d := decimal.RequireFromString

	assert.NoError(t, validateMoney(d("0.01")))
	assert.NoError(t, validateMoney(d("100")))
	assert.NoError(t, validateMoney(d("99.90")))

	for _, bad := range []string{"0", "-1", "-0.01", "1.001", "0.005"} {
		err := validateMoney(d(bad))
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestDateRange(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		from, to, err := dateRange(nil, utils.ToPtr(""))
		require.NoError(t, err)
		assert.Nil(t, from)
		assert.Nil(t, to)
	})

	t.Run("end is inclusive", func(t *testing.T) {
		from, to, err := dateRange(utils.ToPtr("2026-03-01"), utils.ToPtr("2026-03-01"))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *from)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *to)
	})

	t.Run("inverted", func(t *testing.T) {
		_, _, err := dateRange(utils.ToPtr("2026-03-05"), utils.ToPtr("2026-03-01"))
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("malformed", func(t *testing.T) {
		_, _, err := dateRange(utils.ToPtr("03/01/2026"), nil)
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})
}

func TestCallerScopeUser(t *testing.T) {
	self := uuid.New()
	other := uuid.New()

	patient := Caller{UserID: self, Role: services.RolePatient}
	got, err := patient.scopeUser(utils.ToPtr(other.String()))
	require.NoError(t, err)
	assert.Equal(t, self, *got, "non-admins never see other users")

	admin := Caller{UserID: self, Role: services.RoleAdmin}
	got, err = admin.scopeUser(utils.ToPtr(other.String()))
	require.NoError(t, err)
	assert.Equal(t, other, *got)

	got, err = admin.scopeUser(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = admin.scopeUser(utils.ToPtr("nope"))
	assert.ErrorIs(t, err, ErrInvalidFilter)

	assert.True(t, admin.CanAccess(other))
	assert.False(t, patient.CanAccess(other))
	assert.True(t, patient.CanAccess(self))
	assert.Nil(t, SystemCaller.actorID())
	assert.Equal(t, self, *admin.actorID())
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.True(t, isTimeout(fmt.Errorf("%w: %w", services.ErrGatewayUnavailable, context.DeadlineExceeded)))
	assert.True(t, isTimeout(&net.OpError{Op: "read", Err: timeoutErr{}}))
	assert.False(t, isTimeout(services.ErrGatewayRejected))
	assert.False(t, isTimeout(errors.New("boom")))
}

func TestBusinessErrorClassification(t *testing.T) {
	err := NewBusinessError("INITIATE_PAYMENT_FAILED", "Failed to initiate payment", fmt.Errorf("wrapped: %w", ErrInsufficientFunds))

	assert.Equal(t, "INITIATE_PAYMENT_FAILED", ErrorCode(err))
	assert.True(t, IsInsufficientFunds(err))
	assert.False(t, IsNotFound(err))

	assert.True(t, IsValidationError(ErrInvalidAmount))
	assert.True(t, IsValidationError(ErrInvalidConfigKey))
	assert.True(t, IsConflict(ErrConcurrentUpdate))
	assert.True(t, IsInvalidState(ErrRefundInProgress))
	assert.True(t, IsNotFound(ErrPriceConfigNotFound))
}

func TestProviderRefundID(t *testing.T) {
	assert.Nil(t, providerRefundID(nil))
	assert.Equal(t, "R1", *providerRefundID(map[string]string{"refund_id": "R1", "trade_no": "T1"}))
	assert.Equal(t, "T1", *providerRefundID(map[string]string{"trade_no": "T1"}))
}

func TestExportRow(t *testing.T) {
	appointment := uuid.New()
	paidAt := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	order := &models.PaymentOrder{
		UUID:          uuid.New(),
		OrderNo:       "ORD202602030405060001",
		UserID:        uuid.New(),
		AppointmentID: &appointment,
		OrderType:     models.OrderTypeConsultation,
		Amount:        decimal.RequireFromString("50"),
		Currency:      "CNY",
		Status:        models.PaymentOrderStatusPaid,
		PaymentMethod: utils.ToPtr(models.PaymentMethodAlipay),
		PaymentTime:   &paidAt,
		ExpireTime:    paidAt.Add(time.Hour),
		CreatedAt:     paidAt.Add(-time.Minute),
	}

	row := exportRow(order)
	require.Len(t, row, len(exportHeader))
	assert.Equal(t, "50.00", row[5])
	assert.Equal(t, "alipay", row[8])
	assert.Equal(t, "2026-02-03 04:05:06", row[9])
	assert.Equal(t, appointment.String(), row[3])
	assert.Equal(t, "", row[11])

	order.PaymentMethod = nil
	order.PaymentTime = nil
	row = exportRow(order)
	assert.Equal(t, "", row[8])
	assert.Equal(t, "", row[9])
}

func TestGatewayConfigMasking(t *testing.T) {
	now := utils.UTCNow()
	resp := toGatewayConfigResponse(models.PaymentMethodWechat, []*models.PaymentConfig{
		{ConfigKey: "mch_id", ConfigValue: "1900000109", UpdatedAt: now},
		{ConfigKey: "api_key", ConfigValue: "sealed-blob", IsEncrypted: true, UpdatedAt: now},
	})

	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "wechat", resp.PaymentMethod)
	assert.Equal(t, "api_key", resp.Entries[0].ConfigKey)
	assert.Equal(t, maskedConfigValue, resp.Entries[0].ConfigValue)
	assert.Equal(t, "1900000109", resp.Entries[1].ConfigValue)
}

func TestDefaultTradeType(t *testing.T) {
	assert.Equal(t, services.TradeTypeNative, defaultTradeType(models.PaymentMethodWechat))
	assert.Equal(t, services.TradeTypePage, defaultTradeType(models.PaymentMethodAlipay))
}
