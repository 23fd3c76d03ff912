package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentOrderStatusTransitions(t *testing.T) {
	all := []PaymentOrderStatus{
		PaymentOrderStatusPending,
		PaymentOrderStatusPaid,
		PaymentOrderStatusCancelled,
		PaymentOrderStatusRefunded,
		PaymentOrderStatusPartialRefunded,
	}
	allowed := map[PaymentOrderStatus]map[PaymentOrderStatus]bool{
		PaymentOrderStatusPending: {PaymentOrderStatusPaid: true, PaymentOrderStatusCancelled: true},
		PaymentOrderStatusPaid:    {PaymentOrderStatusRefunded: true, PaymentOrderStatusPartialRefunded: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, PaymentOrderStatusPending.IsTerminal())
		assert.False(t, PaymentOrderStatusPaid.IsTerminal())
		assert.True(t, PaymentOrderStatusCancelled.IsTerminal())
		assert.True(t, PaymentOrderStatusRefunded.IsTerminal())
		assert.True(t, PaymentOrderStatusPartialRefunded.IsTerminal())
	})
}

func TestPaymentOrderExpiry(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	order := PaymentOrder{ExpireTime: created.Add(2 * time.Hour)}

	assert.False(t, order.IsExpiredAt(created.Add(time.Hour)))
	assert.False(t, order.IsExpiredAt(created.Add(2*time.Hour)))
	assert.True(t, order.IsExpiredAt(created.Add(2*time.Hour+time.Second)))
}

func TestUserBalanceApply(t *testing.T) {
	d := decimal.RequireFromString
	start := UserBalance{Balance: d("100.00"), FrozenBalance: d("5.00"), TotalIncome: d("100.00"), TotalExpense: d("0")}

	t.Run("income", func(t *testing.T) {
		next, err := start.Apply(BalanceTransactionTypeIncome, d("30.00"))
		require.NoError(t, err)
		assert.True(t, next.Balance.Equal(d("130.00")))
		assert.True(t, next.TotalIncome.Equal(d("130.00")))
		assert.True(t, start.Balance.Equal(d("100.00")), "receiver untouched")
	})

	t.Run("expense", func(t *testing.T) {
		next, err := start.Apply(BalanceTransactionTypeExpense, d("30.00"))
		require.NoError(t, err)
		assert.True(t, next.Balance.Equal(d("70.00")))
		assert.True(t, next.TotalExpense.Equal(d("30.00")))
	})

	t.Run("expense exactly drains", func(t *testing.T) {
		next, err := start.Apply(BalanceTransactionTypeExpense, d("100.00"))
		require.NoError(t, err)
		assert.True(t, next.Balance.IsZero())
	})

	t.Run("expense shortfall", func(t *testing.T) {
		_, err := start.Apply(BalanceTransactionTypeExpense, d("100.01"))
		assert.ErrorIs(t, err, ErrBalanceShortfall)
	})

	t.Run("freeze moves to frozen", func(t *testing.T) {
		next, err := start.Apply(BalanceTransactionTypeFreeze, d("40.00"))
		require.NoError(t, err)
		assert.True(t, next.Balance.Equal(d("60.00")))
		assert.True(t, next.FrozenBalance.Equal(d("45.00")))
	})

	t.Run("unfreeze needs frozen funds", func(t *testing.T) {
		_, err := start.Apply(BalanceTransactionTypeUnfreeze, d("6.00"))
		assert.ErrorIs(t, err, ErrBalanceShortfall)

		next, err := start.Apply(BalanceTransactionTypeUnfreeze, d("5.00"))
		require.NoError(t, err)
		assert.True(t, next.Balance.Equal(d("105.00")))
		assert.True(t, next.FrozenBalance.IsZero())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := start.Apply(BalanceTransactionType("bonus"), d("1"))
		assert.Error(t, err)
	})
}

func TestPriceConfigEffectivePrice(t *testing.T) {
	d := decimal.RequireFromString
	p := PriceConfig{Price: d("50.00")}
	assert.True(t, p.EffectivePrice().Equal(d("50.00")))

	discount := d("35.00")
	p.DiscountPrice = &discount
	assert.True(t, p.EffectivePrice().Equal(d("35.00")))
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, PaymentMethodAlipay.IsGateway())
	assert.True(t, PaymentMethodWechat.IsGateway())
	assert.False(t, PaymentMethodBalance.IsGateway())
	assert.True(t, PaymentMethodBankCard.IsValid())
	assert.False(t, PaymentMethod("cash").IsValid())
}
