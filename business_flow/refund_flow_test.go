package businessflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundFlow(t *testing.T) {
	withFlows(t, func(h *flowHarness) {
		ctx := context.Background()

		paidWithBalance := func(t *testing.T, patient businessflow.Caller, wallet, amount string) *models.PaymentOrder {
			t.Helper()
			_, err := h.fixtures.CreateTestBalance(patient.UserID, wallet)
			require.NoError(t, err)
			order, err := h.fixtures.CreateTestOrder(patient.UserID, amount, nil)
			require.NoError(t, err)
			_, err = h.payments.InitiatePayment(ctx, patient, order.UUID.String(), &dto.InitiatePaymentRequest{PaymentMethod: "balance"}, nil)
			require.NoError(t, err)
			return order
		}

		approve := &dto.ReviewRefundRequest{Approved: utils.ToPtr(true), ReviewNotes: utils.ToPtr("ok")}
		reject := &dto.ReviewRefundRequest{Approved: utils.ToPtr(false), ReviewNotes: utils.ToPtr("no")}

		t.Run("PartialBalanceRefund", func(t *testing.T) {
			patient := newPatient()
			order := paidWithBalance(t, patient, "100.00", "50.00")

			refund, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("20.00"),
				RefundReason: "doctor unavailable",
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "pending", refund.Status)

			_, err = h.refunds.ReviewRefund(ctx, patient, refund.UUID, approve, nil)
			assert.True(t, businessflow.IsForbidden(err))

			reviewed, err := h.refunds.ReviewRefund(ctx, h.admin, refund.UUID, approve, nil)
			require.NoError(t, err)
			assert.Equal(t, "success", reviewed.Status)
			assert.Equal(t, h.admin.UserID.String(), utils.Deref(reviewed.ReviewedBy))
			assert.NotNil(t, reviewed.CompletedAt)

			updated, err := h.fixtures.ReloadOrder(order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentOrderStatusPartialRefunded, updated.Status)

			balance, err := h.fixtures.BalanceOf(patient.UserID)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(dec("70.00")))
			assert.True(t, balance.TotalIncome.Equal(dec("120.00")))

			txns, err := h.fixtures.TransactionsOf(order.ID)
			require.NoError(t, err)
			require.Len(t, txns, 2)
			assert.Equal(t, models.PaymentTransactionTypeRefund, txns[1].TransactionType)
			assert.True(t, txns[1].Amount.Equal(dec("20.00")))

			_, err = h.refunds.ReviewRefund(ctx, h.admin, refund.UUID, approve, nil)
			assert.True(t, businessflow.IsInvalidRefundState(err))
		})

		t.Run("FullRefund", func(t *testing.T) {
			patient := newPatient()
			order := paidWithBalance(t, patient, "50.00", "50.00")

			refund, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("50.00"),
				RefundReason: "cancelled visit",
			}, nil)
			require.NoError(t, err)
			_, err = h.refunds.ReviewRefund(ctx, h.admin, refund.UUID, approve, nil)
			require.NoError(t, err)

			updated, err := h.fixtures.ReloadOrder(order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentOrderStatusRefunded, updated.Status)

			balance, err := h.fixtures.BalanceOf(patient.UserID)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(dec("50.00")))

			_, err = h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("1.00"),
				RefundReason: "again",
			}, nil)
			assert.True(t, businessflow.IsInvalidOrderState(err))
		})

		t.Run("Bounds", func(t *testing.T) {
			patient := newPatient()
			order := paidWithBalance(t, patient, "50.00", "30.00")

			_, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("30.01"),
				RefundReason: "too much",
			}, nil)
			assert.True(t, businessflow.IsRefundAmountExceedsOrder(err))

			_, err = h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("0"),
				RefundReason: "nothing",
			}, nil)
			assert.True(t, businessflow.IsInvalidAmount(err))

			_, err = h.refunds.CreateRefund(ctx, newPatient(), &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("1.00"),
				RefundReason: "not mine",
			}, nil)
			assert.True(t, businessflow.IsForbidden(err))

			pending, err := h.fixtures.CreateTestOrder(patient.UserID, "5.00", nil)
			require.NoError(t, err)
			_, err = h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    pending.UUID.String(),
				RefundAmount: dec("1.00"),
				RefundReason: "unpaid",
			}, nil)
			assert.True(t, businessflow.IsInvalidOrderState(err))
		})

		t.Run("RefundedTotalIsBoundedAtApproval", func(t *testing.T) {
			patient := newPatient()
			order := paidWithBalance(t, patient, "100.00", "50.00")

			first, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("30.00"),
				RefundReason: "first half",
			}, nil)
			require.NoError(t, err)
			_, err = h.refunds.ReviewRefund(ctx, h.admin, first.UUID, approve, nil)
			require.NoError(t, err)

			// a partially refunded order is closed to further refunds
			_, err = h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("30.00"),
				RefundReason: "second half",
			}, nil)
			assert.True(t, businessflow.IsInvalidOrderState(err))

			// a refund settled outside the flow still counts against a paid order
			other, err := h.fixtures.CreateTestOrder(patient.UserID, "50.00", nil)
			require.NoError(t, err)
			_, err = h.payments.InitiatePayment(ctx, patient, other.UUID.String(), &dto.InitiatePaymentRequest{PaymentMethod: "balance"}, nil)
			require.NoError(t, err)
			txns, err := h.fixtures.TransactionsOf(other.ID)
			require.NoError(t, err)
			require.Len(t, txns, 1)
			settled := &models.RefundRecord{
				RefundNo:      utils.NewSerialNumber(utils.RefundNumberPrefix, utils.UTCNow()),
				OrderID:       other.ID,
				TransactionID: txns[0].ID,
				UserID:        patient.UserID,
				RequestedBy:   patient.UserID,
				RefundAmount:  dec("30.00"),
				RefundReason:  "settled by support",
				Status:        models.RefundStatusSuccess,
			}
			require.NoError(t, h.db.DB.Create(settled).Error)
			before, err := h.fixtures.BalanceOf(patient.UserID)
			require.NoError(t, err)

			second, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    other.UUID.String(),
				RefundAmount: dec("30.00"),
				RefundReason: "second half",
			}, nil)
			require.NoError(t, err)
			_, err = h.refunds.ReviewRefund(ctx, h.admin, second.UUID, approve, nil)
			assert.True(t, businessflow.IsRefundAmountExceedsOrder(err))

			untouched, err := h.refunds.GetRefund(ctx, patient, second.UUID)
			require.NoError(t, err)
			assert.Equal(t, "pending", untouched.Status)

			reloaded, err := h.fixtures.ReloadOrder(other.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentOrderStatusPaid, reloaded.Status)

			after, err := h.fixtures.BalanceOf(patient.UserID)
			require.NoError(t, err)
			assert.True(t, before.Balance.Equal(after.Balance))

			txns, err = h.fixtures.TransactionsOf(other.ID)
			require.NoError(t, err)
			assert.Len(t, txns, 1)
		})

		t.Run("OneOpenRefundPerOrder", func(t *testing.T) {
			patient := newPatient()
			order := paidWithBalance(t, patient, "50.00", "40.00")

			first, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("10.00"),
				RefundReason: "first",
			}, nil)
			require.NoError(t, err)

			_, err = h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("10.00"),
				RefundReason: "second",
			}, nil)
			assert.True(t, businessflow.IsRefundInProgress(err))

			rejected, err := h.refunds.ReviewRefund(ctx, h.admin, first.UUID, reject, nil)
			require.NoError(t, err)
			assert.Equal(t, "cancelled", rejected.Status)

			again, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("10.00"),
				RefundReason: "second try",
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "pending", again.Status)

			got, err := h.refunds.GetRefund(ctx, patient, again.UUID)
			require.NoError(t, err)
			assert.Equal(t, order.OrderNo, got.OrderNo)

			_, err = h.refunds.GetRefund(ctx, newPatient(), again.UUID)
			assert.True(t, businessflow.IsForbidden(err))
		})

		t.Run("GatewayRefund", func(t *testing.T) {
			patient := newPatient()
			order, err := h.fixtures.CreateTestOrder(patient.UserID, "80.00", nil)
			require.NoError(t, err)
			_, err = h.payments.InitiatePayment(ctx, patient, order.UUID.String(), &dto.InitiatePaymentRequest{PaymentMethod: "wechat"}, nil)
			require.NoError(t, err)
			require.NoError(t, h.payments.HandlePaymentCallback(ctx, models.PaymentMethodWechat, &services.PaymentCallbackData{
				OrderNo:               order.OrderNo,
				ExternalTransactionID: "4200005555",
				Amount:                dec("80.00"),
				Status:                services.CallbackStatusSuccess,
			}, nil))

			refund, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("80.00"),
				RefundReason: "duplicate booking",
			}, nil)
			require.NoError(t, err)

			reviewed, err := h.refunds.ReviewRefund(ctx, h.admin, refund.UUID, approve, nil)
			require.NoError(t, err)
			assert.Equal(t, "success", reviewed.Status)
			assert.Equal(t, "provider-refund-"+refund.RefundNo, utils.Deref(reviewed.ExternalRefundID))

			require.NotEmpty(t, h.wechat.refunds)
			sent := h.wechat.refunds[len(h.wechat.refunds)-1]
			assert.Equal(t, "4200005555", sent.TransactionID)
			assert.True(t, sent.TotalAmount.Equal(dec("80.00")))

			updated, err := h.fixtures.ReloadOrder(order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentOrderStatusRefunded, updated.Status)
		})

		t.Run("GatewayRefundFailure", func(t *testing.T) {
			patient := newPatient()
			order, err := h.fixtures.CreateTestOrder(patient.UserID, "25.00", nil)
			require.NoError(t, err)
			_, err = h.payments.InitiatePayment(ctx, patient, order.UUID.String(), &dto.InitiatePaymentRequest{PaymentMethod: "wechat"}, nil)
			require.NoError(t, err)
			require.NoError(t, h.payments.HandlePaymentCallback(ctx, models.PaymentMethodWechat, &services.PaymentCallbackData{
				OrderNo: order.OrderNo,
				Amount:  dec("25.00"),
				Status:  services.CallbackStatusSuccess,
			}, nil))

			refund, err := h.refunds.CreateRefund(ctx, patient, &dto.CreateRefundRequest{
				OrderUUID:    order.UUID.String(),
				RefundAmount: dec("5.00"),
				RefundReason: "partial",
			}, nil)
			require.NoError(t, err)

			h.wechat.refundErr = errors.New("NOTENOUGH")
			_, err = h.refunds.ReviewRefund(ctx, h.admin, refund.UUID, approve, nil)
			h.wechat.refundErr = nil
			assert.True(t, businessflow.IsExternalGateway(err))

			got, err := h.refunds.GetRefund(ctx, h.admin, refund.UUID)
			require.NoError(t, err)
			assert.Equal(t, "failed", got.Status)
			assert.NotNil(t, got.FailureReason)

			paid, err := h.fixtures.ReloadOrder(order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentOrderStatusPaid, paid.Status)
		})
	})
}

func TestBalanceLedger(t *testing.T) {
	withFlows(t, func(h *flowHarness) {
		ctx := context.Background()

		t.Run("RequiresTransaction", func(t *testing.T) {
			_, _, err := h.ledger.Mutate(ctx, businessflow.LedgerEntry{
				UserID: newPatient().UserID,
				Type:   models.BalanceTransactionTypeIncome,
				Amount: dec("1"),
			})
			assert.ErrorIs(t, err, businessflow.ErrLedgerOutsideTransaction)
		})

		t.Run("RejectsInvalidEntries", func(t *testing.T) {
			err := repository.WithTransaction(ctx, h.db.DB, func(txCtx context.Context) error {
				_, _, err := h.ledger.Mutate(txCtx, businessflow.LedgerEntry{
					UserID: newPatient().UserID,
					Type:   models.BalanceTransactionType("bonus"),
					Amount: dec("1"),
				})
				return err
			})
			assert.ErrorIs(t, err, businessflow.ErrInvalidLedgerOperation)

			err = repository.WithTransaction(ctx, h.db.DB, func(txCtx context.Context) error {
				_, _, err := h.ledger.Mutate(txCtx, businessflow.LedgerEntry{
					UserID: newPatient().UserID,
					Type:   models.BalanceTransactionTypeIncome,
					Amount: dec("-1"),
				})
				return err
			})
			assert.ErrorIs(t, err, businessflow.ErrInvalidAmount)
		})

		t.Run("HistoryReconcilesWithWallet", func(t *testing.T) {
			user := newPatient().UserID
			steps := []businessflow.LedgerEntry{
				{UserID: user, Type: models.BalanceTransactionTypeIncome, Amount: dec("100.00")},
				{UserID: user, Type: models.BalanceTransactionTypeExpense, Amount: dec("30.50")},
				{UserID: user, Type: models.BalanceTransactionTypeFreeze, Amount: dec("20.00")},
				{UserID: user, Type: models.BalanceTransactionTypeUnfreeze, Amount: dec("5.00")},
				{UserID: user, Type: models.BalanceTransactionTypeIncome, Amount: dec("0.50")},
			}
			for _, step := range steps {
				err := repository.WithTransaction(ctx, h.db.DB, func(txCtx context.Context) error {
					_, _, err := h.ledger.Mutate(txCtx, step)
					return err
				})
				require.NoError(t, err, step.Type)
			}

			balance, err := h.ledger.GetBalance(ctx, user)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(dec("55.00")), balance.Balance.String())
			assert.True(t, balance.FrozenBalance.Equal(dec("15.00")))
			assert.True(t, balance.TotalIncome.Equal(dec("100.50")))
			assert.True(t, balance.TotalExpense.Equal(dec("30.50")))
			// available plus frozen equals everything that came in minus everything spent
			assert.True(t, balance.Balance.Add(balance.FrozenBalance).Equal(balance.TotalIncome.Sub(balance.TotalExpense)))

			history, err := h.balances.ListTransactions(ctx, h.admin, &dto.ListBalanceTransactionsRequest{UserID: utils.ToPtr(user.String())})
			require.NoError(t, err)
			require.Len(t, history.Items, len(steps))
			for i := 0; i < len(history.Items)-1; i++ {
				newer, older := history.Items[i], history.Items[i+1]
				assert.True(t, newer.BalanceBefore.Equal(older.BalanceAfter), "entries chain")
			}
			assert.True(t, history.Items[0].BalanceAfter.Equal(balance.Balance))
		})

		t.Run("FailedStepRollsBack", func(t *testing.T) {
			user := newPatient().UserID
			_, err := h.fixtures.CreateTestBalance(user, "10.00")
			require.NoError(t, err)

			err = repository.WithTransaction(ctx, h.db.DB, func(txCtx context.Context) error {
				if _, _, err := h.ledger.Mutate(txCtx, businessflow.LedgerEntry{UserID: user, Type: models.BalanceTransactionTypeIncome, Amount: dec("5.00")}); err != nil {
					return err
				}
				_, _, err := h.ledger.Mutate(txCtx, businessflow.LedgerEntry{UserID: user, Type: models.BalanceTransactionTypeExpense, Amount: dec("100.00")})
				return err
			})
			assert.ErrorIs(t, err, businessflow.ErrInsufficientFunds)

			balance, err := h.fixtures.BalanceOf(user)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(dec("10.00")))
		})
	})
}

func TestBalanceFlow(t *testing.T) {
	withFlows(t, func(h *flowHarness) {
		ctx := context.Background()

		t.Run("FirstReadCreatesEmptyWallet", func(t *testing.T) {
			patient := newPatient()
			balance, err := h.balances.GetBalance(ctx, patient, nil)
			require.NoError(t, err)
			assert.True(t, balance.Balance.IsZero())
			assert.Equal(t, patient.UserID.String(), balance.UserID)
		})

		t.Run("AdjustIsAdminOnly", func(t *testing.T) {
			patient := newPatient()
			req := &dto.AdjustBalanceRequest{
				UserID:          patient.UserID.String(),
				TransactionType: "income",
				Amount:          dec("12.34"),
				Description:     "goodwill credit",
			}
			_, err := h.balances.AdjustBalance(ctx, patient, req, nil)
			assert.True(t, businessflow.IsForbidden(err))

			resp, err := h.balances.AdjustBalance(ctx, h.admin, req, nil)
			require.NoError(t, err)
			assert.True(t, resp.Balance.Balance.Equal(dec("12.34")))
			assert.Equal(t, "income", resp.Transaction.TransactionType)

			req.TransactionType = "expense"
			req.Amount = dec("20.00")
			_, err = h.balances.AdjustBalance(ctx, h.admin, req, nil)
			assert.True(t, businessflow.IsInsufficientFunds(err))

			adjusted, err := h.fixtures.CountAuditLogs(models.AuditActionBalanceAdjusted)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, adjusted, int64(1))
		})
	})
}
