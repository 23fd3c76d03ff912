package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	testingutil "github.com/amirphl/medipay/testing"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func withDB(t *testing.T, fn func(testDB *testingutil.TestDB)) {
	t.Helper()
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fn(testDB)
		return nil
	})
	if errors.Is(err, testingutil.ErrDatabaseUnavailable) {
		t.Skipf("skipping database test: %v", err)
	}
	require.NoError(t, err)
}

func TestPaymentOrderRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) {
		repo := repository.NewPaymentOrderRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()
		userID := uuid.New()

		t.Run("ByOrderNo", func(t *testing.T) {
			order, err := fixtures.CreateTestOrder(userID, "80.00", nil)
			require.NoError(t, err)

			found, err := repo.ByOrderNo(ctx, order.OrderNo)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, order.UUID, found.UUID)
			assert.True(t, decimal.RequireFromString("80").Equal(found.Amount))

			missing, err := repo.ByOrderNo(ctx, "ORD000000000000000000")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("TransitionStatusIsGuarded", func(t *testing.T) {
			order, err := fixtures.CreateTestOrder(userID, "50.00", nil)
			require.NoError(t, err)

			ok, err := repo.TransitionStatus(ctx, order.ID, models.PaymentOrderStatusPending, models.PaymentOrderStatusPaid,
				map[string]any{"payment_method": models.PaymentMethodBalance, "paid_at": utils.UTCNow()})
			require.NoError(t, err)
			assert.True(t, ok)

			// a second writer that read the order as pending loses
			ok, err = repo.TransitionStatus(ctx, order.ID, models.PaymentOrderStatusPending, models.PaymentOrderStatusCancelled, nil)
			require.NoError(t, err)
			assert.False(t, ok)

			reloaded, err := fixtures.ReloadOrder(order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentOrderStatusPaid, reloaded.Status)
		})

		t.Run("IllegalTransitionIsRejected", func(t *testing.T) {
			order, err := fixtures.CreateTestOrder(userID, "10.00", nil)
			require.NoError(t, err)

			_, err = repo.TransitionStatus(ctx, order.ID, models.PaymentOrderStatusPending, models.PaymentOrderStatusRefunded, nil)
			assert.Error(t, err)
		})

		t.Run("Statistics", func(t *testing.T) {
			other := uuid.New()
			_, err := fixtures.CreateTestOrder(other, "30.00", nil)
			require.NoError(t, err)
			paid, err := fixtures.CreateTestOrder(other, "70.00", nil)
			require.NoError(t, err)
			_, err = repo.TransitionStatus(ctx, paid.ID, models.PaymentOrderStatusPending, models.PaymentOrderStatusPaid, nil)
			require.NoError(t, err)

			stats, err := repo.Statistics(ctx, models.PaymentOrderFilter{UserID: &other})
			require.NoError(t, err)
			assert.Equal(t, int64(2), stats.TotalOrders)
			assert.True(t, decimal.RequireFromString("100").Equal(stats.TotalAmount))
			assert.Equal(t, int64(1), stats.PaidOrders)
			assert.True(t, decimal.RequireFromString("70").Equal(stats.PaidAmount))
			assert.Equal(t, int64(0), stats.RefundedOrders)
		})
	})
}

func TestPaymentTransactionRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) {
		repo := repository.NewPaymentTransactionRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()
		userID := uuid.New()

		newPayment := func(order *models.PaymentOrder, status models.PaymentTransactionStatus, externalID *string) *models.PaymentTransaction {
			return &models.PaymentTransaction{
				TransactionNo:         utils.NewSerialNumber(utils.TransactionNumberPrefix, utils.UTCNow()),
				OrderID:               order.ID,
				UserID:                userID,
				PaymentMethod:         models.PaymentMethodAlipay,
				TransactionType:       models.PaymentTransactionTypePayment,
				Amount:                order.Amount,
				Status:                status,
				ExternalTransactionID: externalID,
			}
		}

		t.Run("CloseOtherPendingKeepsSettledRow", func(t *testing.T) {
			order, err := fixtures.CreateTestOrder(userID, "45.00", nil)
			require.NoError(t, err)
			older := newPayment(order, models.PaymentTransactionStatusPending, nil)
			require.NoError(t, repo.Save(ctx, older))
			newer := newPayment(order, models.PaymentTransactionStatusPending, nil)
			require.NoError(t, repo.Save(ctx, newer))

			closed, err := repo.CloseOtherPending(ctx, order.ID, newer.ID, map[string]any{"error_code": "SUPERSEDED"})
			require.NoError(t, err)
			assert.EqualValues(t, 1, closed)

			txns, err := fixtures.TransactionsOf(order.ID)
			require.NoError(t, err)
			require.Len(t, txns, 2)
			assert.Equal(t, models.PaymentTransactionStatusFailed, txns[0].Status)
			assert.Equal(t, "SUPERSEDED", utils.Deref(txns[0].ErrorCode))
			assert.Equal(t, models.PaymentTransactionStatusPending, txns[1].Status)
		})

		t.Run("ProviderIDSettlesOnce", func(t *testing.T) {
			first, err := fixtures.CreateTestOrder(userID, "12.00", nil)
			require.NoError(t, err)
			second, err := fixtures.CreateTestOrder(userID, "12.00", nil)
			require.NoError(t, err)

			require.NoError(t, repo.Save(ctx, newPayment(first, models.PaymentTransactionStatusSuccess, utils.ToPtr("2088000111"))))
			err = repo.Save(ctx, newPayment(second, models.PaymentTransactionStatusSuccess, utils.ToPtr("2088000111")))
			assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

			// failed attempts may repeat the id
			assert.NoError(t, repo.Save(ctx, newPayment(second, models.PaymentTransactionStatusFailed, utils.ToPtr("2088000111"))))
		})
	})
}

func TestRefundRecordRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) {
		repo := repository.NewRefundRecordRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()
		userID := uuid.New()

		order, err := fixtures.CreateTestOrder(userID, "100.00", nil)
		require.NoError(t, err)
		txn := &models.PaymentTransaction{
			TransactionNo:   utils.NewSerialNumber(utils.TransactionNumberPrefix, utils.UTCNow()),
			OrderID:         order.ID,
			UserID:          userID,
			PaymentMethod:   models.PaymentMethodBalance,
			TransactionType: models.PaymentTransactionTypePayment,
			Amount:          order.Amount,
			Status:          models.PaymentTransactionStatusSuccess,
		}
		require.NoError(t, testDB.DB.Create(txn).Error)

		newRefund := func(amount string) *models.RefundRecord {
			return &models.RefundRecord{
				RefundNo:      utils.NewSerialNumber(utils.RefundNumberPrefix, utils.UTCNow()),
				OrderID:       order.ID,
				TransactionID: txn.ID,
				UserID:        userID,
				RequestedBy:   userID,
				RefundAmount:  decimal.RequireFromString(amount),
				RefundReason:  "appointment cancelled",
				Status:        models.RefundStatusPending,
			}
		}

		first := newRefund("40.00")
		require.NoError(t, repo.Save(ctx, first))

		t.Run("OneOpenRefundPerOrder", func(t *testing.T) {
			assert.Error(t, repo.Save(ctx, newRefund("10.00")))
		})

		t.Run("SucceededAmount", func(t *testing.T) {
			sum, err := repo.SucceededAmount(ctx, order.ID)
			require.NoError(t, err)
			assert.True(t, sum.IsZero())

			ok, err := repo.TransitionStatus(ctx, first.ID, models.RefundStatusPending, models.RefundStatusProcessing, nil)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = repo.TransitionStatus(ctx, first.ID, models.RefundStatusProcessing, models.RefundStatusSuccess,
				map[string]any{"completed_at": utils.UTCNow()})
			require.NoError(t, err)
			require.True(t, ok)

			sum, err = repo.SucceededAmount(ctx, order.ID)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("40").Equal(sum))
		})

		t.Run("NewRefundAllowedOnceClosed", func(t *testing.T) {
			assert.NoError(t, repo.Save(ctx, newRefund("20.00")))
		})
	})
}

func TestUserBalanceRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) {
		repo := repository.NewUserBalanceRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()
		userID := uuid.New()

		t.Run("MissingWalletIsNil", func(t *testing.T) {
			balance, err := repo.ByUserID(ctx, userID)
			require.NoError(t, err)
			assert.Nil(t, balance)
		})

		t.Run("CreateIfMissingIsIdempotent", func(t *testing.T) {
			first, err := repo.CreateIfMissing(ctx, userID)
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.True(t, first.Balance.IsZero())

			second, err := repo.CreateIfMissing(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
		})

		t.Run("RowLockRequiresTransaction", func(t *testing.T) {
			_, err := repo.ByUserIDForUpdate(ctx, userID)
			assert.Error(t, err)

			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				balance, err := repo.ByUserIDForUpdate(txCtx, userID)
				if err != nil {
					return err
				}
				balance.Balance = balance.Balance.Add(decimal.RequireFromString("25.50"))
				balance.TotalIncome = balance.TotalIncome.Add(decimal.RequireFromString("25.50"))
				return repo.UpdateAmounts(txCtx, balance)
			})
			require.NoError(t, err)

			balance, err := repo.ByUserID(ctx, userID)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("25.50").Equal(balance.Balance))
		})

		t.Run("RollbackDiscardsWrites", func(t *testing.T) {
			boom := errors.New("boom")
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				balance, err := repo.ByUserIDForUpdate(txCtx, userID)
				if err != nil {
					return err
				}
				balance.Balance = decimal.Zero
				if err := repo.UpdateAmounts(txCtx, balance); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			balance, err := repo.ByUserID(ctx, userID)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("25.50").Equal(balance.Balance))
		})
	})
}

func TestPriceConfigRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) {
		repo := repository.NewPriceConfigRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()
		now := utils.UTCNow()

		expired := now.AddDate(0, 0, -10)
		ended := now.AddDate(0, 0, -1)
		require.NoError(t, repo.Save(ctx, &models.PriceConfig{
			ServiceType:   "consultation",
			Price:         decimal.RequireFromString("99.00"),
			IsActive:      true,
			EffectiveDate: &expired,
			ExpiryDate:    &ended,
		}))
		require.NoError(t, repo.Save(ctx, &models.PriceConfig{
			ServiceType: "consultation",
			Price:       decimal.RequireFromString("60.00"),
			IsActive:    true,
		}))
		retired := &models.PriceConfig{
			ServiceType: "consultation",
			Price:       decimal.RequireFromString("1.00"),
		}
		require.NoError(t, repo.Save(ctx, retired))
		// is_active defaults to true on insert
		require.NoError(t, testDB.DB.Model(retired).Update("is_active", false).Error)

		t.Run("CurrentSkipsExpiredAndInactive", func(t *testing.T) {
			price, err := repo.Current(ctx, "consultation", now)
			require.NoError(t, err)
			require.NotNil(t, price)
			assert.True(t, decimal.RequireFromString("60").Equal(price.Price))
		})

		t.Run("UnknownServiceType", func(t *testing.T) {
			price, err := repo.Current(ctx, "prescription", now.Add(time.Hour))
			require.NoError(t, err)
			assert.Nil(t, price)
		})
	})
}
