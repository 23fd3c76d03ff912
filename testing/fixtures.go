package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestAppointment inserts a pending appointment row
func (tf *TestFixtures) CreateTestAppointment() (*models.Appointment, error) {
	appointment := &models.Appointment{
		ID:     uuid.New(),
		Status: "pending",
	}
	if err := tf.DB.DB.Create(appointment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test appointment: %w", err)
	}
	return appointment, nil
}

// CreateTestOrder inserts a pending order of amount for userID, expiring in two hours
func (tf *TestFixtures) CreateTestOrder(userID uuid.UUID, amount string, appointmentID *uuid.UUID) (*models.PaymentOrder, error) {
	now := utils.UTCNow()
	order := &models.PaymentOrder{
		OrderNo:       utils.NewSerialNumber(utils.OrderNumberPrefix, now),
		UserID:        userID,
		AppointmentID: appointmentID,
		OrderType:     models.OrderTypeConsultation,
		Amount:        decimal.RequireFromString(amount),
		Currency:      utils.DefaultCurrency,
		Status:        models.PaymentOrderStatusPending,
		ExpireTime:    now.Add(utils.DefaultOrderTTL),
		Metadata:      []byte("{}"),
	}
	if err := tf.DB.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create test order: %w", err)
	}
	return order, nil
}

// CreateExpiredTestOrder inserts a pending order whose payment window already closed
func (tf *TestFixtures) CreateExpiredTestOrder(userID uuid.UUID, amount string) (*models.PaymentOrder, error) {
	order, err := tf.CreateTestOrder(userID, amount, nil)
	if err != nil {
		return nil, err
	}
	expired := utils.UTCNow().Add(-time.Minute)
	if err := tf.DB.DB.Model(order).Update("expire_time", expired).Error; err != nil {
		return nil, fmt.Errorf("failed to expire test order: %w", err)
	}
	order.ExpireTime = expired
	return order, nil
}

// CreateTestBalance inserts a wallet for userID holding amount
func (tf *TestFixtures) CreateTestBalance(userID uuid.UUID, amount string) (*models.UserBalance, error) {
	balance := models.NewUserBalance(userID)
	balance.Balance = decimal.RequireFromString(amount)
	balance.TotalIncome = balance.Balance
	if err := tf.DB.DB.Create(balance).Error; err != nil {
		return nil, fmt.Errorf("failed to create test balance: %w", err)
	}
	return balance, nil
}

// CreateTestPrice inserts an active, open ended price for serviceType
func (tf *TestFixtures) CreateTestPrice(serviceType, price string, discount *string) (*models.PriceConfig, error) {
	cfg := &models.PriceConfig{
		ServiceType: serviceType,
		Price:       decimal.RequireFromString(price),
		IsActive:    true,
	}
	if discount != nil {
		d := decimal.RequireFromString(*discount)
		cfg.DiscountPrice = &d
	}
	if err := tf.DB.DB.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test price: %w", err)
	}
	return cfg, nil
}

// BalanceOf reloads the wallet of userID
func (tf *TestFixtures) BalanceOf(userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	if err := tf.DB.DB.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// ReloadOrder reads the order back from the database
func (tf *TestFixtures) ReloadOrder(id uint) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := tf.DB.DB.First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// TransactionsOf lists every transaction of an order, oldest first
func (tf *TestFixtures) TransactionsOf(orderID uint) ([]*models.PaymentTransaction, error) {
	var txns []*models.PaymentTransaction
	err := tf.DB.DB.Where("order_id = ?", orderID).Order("id ASC").Find(&txns).Error
	return txns, err
}

// CountAuditLogs counts audit entries of action
func (tf *TestFixtures) CountAuditLogs(action string) (int64, error) {
	var count int64
	err := tf.DB.DB.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error
	return count, err
}
