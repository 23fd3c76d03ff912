// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/medipay/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByUUID(ctx context.Context, id uuid.UUID) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// PaymentOrderRepository defines operations for payment orders
type PaymentOrderRepository interface {
	Repository[models.PaymentOrder, models.PaymentOrderFilter]
	ByOrderNo(ctx context.Context, orderNo string) (*models.PaymentOrder, error)
	TransitionStatus(ctx context.Context, id uint, from, to models.PaymentOrderStatus, updates map[string]any) (bool, error)
	Statistics(ctx context.Context, filter models.PaymentOrderFilter) (*models.PaymentStatistics, error)
}

// PaymentTransactionRepository defines operations for the transaction ledger
type PaymentTransactionRepository interface {
	Repository[models.PaymentTransaction, models.PaymentTransactionFilter]
	LatestPending(ctx context.Context, orderID uint, method models.PaymentMethod) (*models.PaymentTransaction, error)
	LatestSuccessfulPayment(ctx context.Context, orderID uint) (*models.PaymentTransaction, error)
	ByExternalTransactionID(ctx context.Context, orderID uint, method models.PaymentMethod, externalID string) (*models.PaymentTransaction, error)
	Complete(ctx context.Context, id uint, status models.PaymentTransactionStatus, updates map[string]any) (bool, error)
	UpdatePending(ctx context.Context, id uint, updates map[string]any) (bool, error)
	CloseOtherPending(ctx context.Context, orderID, keepID uint, updates map[string]any) (int64, error)
}

// RefundRecordRepository defines operations for refund records
type RefundRecordRepository interface {
	Repository[models.RefundRecord, models.RefundRecordFilter]
	TransitionStatus(ctx context.Context, id uint, from, to models.RefundStatus, updates map[string]any) (bool, error)
	SucceededAmount(ctx context.Context, orderID uint) (decimal.Decimal, error)
}

// UserBalanceRepository defines operations for user wallets
type UserBalanceRepository interface {
	ByUserID(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	ByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	CreateIfMissing(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	UpdateAmounts(ctx context.Context, balance *models.UserBalance) error
}

// BalanceTransactionRepository defines operations for wallet history
type BalanceTransactionRepository interface {
	Repository[models.BalanceTransaction, models.BalanceTransactionFilter]
	LatestByUser(ctx context.Context, userID uuid.UUID) (*models.BalanceTransaction, error)
}

// PriceConfigRepository defines operations for service prices
type PriceConfigRepository interface {
	ByFilter(ctx context.Context, filter models.PriceConfigFilter, orderBy string, limit, offset int) ([]*models.PriceConfig, error)
	Current(ctx context.Context, serviceType string, on time.Time) (*models.PriceConfig, error)
	Save(ctx context.Context, entity *models.PriceConfig) error
}

// PaymentConfigRepository defines operations for gateway credentials
type PaymentConfigRepository interface {
	ByMethod(ctx context.Context, method models.PaymentMethod) ([]*models.PaymentConfig, error)
	Upsert(ctx context.Context, entries []*models.PaymentConfig) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Save(ctx context.Context, entity *models.AuditLog) error
	ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error)
}

// AppointmentRepository is the booking module's table as seen by the payment engine
type AppointmentRepository interface {
	Status(ctx context.Context, id uuid.UUID) (string, error)
	Confirm(ctx context.Context, id uuid.UUID) (bool, error)
}
