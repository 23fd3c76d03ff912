package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/medipay/models"
	"gorm.io/gorm"
)

// PaymentTransactionRepositoryImpl implements PaymentTransactionRepository interface
type PaymentTransactionRepositoryImpl struct {
	*BaseRepository[models.PaymentTransaction, models.PaymentTransactionFilter]
}

// NewPaymentTransactionRepository creates a new payment transaction repository
func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &PaymentTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PaymentTransaction, models.PaymentTransactionFilter](db),
	}
}

func (r *PaymentTransactionRepositoryImpl) first(query *gorm.DB) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := query.First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// LatestPending returns the most recently initiated pending payment for order and method
func (r *PaymentTransactionRepositoryImpl) LatestPending(ctx context.Context, orderID uint, method models.PaymentMethod) (*models.PaymentTransaction, error) {
	return r.first(r.getDB(ctx).
		Where("order_id = ? AND payment_method = ? AND transaction_type = ? AND status = ?",
			orderID, method, models.PaymentTransactionTypePayment, models.PaymentTransactionStatusPending).
		Order("initiated_at DESC, id DESC"))
}

// LatestSuccessfulPayment returns the payment that settled the order
func (r *PaymentTransactionRepositoryImpl) LatestSuccessfulPayment(ctx context.Context, orderID uint) (*models.PaymentTransaction, error) {
	return r.first(r.getDB(ctx).
		Where("order_id = ? AND transaction_type = ? AND status = ?",
			orderID, models.PaymentTransactionTypePayment, models.PaymentTransactionStatusSuccess).
		Order("completed_at DESC, id DESC"))
}

// ByExternalTransactionID finds a payment already correlated with a provider id
func (r *PaymentTransactionRepositoryImpl) ByExternalTransactionID(ctx context.Context, orderID uint, method models.PaymentMethod, externalID string) (*models.PaymentTransaction, error) {
	return r.first(r.getDB(ctx).
		Where("order_id = ? AND payment_method = ? AND transaction_type = ? AND external_transaction_id = ?",
			orderID, method, models.PaymentTransactionTypePayment, externalID).
		Order("id DESC"))
}

// Complete moves a pending transaction to a terminal status
func (r *PaymentTransactionRepositoryImpl) Complete(ctx context.Context, id uint, status models.PaymentTransactionStatus, updates map[string]any) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("transaction status %s is not terminal", status)
	}

	fields := map[string]any{"status": status}
	for k, v := range updates {
		fields[k] = v
	}
	return r.updateWhereStatus(ctx, id, models.PaymentTransactionStatusPending, fields)
}

// CloseOtherPending fails every pending payment of the order except keepID and returns how
// many rows it closed
func (r *PaymentTransactionRepositoryImpl) CloseOtherPending(ctx context.Context, orderID, keepID uint, updates map[string]any) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	fields := map[string]any{"status": models.PaymentTransactionStatusFailed}
	for k, v := range updates {
		fields[k] = v
	}
	res := db.Model(&models.PaymentTransaction{}).
		Where("order_id = ? AND id <> ? AND transaction_type = ? AND status = ?",
			orderID, keepID, models.PaymentTransactionTypePayment, models.PaymentTransactionStatusPending).
		Updates(fields)
	if res.Error != nil {
		err = fmt.Errorf("failed to close pending payments of order %d: %w", orderID, res.Error)
	}
	if err = finish(db, shouldCommit, err); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// UpdatePending records gateway correlation data on a transaction that is still pending
func (r *PaymentTransactionRepositoryImpl) UpdatePending(ctx context.Context, id uint, updates map[string]any) (bool, error) {
	return r.updateWhereStatus(ctx, id, models.PaymentTransactionStatusPending, updates)
}

// ByFilter retrieves transactions matching the filter
func (r *PaymentTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.PaymentTransactionFilter, orderBy string, limit, offset int) ([]*models.PaymentTransaction, error) {
	var txns []*models.PaymentTransaction

	query := r.applyFilter(r.getDB(ctx).Model(&models.PaymentTransaction{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("initiated_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// Count returns the number of transactions matching the filter
func (r *PaymentTransactionRepositoryImpl) Count(ctx context.Context, filter models.PaymentTransactionFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.PaymentTransaction{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any transaction matching the filter exists
func (r *PaymentTransactionRepositoryImpl) Exists(ctx context.Context, filter models.PaymentTransactionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *PaymentTransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.PaymentTransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.PaymentMethod != nil {
		query = query.Where("payment_method = ?", *filter.PaymentMethod)
	}
	if filter.TransactionType != nil {
		query = query.Where("transaction_type = ?", *filter.TransactionType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ExternalTransactionID != nil {
		query = query.Where("external_transaction_id = ?", *filter.ExternalTransactionID)
	}
	if filter.InitiatedBefore != nil {
		query = query.Where("initiated_at < ?", *filter.InitiatedBefore)
	}
	return query
}
