package repository

import (
	"context"
	"errors"

	"github.com/amirphl/medipay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BalanceTransactionRepositoryImpl implements BalanceTransactionRepository interface
type BalanceTransactionRepositoryImpl struct {
	*BaseRepository[models.BalanceTransaction, models.BalanceTransactionFilter]
}

// NewBalanceTransactionRepository creates a new balance transaction repository
func NewBalanceTransactionRepository(db *gorm.DB) BalanceTransactionRepository {
	return &BalanceTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BalanceTransaction, models.BalanceTransactionFilter](db),
	}
}

// LatestByUser returns the newest history entry of a wallet
func (r *BalanceTransactionRepositoryImpl) LatestByUser(ctx context.Context, userID uuid.UUID) (*models.BalanceTransaction, error) {
	var entry models.BalanceTransaction
	err := r.getDB(ctx).Where("user_id = ?", userID).Order("id DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ByFilter retrieves history entries matching the filter
func (r *BalanceTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.BalanceTransactionFilter, orderBy string, limit, offset int) ([]*models.BalanceTransaction, error) {
	var entries []*models.BalanceTransaction

	query := r.applyFilter(r.getDB(ctx).Model(&models.BalanceTransaction{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC, id DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of history entries matching the filter
func (r *BalanceTransactionRepositoryImpl) Count(ctx context.Context, filter models.BalanceTransactionFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.BalanceTransaction{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any history entry matching the filter exists
func (r *BalanceTransactionRepositoryImpl) Exists(ctx context.Context, filter models.BalanceTransactionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *BalanceTransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.BalanceTransactionFilter) *gorm.DB {
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.TransactionType != nil {
		query = query.Where("transaction_type = ?", *filter.TransactionType)
	}
	if filter.RelatedType != nil {
		query = query.Where("related_type = ?", *filter.RelatedType)
	}
	if filter.RelatedID != nil {
		query = query.Where("related_id = ?", *filter.RelatedID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}
