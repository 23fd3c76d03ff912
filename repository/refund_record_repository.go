package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/medipay/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundRecordRepositoryImpl implements RefundRecordRepository interface
type RefundRecordRepositoryImpl struct {
	*BaseRepository[models.RefundRecord, models.RefundRecordFilter]
}

// NewRefundRecordRepository creates a new refund record repository
func NewRefundRecordRepository(db *gorm.DB) RefundRecordRepository {
	return &RefundRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RefundRecord, models.RefundRecordFilter](db),
	}
}

// TransitionStatus moves a refund between statuses only if it is still in from
func (r *RefundRecordRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.RefundStatus, updates map[string]any) (bool, error) {
	fields := map[string]any{"status": to}
	for k, v := range updates {
		fields[k] = v
	}
	return r.updateWhereStatus(ctx, id, from, fields)
}

// SucceededAmount sums the settled refunds of an order
func (r *RefundRecordRepositoryImpl) SucceededAmount(ctx context.Context, orderID uint) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.getDB(ctx).Model(&models.RefundRecord{}).
		Where("order_id = ? AND status = ?", orderID, models.RefundStatusSuccess).
		Select("COALESCE(SUM(refund_amount), 0)").
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds of order %d: %w", orderID, err)
	}
	return total, nil
}

// ByFilter retrieves refunds matching the filter
func (r *RefundRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.RefundRecordFilter, orderBy string, limit, offset int) ([]*models.RefundRecord, error) {
	var refunds []*models.RefundRecord

	query := r.applyFilter(r.getDB(ctx).Model(&models.RefundRecord{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

// Count returns the number of refunds matching the filter
func (r *RefundRecordRepositoryImpl) Count(ctx context.Context, filter models.RefundRecordFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.RefundRecord{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any refund matching the filter exists
func (r *RefundRecordRepositoryImpl) Exists(ctx context.Context, filter models.RefundRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RefundRecordRepositoryImpl) applyFilter(query *gorm.DB, filter models.RefundRecordFilter) *gorm.DB {
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
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	return query
}
