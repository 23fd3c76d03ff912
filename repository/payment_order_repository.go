package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/medipay/models"
	"gorm.io/gorm"
)

// PaymentOrderRepositoryImpl implements PaymentOrderRepository interface
type PaymentOrderRepositoryImpl struct {
	*BaseRepository[models.PaymentOrder, models.PaymentOrderFilter]
}

// NewPaymentOrderRepository creates a new payment order repository
func NewPaymentOrderRepository(db *gorm.DB) PaymentOrderRepository {
	return &PaymentOrderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PaymentOrder, models.PaymentOrderFilter](db),
	}
}

// ByOrderNo finds an order by its human readable number
func (r *PaymentOrderRepositoryImpl) ByOrderNo(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.getDB(ctx).Where("order_no = ?", orderNo).Last(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ByFilter retrieves orders matching the filter
func (r *PaymentOrderRepositoryImpl) ByFilter(ctx context.Context, filter models.PaymentOrderFilter, orderBy string, limit, offset int) ([]*models.PaymentOrder, error) {
	var orders []*models.PaymentOrder

	query := r.applyFilter(r.getDB(ctx).Model(&models.PaymentOrder{}), filter)
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

	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Count returns the number of orders matching the filter
func (r *PaymentOrderRepositoryImpl) Count(ctx context.Context, filter models.PaymentOrderFilter) (int64, error) {
	var count int64
	query := r.applyFilter(r.getDB(ctx).Model(&models.PaymentOrder{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any order matching the filter exists
func (r *PaymentOrderRepositoryImpl) Exists(ctx context.Context, filter models.PaymentOrderFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TransitionStatus moves the order from one status to another only if it is still in from
func (r *PaymentOrderRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.PaymentOrderStatus, updates map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal order transition %s -> %s", from, to)
	}

	fields := map[string]any{"status": to}
	for k, v := range updates {
		fields[k] = v
	}
	return r.updateWhereStatus(ctx, id, from, fields)
}

// Statistics aggregates counts and sums by status for the orders matching filter
func (r *PaymentOrderRepositoryImpl) Statistics(ctx context.Context, filter models.PaymentOrderFilter) (*models.PaymentStatistics, error) {
	refunded := []models.PaymentOrderStatus{models.PaymentOrderStatusRefunded, models.PaymentOrderStatusPartialRefunded}

	var stats models.PaymentStatistics
	query := r.applyFilter(r.getDB(ctx).Model(&models.PaymentOrder{}), filter).
		Select("COUNT(*) AS total_orders, COALESCE(SUM(amount), 0) AS total_amount, "+
			"COUNT(*) FILTER (WHERE status = ?) AS paid_orders, "+
			"COALESCE(SUM(amount) FILTER (WHERE status = ?), 0) AS paid_amount, "+
			"COUNT(*) FILTER (WHERE status IN ?) AS refunded_orders, "+
			"COALESCE(SUM(amount) FILTER (WHERE status IN ?), 0) AS refunded_amount",
			models.PaymentOrderStatusPaid, models.PaymentOrderStatusPaid, refunded, refunded)

	if err := query.Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate payment statistics: %w", err)
	}
	return &stats, nil
}

// applyFilter applies the filter to the query
func (r *PaymentOrderRepositoryImpl) applyFilter(query *gorm.DB, filter models.PaymentOrderFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.OrderNo != nil {
		query = query.Where("order_no = ?", *filter.OrderNo)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.AppointmentID != nil {
		query = query.Where("appointment_id = ?", *filter.AppointmentID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.OrderType != nil {
		query = query.Where("order_type = ?", *filter.OrderType)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}
