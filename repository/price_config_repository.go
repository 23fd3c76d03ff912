package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/medipay/models"
	"gorm.io/gorm"
)

// PriceConfigRepositoryImpl implements PriceConfigRepository interface
type PriceConfigRepositoryImpl struct {
	*BaseRepository[models.PriceConfig, models.PriceConfigFilter]
}

// NewPriceConfigRepository creates a new price config repository
func NewPriceConfigRepository(db *gorm.DB) PriceConfigRepository {
	return &PriceConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PriceConfig, models.PriceConfigFilter](db),
	}
}

// Current returns the newest active price of serviceType whose window contains on
func (r *PriceConfigRepositoryImpl) Current(ctx context.Context, serviceType string, on time.Time) (*models.PriceConfig, error) {
	active := true
	query := r.applyFilter(r.getDB(ctx), models.PriceConfigFilter{
		ServiceType: &serviceType,
		IsActive:    &active,
		ActiveOn:    &on,
	})

	var price models.PriceConfig
	err := query.Order("created_at DESC, id DESC").First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &price, nil
}

// ByFilter retrieves prices matching the filter
func (r *PriceConfigRepositoryImpl) ByFilter(ctx context.Context, filter models.PriceConfigFilter, orderBy string, limit, offset int) ([]*models.PriceConfig, error) {
	var prices []*models.PriceConfig

	query := r.applyFilter(r.getDB(ctx).Model(&models.PriceConfig{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("service_type ASC, created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&prices).Error; err != nil {
		return nil, err
	}
	return prices, nil
}

func (r *PriceConfigRepositoryImpl) applyFilter(query *gorm.DB, filter models.PriceConfigFilter) *gorm.DB {
	if filter.ServiceType != nil {
		query = query.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.ActiveOn != nil {
		day := filter.ActiveOn.Format("2006-01-02")
		query = query.
			Where("(effective_date IS NULL OR effective_date <= ?)", day).
			Where("(expiry_date IS NULL OR expiry_date >= ?)", day)
	}
	return query
}
