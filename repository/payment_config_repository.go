package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/medipay/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentConfigRepositoryImpl implements PaymentConfigRepository interface
type PaymentConfigRepositoryImpl struct {
	*BaseRepository[models.PaymentConfig, struct{}]
}

// NewPaymentConfigRepository creates a new payment config repository
func NewPaymentConfigRepository(db *gorm.DB) PaymentConfigRepository {
	return &PaymentConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PaymentConfig, struct{}](db),
	}
}

// ByMethod returns every credential entry of a gateway
func (r *PaymentConfigRepositoryImpl) ByMethod(ctx context.Context, method models.PaymentMethod) ([]*models.PaymentConfig, error) {
	var entries []*models.PaymentConfig
	err := r.getDB(ctx).Where("payment_method = ?", method).Order("config_key ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s config: %w", method, err)
	}
	return entries, nil
}

// Upsert inserts entries or overwrites the value of existing (method, key) pairs
func (r *PaymentConfigRepositoryImpl) Upsert(ctx context.Context, entries []*models.PaymentConfig) error {
	if len(entries) == 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_method"}, {Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value", "is_encrypted", "description", "updated_at"}),
	}).Create(entries).Error
	if err != nil {
		err = fmt.Errorf("failed to upsert payment config: %w", err)
	}
	return finish(db, shouldCommit, err)
}
