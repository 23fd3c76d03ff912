package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/medipay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserBalanceRepositoryImpl implements UserBalanceRepository interface
type UserBalanceRepositoryImpl struct {
	*BaseRepository[models.UserBalance, struct{}]
}

// NewUserBalanceRepository creates a new user balance repository
func NewUserBalanceRepository(db *gorm.DB) UserBalanceRepository {
	return &UserBalanceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.UserBalance, struct{}](db),
	}
}

func (r *UserBalanceRepositoryImpl) byUserID(db *gorm.DB, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	err := db.Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// ByUserID reads a wallet without locking it
func (r *UserBalanceRepositoryImpl) ByUserID(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return r.byUserID(r.getDB(ctx), userID)
}

// ByUserIDForUpdate reads a wallet holding an exclusive row lock until the enclosing
// transaction ends. Without a transaction in ctx the lock is released immediately.
func (r *UserBalanceRepositoryImpl) ByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	if !InTransaction(ctx) {
		return nil, fmt.Errorf("row lock on balance of %s requested outside a transaction", userID)
	}
	return r.byUserID(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

// CreateIfMissing inserts a zero valued wallet unless one exists, then returns the stored row
func (r *UserBalanceRepositoryImpl) CreateIfMissing(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return nil, err
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(models.NewUserBalance(userID)).Error
	if err != nil {
		err = fmt.Errorf("failed to initialize balance of %s: %w", userID, err)
	}

	var balance *models.UserBalance
	if err == nil {
		balance, err = r.byUserID(db, userID)
	}
	if err = finish(db, shouldCommit, err); err != nil {
		return nil, err
	}
	return balance, nil
}

// UpdateAmounts writes the monetary columns of a wallet
func (r *UserBalanceRepositoryImpl) UpdateAmounts(ctx context.Context, balance *models.UserBalance) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&models.UserBalance{}).Where("id = ?", balance.ID).Updates(map[string]any{
		"balance":        balance.Balance,
		"frozen_balance": balance.FrozenBalance,
		"total_income":   balance.TotalIncome,
		"total_expense":  balance.TotalExpense,
	})
	if res.Error != nil {
		err = fmt.Errorf("failed to update balance %d: %w", balance.ID, res.Error)
	} else if res.RowsAffected != 1 {
		err = fmt.Errorf("balance %d not found", balance.ID)
	}
	return finish(db, shouldCommit, err)
}
