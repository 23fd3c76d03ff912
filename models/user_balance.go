package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserBalance is the platform-held wallet of one user
type UserBalance struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Balance       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`
	FrozenBalance decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"frozen_balance"`
	TotalIncome   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_income"`
	TotalExpense  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_expense"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UserBalance) TableName() string {
	return "user_balances"
}

// NewUserBalance returns a zero valued wallet for userID
func NewUserBalance(userID uuid.UUID) *UserBalance {
	return &UserBalance{
		UserID:        userID,
		Balance:       decimal.Zero,
		FrozenBalance: decimal.Zero,
		TotalIncome:   decimal.Zero,
		TotalExpense:  decimal.Zero,
	}
}
