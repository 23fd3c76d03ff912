package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceTransactionType is the kind of wallet mutation
type BalanceTransactionType string

const (
	BalanceTransactionTypeIncome   BalanceTransactionType = "income"
	BalanceTransactionTypeExpense  BalanceTransactionType = "expense"
	BalanceTransactionTypeFreeze   BalanceTransactionType = "freeze"
	BalanceTransactionTypeUnfreeze BalanceTransactionType = "unfreeze"
)

func (t BalanceTransactionType) IsValid() bool {
	switch t {
	case BalanceTransactionTypeIncome, BalanceTransactionTypeExpense,
		BalanceTransactionTypeFreeze, BalanceTransactionTypeUnfreeze:
		return true
	}
	return false
}

// Related entity types recorded on balance transactions
const (
	BalanceRelatedTypeOrder      = "order"
	BalanceRelatedTypeRefund     = "refund"
	BalanceRelatedTypeAdjustment = "adjustment"
)

// ErrBalanceShortfall is returned by Apply when the wallet cannot cover a mutation
var ErrBalanceShortfall = errors.New("balance shortfall")

// Apply computes the wallet after mutation t of amount. The receiver is not modified.
func (b UserBalance) Apply(t BalanceTransactionType, amount decimal.Decimal) (UserBalance, error) {
	next := b
	switch t {
	case BalanceTransactionTypeIncome:
		next.Balance = b.Balance.Add(amount)
		next.TotalIncome = b.TotalIncome.Add(amount)
	case BalanceTransactionTypeExpense:
		if b.Balance.LessThan(amount) {
			return b, ErrBalanceShortfall
		}
		next.Balance = b.Balance.Sub(amount)
		next.TotalExpense = b.TotalExpense.Add(amount)
	case BalanceTransactionTypeFreeze:
		if b.Balance.LessThan(amount) {
			return b, ErrBalanceShortfall
		}
		next.Balance = b.Balance.Sub(amount)
		next.FrozenBalance = b.FrozenBalance.Add(amount)
	case BalanceTransactionTypeUnfreeze:
		if b.FrozenBalance.LessThan(amount) {
			return b, ErrBalanceShortfall
		}
		next.Balance = b.Balance.Add(amount)
		next.FrozenBalance = b.FrozenBalance.Sub(amount)
	default:
		return b, fmt.Errorf("unknown balance transaction type %q", t)
	}
	return next, nil
}

// BalanceTransaction is one append-only entry of a wallet's history
type BalanceTransaction struct {
	ID              uint                   `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID            uuid.UUID              `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	UserID          uuid.UUID              `gorm:"type:uuid;not null;index" json:"user_id"`
	TransactionType BalanceTransactionType `gorm:"type:varchar(20);not null" json:"transaction_type"`
	Amount          decimal.Decimal        `gorm:"type:numeric(12,2);not null" json:"amount"`
	BalanceBefore   decimal.Decimal        `gorm:"type:numeric(12,2);not null" json:"balance_before"`
	BalanceAfter    decimal.Decimal        `gorm:"type:numeric(12,2);not null" json:"balance_after"`
	RelatedType     *string                `gorm:"type:varchar(32)" json:"related_type,omitempty"`
	RelatedID       *uuid.UUID             `gorm:"type:uuid" json:"related_id,omitempty"`
	Description     *string                `gorm:"type:text" json:"description,omitempty"`
	CreatedAt       time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (BalanceTransaction) TableName() string {
	return "balance_transactions"
}

// BeforeCreate ensures UUID is set
func (t *BalanceTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return nil
}

// BalanceTransactionFilter represents filter criteria for balance history queries
type BalanceTransactionFilter struct {
	UserID          *uuid.UUID              `json:"user_id,omitempty"`
	TransactionType *BalanceTransactionType `json:"transaction_type,omitempty"`
	RelatedType     *string                 `json:"related_type,omitempty"`
	RelatedID       *uuid.UUID              `json:"related_id,omitempty"`
	CreatedAfter    *time.Time              `json:"created_after,omitempty"`
	CreatedBefore   *time.Time              `json:"created_before,omitempty"`
}
