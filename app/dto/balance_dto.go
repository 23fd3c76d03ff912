package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserBalanceResponse struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance" swaggertype:"string"`
	FrozenBalance decimal.Decimal `json:"frozen_balance" swaggertype:"string"`
	TotalIncome   decimal.Decimal `json:"total_income" swaggertype:"string"`
	TotalExpense  decimal.Decimal `json:"total_expense" swaggertype:"string"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ListBalanceTransactionsRequest struct {
	UserID          *string `query:"user_id" json:"user_id,omitempty" validate:"omitempty,uuid"`
	TransactionType *string `query:"transaction_type" json:"transaction_type,omitempty" validate:"omitempty,oneof=income expense freeze unfreeze"`
	Page            int     `query:"page" json:"page" validate:"omitempty,min=1"`
	PageSize        int     `query:"page_size" json:"page_size" validate:"omitempty,min=1,max=100"`
}

type BalanceTransactionResponse struct {
	UUID            string          `json:"uuid"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"string"`
	BalanceBefore   decimal.Decimal `json:"balance_before" swaggertype:"string"`
	BalanceAfter    decimal.Decimal `json:"balance_after" swaggertype:"string"`
	RelatedType     *string         `json:"related_type,omitempty"`
	RelatedID       *string         `json:"related_id,omitempty"`
	Description     *string         `json:"description,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ListBalanceTransactionsResponse struct {
	Items      []BalanceTransactionResponse `json:"items"`
	Pagination PaginationInfo               `json:"pagination"`
}

// AdjustBalanceRequest is an admin correction applied as one ledger mutation
type AdjustBalanceRequest struct {
	UserID          string          `json:"user_id" validate:"required,uuid"`
	TransactionType string          `json:"transaction_type" validate:"required,oneof=income expense freeze unfreeze"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"string" validate:"decimal_gt0"`
	Description     string          `json:"description" validate:"required,min=2,max=500"`
}

type AdjustBalanceResponse struct {
	Balance     UserBalanceResponse        `json:"balance"`
	Transaction BalanceTransactionResponse `json:"transaction"`
}
