package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry describes one wallet mutation
type LedgerEntry struct {
	UserID      uuid.UUID
	Type        models.BalanceTransactionType
	Amount      decimal.Decimal
	RelatedType string
	RelatedID   *uuid.UUID
	Description string
}

// BalanceLedger is the only writer of user_balances. Every mutation appends exactly one
// balance_transactions row in the caller's database transaction.
type BalanceLedger interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	CreateBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	Mutate(ctx context.Context, entry LedgerEntry) (*models.UserBalance, *models.BalanceTransaction, error)
}

// BalanceLedgerImpl implements BalanceLedger
type BalanceLedgerImpl struct {
	balanceRepo   repository.UserBalanceRepository
	balanceTxRepo repository.BalanceTransactionRepository
}

// NewBalanceLedger creates a new balance ledger
func NewBalanceLedger(balanceRepo repository.UserBalanceRepository, balanceTxRepo repository.BalanceTransactionRepository) BalanceLedger {
	return &BalanceLedgerImpl{
		balanceRepo:   balanceRepo,
		balanceTxRepo: balanceTxRepo,
	}
}

// GetBalance returns the wallet of userID or ErrBalanceNotFound
func (l *BalanceLedgerImpl) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	balance, err := l.balanceRepo.ByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, ErrBalanceNotFound
	}
	return balance, nil
}

// CreateBalance initializes a zero wallet; an existing wallet is returned unchanged
func (l *BalanceLedgerImpl) CreateBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return l.balanceRepo.CreateIfMissing(ctx, userID)
}

// Mutate applies entry to the locked wallet row and records the history entry.
// Income creates the wallet when missing; other types require an existing wallet.
func (l *BalanceLedgerImpl) Mutate(ctx context.Context, entry LedgerEntry) (*models.UserBalance, *models.BalanceTransaction, error) {
	if !repository.InTransaction(ctx) {
		return nil, nil, ErrLedgerOutsideTransaction
	}
	if !entry.Type.IsValid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLedgerOperation, entry.Type)
	}
	if !entry.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}

	balance, err := l.balanceRepo.ByUserIDForUpdate(ctx, entry.UserID)
	if err != nil {
		return nil, nil, err
	}
	if balance == nil {
		if entry.Type != models.BalanceTransactionTypeIncome {
			return nil, nil, ErrBalanceNotFound
		}
		if _, err := l.balanceRepo.CreateIfMissing(ctx, entry.UserID); err != nil {
			return nil, nil, err
		}
		balance, err = l.balanceRepo.ByUserIDForUpdate(ctx, entry.UserID)
		if err != nil {
			return nil, nil, err
		}
		if balance == nil {
			return nil, nil, ErrBalanceNotFound
		}
	}

	next, err := balance.Apply(entry.Type, entry.Amount)
	if err != nil {
		if errors.Is(err, models.ErrBalanceShortfall) {
			return nil, nil, ErrInsufficientFunds
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidLedgerOperation, err)
	}

	if err := l.balanceRepo.UpdateAmounts(ctx, &next); err != nil {
		return nil, nil, err
	}

	record := &models.BalanceTransaction{
		UserID:          entry.UserID,
		TransactionType: entry.Type,
		Amount:          entry.Amount,
		BalanceBefore:   balance.Balance,
		BalanceAfter:    next.Balance,
		RelatedID:       entry.RelatedID,
	}
	if entry.RelatedType != "" {
		record.RelatedType = &entry.RelatedType
	}
	if entry.Description != "" {
		record.Description = &entry.Description
	}
	if err := l.balanceTxRepo.Save(ctx, record); err != nil {
		return nil, nil, err
	}

	return &next, record, nil
}
