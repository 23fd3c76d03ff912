package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BalanceFlow handles wallet reads and administrative adjustments
type BalanceFlow interface {
	GetBalance(ctx context.Context, caller Caller, userID *string) (*dto.UserBalanceResponse, error)
	ListTransactions(ctx context.Context, caller Caller, req *dto.ListBalanceTransactionsRequest) (*dto.ListBalanceTransactionsResponse, error)
	AdjustBalance(ctx context.Context, caller Caller, req *dto.AdjustBalanceRequest, metadata *ClientMetadata) (*dto.AdjustBalanceResponse, error)
}

// BalanceFlowImpl implements BalanceFlow
type BalanceFlowImpl struct {
	ledger        BalanceLedger
	balanceTxRepo repository.BalanceTransactionRepository
	auditRepo     repository.AuditLogRepository
	db            *gorm.DB
	logger        *zap.Logger
}

// NewBalanceFlow creates a new balance flow instance
func NewBalanceFlow(
	ledger BalanceLedger,
	balanceTxRepo repository.BalanceTransactionRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	logger *zap.Logger,
) BalanceFlow {
	return &BalanceFlowImpl{
		ledger:        ledger,
		balanceTxRepo: balanceTxRepo,
		auditRepo:     auditRepo,
		db:            db,
		logger:        logger,
	}
}

// GetBalance returns the caller's wallet, creating an empty one on first access.
// Admins may read another user's wallet through userID.
func (b *BalanceFlowImpl) GetBalance(ctx context.Context, caller Caller, userID *string) (*dto.UserBalanceResponse, error) {
	target, err := caller.scopeUser(userID)
	if err != nil {
		return nil, NewBusinessError("GET_BALANCE_FAILED", "Invalid balance query", err)
	}
	if target == nil {
		target = &caller.UserID
	}

	balance, err := b.ledger.GetBalance(ctx, *target)
	if IsBalanceNotFound(err) {
		balance, err = b.ledger.CreateBalance(ctx, *target)
	}
	if err != nil {
		return nil, NewBusinessError("GET_BALANCE_FAILED", "Failed to load balance", err)
	}

	resp := ToUserBalanceResponse(balance)
	return &resp, nil
}

// ListTransactions pages through wallet history newest first
func (b *BalanceFlowImpl) ListTransactions(ctx context.Context, caller Caller, req *dto.ListBalanceTransactionsRequest) (*dto.ListBalanceTransactionsResponse, error) {
	target, err := caller.scopeUser(req.UserID)
	if err != nil {
		return nil, NewBusinessError("LIST_BALANCE_TRANSACTIONS_FAILED", "Invalid balance transaction filter", err)
	}
	if target == nil {
		target = &caller.UserID
	}

	filter := models.BalanceTransactionFilter{UserID: target}
	if req.TransactionType != nil && *req.TransactionType != "" {
		t := models.BalanceTransactionType(*req.TransactionType)
		if !t.IsValid() {
			return nil, NewBusinessError("LIST_BALANCE_TRANSACTIONS_FAILED", "Invalid balance transaction filter", fmt.Errorf("%w: transaction_type", ErrInvalidFilter))
		}
		filter.TransactionType = &t
	}

	page, pageSize, offset := utils.NormalizePage(req.Page, req.PageSize)
	total, err := b.balanceTxRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_BALANCE_TRANSACTIONS_FAILED", "Failed to count balance transactions", err)
	}
	rows, err := b.balanceTxRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_BALANCE_TRANSACTIONS_FAILED", "Failed to list balance transactions", err)
	}

	items := make([]dto.BalanceTransactionResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToBalanceTransactionResponse(row))
	}
	return &dto.ListBalanceTransactionsResponse{
		Items:      items,
		Pagination: dto.NewPaginationInfo(page, pageSize, total),
	}, nil
}

// AdjustBalance applies an admin correction as a single ledger mutation
func (b *BalanceFlowImpl) AdjustBalance(ctx context.Context, caller Caller, req *dto.AdjustBalanceRequest, metadata *ClientMetadata) (*dto.AdjustBalanceResponse, error) {
	if !caller.IsAdmin() {
		return nil, NewBusinessError("ADJUST_BALANCE_FAILED", "Only admins may adjust balances", ErrForbidden)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, NewBusinessError("ADJUST_BALANCE_FAILED", "Invalid user id", fmt.Errorf("%w: user_id", ErrInvalidFilter))
	}
	kind := models.BalanceTransactionType(req.TransactionType)
	if err := validateMoney(req.Amount); err != nil {
		return nil, NewBusinessError("ADJUST_BALANCE_FAILED", "Invalid adjustment amount", err)
	}

	var balance *models.UserBalance
	var record *models.BalanceTransaction
	err = repository.WithTransaction(ctx, b.db, func(txCtx context.Context) error {
		var err error
		balance, record, err = b.ledger.Mutate(txCtx, LedgerEntry{
			UserID:      userID,
			Type:        kind,
			Amount:      req.Amount,
			RelatedType: models.BalanceRelatedTypeAdjustment,
			Description: req.Description,
		})
		return err
	})

	extra := map[string]any{"target_user_id": userID.String(), "type": req.TransactionType, "amount": req.Amount.String()}
	if err != nil {
		errMsg := fmt.Sprintf("Balance adjustment of %s for user %s failed: %s", req.Amount, userID, err.Error())
		_ = createAuditLog(ctx, b.auditRepo, &caller.UserID, models.AuditActionBalanceAdjusted, errMsg, false, &errMsg, metadata, extra)
		return nil, NewBusinessError("ADJUST_BALANCE_FAILED", "Failed to adjust balance", err)
	}
	services.RecordLedgerMutation(string(kind))

	msg := fmt.Sprintf("Applied %s of %s to balance of user %s", kind, req.Amount, userID)
	_ = createAuditLog(ctx, b.auditRepo, &caller.UserID, models.AuditActionBalanceAdjusted, msg, true, nil, metadata, extra)
	b.logger.Info("balance adjusted",
		zap.String("user_id", userID.String()),
		zap.String("type", string(kind)),
		zap.String("amount", req.Amount.String()),
		zap.String("admin_id", caller.UserID.String()),
	)

	return &dto.AdjustBalanceResponse{
		Balance:     ToUserBalanceResponse(balance),
		Transaction: ToBalanceTransactionResponse(record),
	}, nil
}
