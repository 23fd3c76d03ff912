package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/config"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefundFlow handles refund requests and their review
type RefundFlow interface {
	CreateRefund(ctx context.Context, caller Caller, req *dto.CreateRefundRequest, metadata *ClientMetadata) (*dto.RefundResponse, error)
	GetRefund(ctx context.Context, caller Caller, refundUUID string) (*dto.RefundResponse, error)
	ReviewRefund(ctx context.Context, caller Caller, refundUUID string, req *dto.ReviewRefundRequest, metadata *ClientMetadata) (*dto.RefundResponse, error)
}

// RefundFlowImpl implements RefundFlow
type RefundFlowImpl struct {
	orderRepo   repository.PaymentOrderRepository
	txnRepo     repository.PaymentTransactionRepository
	refundRepo  repository.RefundRecordRepository
	auditRepo   repository.AuditLogRepository
	ledger      BalanceLedger
	credentials CredentialSource
	gateways    map[models.PaymentMethod]services.PaymentGateway
	db          *gorm.DB
	logger      *zap.Logger

	paymentCfg config.PaymentConfig
}

// NewRefundFlow creates a new refund flow instance
func NewRefundFlow(
	orderRepo repository.PaymentOrderRepository,
	txnRepo repository.PaymentTransactionRepository,
	refundRepo repository.RefundRecordRepository,
	auditRepo repository.AuditLogRepository,
	ledger BalanceLedger,
	credentials CredentialSource,
	gateways []services.PaymentGateway,
	db *gorm.DB,
	paymentCfg config.PaymentConfig,
	logger *zap.Logger,
) RefundFlow {
	byMethod := make(map[models.PaymentMethod]services.PaymentGateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}
	return &RefundFlowImpl{
		orderRepo:   orderRepo,
		txnRepo:     txnRepo,
		refundRepo:  refundRepo,
		auditRepo:   auditRepo,
		ledger:      ledger,
		credentials: credentials,
		gateways:    byMethod,
		db:          db,
		logger:      logger,
		paymentCfg:  paymentCfg,
	}
}

// CreateRefund opens a pending refund for a paid order. Only one refund may be open per order.
func (r *RefundFlowImpl) CreateRefund(ctx context.Context, caller Caller, req *dto.CreateRefundRequest, metadata *ClientMetadata) (*dto.RefundResponse, error) {
	orderID, err := uuid.Parse(req.OrderUUID)
	if err != nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Order not found", ErrOrderNotFound)
	}
	order, err := r.orderRepo.ByUUID(ctx, orderID)
	if err != nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Failed to load order", err)
	}
	if order == nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Order not found", ErrOrderNotFound)
	}
	if !caller.CanAccess(order.UserID) {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Refund not permitted", ErrForbidden)
	}
	if order.Status != models.PaymentOrderStatusPaid {
		return nil, NewBusinessErrorf("CREATE_REFUND_FAILED", "Order in status %s cannot be refunded", ErrInvalidOrderState, order.Status)
	}
	if err := validateMoney(req.RefundAmount); err != nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Invalid refund amount", err)
	}
	if req.RefundAmount.GreaterThan(order.Amount) {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Refund amount exceeds order amount", ErrRefundAmountExceedsOrder)
	}

	payment, err := r.txnRepo.LatestSuccessfulPayment(ctx, order.ID)
	if err != nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Failed to load payment", err)
	}
	if payment == nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "No successful payment for order", ErrTransactionNotFound)
	}

	open, err := r.refundRepo.Exists(ctx, models.RefundRecordFilter{OrderID: &order.ID, Statuses: models.OpenRefundStatuses})
	if err != nil {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Failed to check open refunds", err)
	}
	if open {
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "A refund is already open for this order", ErrRefundInProgress)
	}

	refund := &models.RefundRecord{
		RefundNo:      utils.NewSerialNumber(utils.RefundNumberPrefix, utils.UTCNow()),
		OrderID:       order.ID,
		TransactionID: payment.ID,
		UserID:        order.UserID,
		RequestedBy:   caller.UserID,
		RefundAmount:  req.RefundAmount,
		RefundReason:  req.RefundReason,
		Status:        models.RefundStatusPending,
	}
	extra := map[string]any{"order_no": order.OrderNo, "amount": req.RefundAmount.String()}
	if err := r.refundRepo.Save(ctx, refund); err != nil {
		// the partial unique index on open refunds lost a race
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = ErrRefundInProgress
		}
		errMsg := fmt.Sprintf("Refund request for order %s failed: %s", order.OrderNo, err.Error())
		_ = createAuditLog(ctx, r.auditRepo, &caller.UserID, models.AuditActionRefundRequested, errMsg, false, &errMsg, metadata, extra)
		return nil, NewBusinessError("CREATE_REFUND_FAILED", "Failed to create refund", err)
	}

	extra["refund_no"] = refund.RefundNo
	msg := fmt.Sprintf("Requested refund %s of %s for order %s", refund.RefundNo, refund.RefundAmount, order.OrderNo)
	_ = createAuditLog(ctx, r.auditRepo, &caller.UserID, models.AuditActionRefundRequested, msg, true, nil, metadata, extra)

	resp := ToRefundResponse(refund, order.OrderNo)
	return &resp, nil
}

func (r *RefundFlowImpl) loadRefund(ctx context.Context, refundUUID string) (*models.RefundRecord, *models.PaymentOrder, error) {
	id, err := uuid.Parse(refundUUID)
	if err != nil {
		return nil, nil, ErrRefundNotFound
	}
	refund, err := r.refundRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if refund == nil {
		return nil, nil, ErrRefundNotFound
	}
	order, err := r.orderRepo.ByID(ctx, refund.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, ErrOrderNotFound
	}
	return refund, order, nil
}

func (r *RefundFlowImpl) GetRefund(ctx context.Context, caller Caller, refundUUID string) (*dto.RefundResponse, error) {
	refund, order, err := r.loadRefund(ctx, refundUUID)
	if err != nil {
		return nil, NewBusinessError("GET_REFUND_FAILED", "Failed to get refund", err)
	}
	if !caller.CanAccess(refund.UserID) {
		return nil, NewBusinessError("GET_REFUND_FAILED", "Failed to get refund", ErrForbidden)
	}
	resp := ToRefundResponse(refund, order.OrderNo)
	return &resp, nil
}

// ReviewRefund rejects a pending refund or approves and settles it through the original
// payment method
func (r *RefundFlowImpl) ReviewRefund(ctx context.Context, caller Caller, refundUUID string, req *dto.ReviewRefundRequest, metadata *ClientMetadata) (*dto.RefundResponse, error) {
	if !caller.IsAdmin() {
		return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Only admins may review refunds", ErrForbidden)
	}
	refund, order, err := r.loadRefund(ctx, refundUUID)
	if err != nil {
		return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Failed to load refund", err)
	}
	if refund.Status != models.RefundStatusPending {
		return nil, NewBusinessErrorf("REVIEW_REFUND_FAILED", "Refund in status %s cannot be reviewed", ErrInvalidRefundState, refund.Status)
	}

	now := utils.UTCNow()
	reviewFields := map[string]any{
		"reviewed_by":  caller.UserID,
		"review_notes": req.ReviewNotes,
		"reviewed_at":  now,
	}
	extra := map[string]any{"refund_no": refund.RefundNo, "order_no": order.OrderNo, "amount": refund.RefundAmount.String()}

	if !utils.IsTrue(req.Approved) {
		ok, err := r.refundRepo.TransitionStatus(ctx, refund.ID, models.RefundStatusPending, models.RefundStatusCancelled, reviewFields)
		if err == nil && !ok {
			err = ErrConcurrentUpdate
		}
		if err != nil {
			return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Failed to reject refund", err)
		}
		services.RecordRefund("rejected")
		msg := fmt.Sprintf("Rejected refund %s for order %s", refund.RefundNo, order.OrderNo)
		_ = createAuditLog(ctx, r.auditRepo, &caller.UserID, models.AuditActionRefundRejected, msg, true, nil, metadata, extra)
		return r.refundResponse(ctx, refund.ID, order.OrderNo)
	}

	payment, err := r.txnRepo.ByID(ctx, refund.TransactionID)
	if err != nil {
		return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Failed to load payment", err)
	}
	if payment == nil {
		return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Original payment not found", ErrTransactionNotFound)
	}

	from := models.RefundStatusPending
	var providerRefund map[string]string
	if payment.PaymentMethod.IsGateway() && r.paymentCfg.GatewayRefundEnabled {
		// claim the refund before money moves at the provider
		ok, err := r.refundRepo.TransitionStatus(ctx, refund.ID, models.RefundStatusPending, models.RefundStatusProcessing, reviewFields)
		if err == nil && !ok {
			err = ErrConcurrentUpdate
		}
		if err != nil {
			return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Failed to start refund", err)
		}
		from = models.RefundStatusProcessing

		providerRefund, err = r.refundAtProvider(ctx, refund, order, payment)
		if err != nil {
			r.failRefund(ctx, refund, err)
			services.RecordRefund("failed")
			errMsg := err.Error()
			_ = createAuditLog(ctx, r.auditRepo, &caller.UserID, models.AuditActionRefundFailed,
				fmt.Sprintf("Provider refund %s for order %s failed", refund.RefundNo, order.OrderNo), false, &errMsg, metadata, extra)
			return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Provider refund failed", err)
		}
	}

	err = repository.WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		if from == models.RefundStatusPending {
			ok, err := r.refundRepo.TransitionStatus(txCtx, refund.ID, models.RefundStatusPending, models.RefundStatusProcessing, reviewFields)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConcurrentUpdate
			}
		}

		refunded, err := r.refundRepo.SucceededAmount(txCtx, order.ID)
		if err != nil {
			return err
		}
		total := refunded.Add(refund.RefundAmount)
		if total.GreaterThan(order.Amount) {
			return ErrRefundAmountExceedsOrder
		}

		if payment.PaymentMethod == models.PaymentMethodBalance {
			_, _, err := r.ledger.Mutate(txCtx, LedgerEntry{
				UserID:      refund.UserID,
				Type:        models.BalanceTransactionTypeIncome,
				Amount:      refund.RefundAmount,
				RelatedType: models.BalanceRelatedTypeRefund,
				RelatedID:   &refund.UUID,
				Description: fmt.Sprintf("Refund %s for order %s", refund.RefundNo, order.OrderNo),
			})
			if err != nil {
				return err
			}
		}

		externalID := providerRefundID(providerRefund)
		refundTxn := &models.PaymentTransaction{
			TransactionNo:         utils.NewSerialNumber(utils.TransactionNumberPrefix, now),
			OrderID:               order.ID,
			UserID:                refund.UserID,
			PaymentMethod:         payment.PaymentMethod,
			TransactionType:       models.PaymentTransactionTypeRefund,
			Amount:                refund.RefundAmount,
			Status:                models.PaymentTransactionStatusSuccess,
			ExternalTransactionID: externalID,
			ResponseData:          toJSON(providerRefund),
			InitiatedAt:           now,
			CompletedAt:           &now,
		}
		if err := r.txnRepo.Save(txCtx, refundTxn); err != nil {
			return err
		}

		target := models.PaymentOrderStatusPartialRefunded
		if total.Equal(order.Amount) {
			target = models.PaymentOrderStatusRefunded
		}
		ok, err := r.orderRepo.TransitionStatus(txCtx, order.ID, models.PaymentOrderStatusPaid, target, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		ok, err = r.refundRepo.TransitionStatus(txCtx, refund.ID, models.RefundStatusProcessing, models.RefundStatusSuccess, map[string]any{
			"completed_at":       utils.UTCNow(),
			"external_refund_id": externalID,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		if from == models.RefundStatusProcessing {
			// the provider already returned the money; keep the record out of Processing for follow-up
			r.logger.Error("refund settled at provider but not recorded",
				zap.String("refund_no", refund.RefundNo),
				zap.String("order_no", order.OrderNo),
				zap.Error(err),
			)
			r.failRefund(ctx, refund, fmt.Errorf("provider refunded, settlement failed: %w", err))
		}
		services.RecordRefund("failed")
		errMsg := err.Error()
		_ = createAuditLog(ctx, r.auditRepo, &caller.UserID, models.AuditActionRefundFailed,
			fmt.Sprintf("Approving refund %s for order %s failed", refund.RefundNo, order.OrderNo), false, &errMsg, metadata, extra)
		return nil, NewBusinessError("REVIEW_REFUND_FAILED", "Failed to approve refund", err)
	}

	if payment.PaymentMethod == models.PaymentMethodBalance {
		services.RecordLedgerMutation(string(models.BalanceTransactionTypeIncome))
	}
	services.RecordRefund("success")
	msg := fmt.Sprintf("Approved refund %s of %s for order %s via %s", refund.RefundNo, refund.RefundAmount, order.OrderNo, payment.PaymentMethod)
	_ = createAuditLog(ctx, r.auditRepo, &caller.UserID, models.AuditActionRefundApproved, msg, true, nil, metadata, extra)

	return r.refundResponse(ctx, refund.ID, order.OrderNo)
}

func (r *RefundFlowImpl) refundAtProvider(ctx context.Context, refund *models.RefundRecord, order *models.PaymentOrder, payment *models.PaymentTransaction) (map[string]string, error) {
	gateway, ok := r.gateways[payment.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, payment.PaymentMethod)
	}
	creds, err := r.credentials.Credentials(ctx, payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	resp, err := gateway.Refund(ctx, creds, &services.GatewayRefundRequest{
		OrderNo:       order.OrderNo,
		TransactionID: utils.Deref(payment.ExternalTransactionID),
		RefundNo:      refund.RefundNo,
		TotalAmount:   order.Amount,
		RefundAmount:  refund.RefundAmount,
		Reason:        refund.RefundReason,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalGateway, err)
	}
	return resp, nil
}

func (r *RefundFlowImpl) failRefund(ctx context.Context, refund *models.RefundRecord, cause error) {
	ok, err := r.refundRepo.TransitionStatus(ctx, refund.ID, models.RefundStatusProcessing, models.RefundStatusFailed, map[string]any{
		"failure_reason": cause.Error(),
		"completed_at":   utils.UTCNow(),
	})
	if err != nil || !ok {
		r.logger.Error("failed to mark refund failed",
			zap.String("refund_no", refund.RefundNo),
			zap.Bool("updated", ok),
			zap.Error(err),
		)
	}
}

// providerRefundID picks the provider side refund reference from a refund response
func providerRefundID(resp map[string]string) *string {
	for _, key := range []string{"refund_id", "trade_no"} {
		if v := resp[key]; v != "" {
			return &v
		}
	}
	return nil
}

func (r *RefundFlowImpl) refundResponse(ctx context.Context, id uint, orderNo string) (*dto.RefundResponse, error) {
	refund, err := r.refundRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("GET_REFUND_FAILED", "Failed to reload refund", err)
	}
	if refund == nil {
		return nil, NewBusinessError("GET_REFUND_FAILED", "Refund not found", ErrRefundNotFound)
	}
	resp := ToRefundResponse(refund, orderNo)
	return &resp, nil
}
