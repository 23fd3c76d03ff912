package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCallbackLockTTL = 30 * time.Second

// releaseLockScript deletes the lock only while it still holds our token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Callback outcomes reported to metrics
const (
	callbackResultSuccess        = "success"
	callbackResultFailed         = "failed"
	callbackResultDuplicate      = "duplicate"
	callbackResultPending        = "pending"
	callbackResultAmountMismatch = "amount_mismatch"
	callbackResultInvalid        = "invalid_signature"
	callbackResultUnmatched      = "unmatched"
	callbackResultError          = "error"
)

// HandleGatewayNotification authenticates a raw provider notification and applies it
func (p *PaymentFlowImpl) HandleGatewayNotification(ctx context.Context, method models.PaymentMethod, body []byte, metadata *ClientMetadata) error {
	gateway, ok := p.gateways[method]
	if !ok {
		return NewBusinessErrorf("PAYMENT_CALLBACK_FAILED", "Payment method %s has no gateway", ErrUnsupportedPaymentMethod, method)
	}

	params, err := gateway.DecodeNotification(body)
	if err != nil {
		return p.rejectNotification(ctx, method, "", metadata, fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err))
	}
	creds, err := p.credentials.Credentials(ctx, method)
	if err != nil {
		services.RecordCallback(method.String(), callbackResultError)
		return NewBusinessError("PAYMENT_CALLBACK_FAILED", "Failed to load gateway credentials", err)
	}

	verified, err := gateway.VerifyNotification(creds, params)
	if err != nil || !verified {
		reason := ErrSignatureVerificationFailed
		if err != nil {
			reason = fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err)
		}
		return p.rejectNotification(ctx, method, params["out_trade_no"], metadata, reason)
	}

	data, err := gateway.ParseNotification(params)
	if err != nil {
		return p.rejectNotification(ctx, method, params["out_trade_no"], metadata, fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err))
	}

	return p.HandlePaymentCallback(ctx, method, data, metadata)
}

func (p *PaymentFlowImpl) rejectNotification(ctx context.Context, method models.PaymentMethod, orderNo string, metadata *ClientMetadata, reason error) error {
	services.RecordCallback(method.String(), callbackResultInvalid)
	p.logger.Warn("gateway notification rejected",
		zap.String("payment_method", method.String()),
		zap.String("order_no", orderNo),
		zap.Error(reason),
	)
	errMsg := reason.Error()
	_ = createAuditLog(ctx, p.auditRepo, nil, models.AuditActionPaymentCallbackFailed,
		fmt.Sprintf("Rejected %s notification for order %q", method, orderNo), false, &errMsg, metadata,
		map[string]any{"payment_method": method, "order_no": orderNo})
	return NewBusinessError("PAYMENT_CALLBACK_FAILED", "Notification could not be verified", reason)
}

func (p *PaymentFlowImpl) NotificationAck(method models.PaymentMethod, success bool) (string, []byte) {
	if gateway, ok := p.gateways[method]; ok {
		return gateway.NotificationAck(success)
	}
	if success {
		return "text/plain", []byte("success")
	}
	return "text/plain", []byte("failure")
}

// HandlePaymentCallback applies a canonical provider outcome to the transaction carrying the
// provider id, or else to the latest pending transaction of the order. Redelivery of an
// already applied outcome is a no-op.
func (p *PaymentFlowImpl) HandlePaymentCallback(ctx context.Context, method models.PaymentMethod, data *services.PaymentCallbackData, metadata *ClientMetadata) error {
	if data.Status == services.CallbackStatusPending {
		services.RecordCallback(method.String(), callbackResultPending)
		return nil
	}

	release, err := p.acquireCallbackLock(ctx, method, data.OrderNo)
	if err != nil {
		services.RecordCallback(method.String(), callbackResultError)
		return NewBusinessError("PAYMENT_CALLBACK_FAILED", "Callback is already being processed", err)
	}
	defer release()

	result, err := p.applyCallback(ctx, method, data, metadata)
	if err != nil {
		services.RecordCallback(method.String(), callbackResultError)
		errMsg := err.Error()
		_ = createAuditLog(ctx, p.auditRepo, nil, models.AuditActionPaymentCallbackFailed,
			fmt.Sprintf("Applying %s callback for order %s failed", method, data.OrderNo), false, &errMsg, metadata,
			map[string]any{"payment_method": method, "order_no": data.OrderNo, "external_transaction_id": data.ExternalTransactionID})
		return NewBusinessError("PAYMENT_CALLBACK_FAILED", "Failed to process payment callback", err)
	}
	services.RecordCallback(method.String(), result)
	return nil
}

func (p *PaymentFlowImpl) applyCallback(ctx context.Context, method models.PaymentMethod, data *services.PaymentCallbackData, metadata *ClientMetadata) (string, error) {
	order, err := p.orderRepo.ByOrderNo(ctx, data.OrderNo)
	if err != nil {
		return "", err
	}
	if order == nil {
		return p.unmatchedCallback(ctx, method, nil, data, metadata, "no order with this number")
	}

	var txn *models.PaymentTransaction
	if data.ExternalTransactionID != "" {
		// the provider id pins the outcome to the transaction it already settled
		known, err := p.txnRepo.ByExternalTransactionID(ctx, order.ID, method, data.ExternalTransactionID)
		if err != nil {
			return "", err
		}
		if known != nil && known.Status.IsTerminal() {
			return callbackResultDuplicate, nil
		}
		txn = known
	}
	if txn == nil {
		txn, err = p.txnRepo.LatestPending(ctx, order.ID, method)
		if err != nil {
			return "", err
		}
	}
	if txn == nil {
		return p.unmatchedCallback(ctx, method, order, data, metadata, "no pending transaction")
	}

	now := utils.UTCNow()
	updates := map[string]any{
		"callback_data": toJSON(data.Raw),
		"completed_at":  now,
	}
	if data.ExternalTransactionID != "" {
		updates["external_transaction_id"] = data.ExternalTransactionID
	}
	extra := map[string]any{
		"order_no":                order.OrderNo,
		"transaction_no":          txn.TransactionNo,
		"payment_method":          method,
		"external_transaction_id": data.ExternalTransactionID,
	}

	if data.Status == services.CallbackStatusFailed {
		updates["error_code"] = "PAYMENT_FAILED"
		updates["error_message"] = "provider reported the payment as failed"
		if err := p.completeTransaction(ctx, txn.ID, models.PaymentTransactionStatusFailed, updates); err != nil {
			return "", err
		}
		msg := fmt.Sprintf("Provider reported payment %s of order %s as failed", txn.TransactionNo, order.OrderNo)
		_ = createAuditLog(ctx, p.auditRepo, &order.UserID, models.AuditActionPaymentCallback, msg, true, nil, metadata, extra)
		return callbackResultFailed, nil
	}

	if !data.Amount.Equal(txn.Amount) {
		updates["error_code"] = "AMOUNT_MISMATCH"
		updates["error_message"] = fmt.Sprintf("provider reported %s, expected %s", data.Amount, txn.Amount)
		if err := p.completeTransaction(ctx, txn.ID, models.PaymentTransactionStatusFailed, updates); err != nil {
			return "", err
		}
		errMsg := updates["error_message"].(string)
		_ = createAuditLog(ctx, p.auditRepo, &order.UserID, models.AuditActionPaymentCallbackFailed,
			fmt.Sprintf("Amount mismatch on payment %s of order %s", txn.TransactionNo, order.OrderNo), false, &errMsg, metadata, extra)
		p.logger.Error("callback amount mismatch",
			zap.String("order_no", order.OrderNo),
			zap.String("transaction_no", txn.TransactionNo),
			zap.String("reported", data.Amount.String()),
			zap.String("expected", txn.Amount.String()),
		)
		return callbackResultAmountMismatch, nil
	}

	paidAt := now
	if data.PaidAt != nil {
		paidAt = *data.PaidAt
	}

	closedOrder := false
	err = repository.WithTransaction(ctx, p.db, func(txCtx context.Context) error {
		if err := p.completeTransaction(txCtx, txn.ID, models.PaymentTransactionStatusSuccess, updates); err != nil {
			return err
		}
		current, err := p.orderRepo.ByID(txCtx, order.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrOrderNotFound
		}
		if current.Status != models.PaymentOrderStatusPending {
			closedOrder = true
			return nil
		}
		return p.markOrderPaid(txCtx, current, txn, paidAt)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another transaction already settled with this provider id
		return callbackResultDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	if closedOrder {
		// money arrived for an order that can no longer be paid; needs a manual refund
		errMsg := "payment received for an order that is no longer pending"
		_ = createAuditLog(ctx, p.auditRepo, &order.UserID, models.AuditActionPaymentAfterCancel,
			fmt.Sprintf("Payment %s settled for closed order %s", txn.TransactionNo, order.OrderNo), false, &errMsg, metadata, extra)
		p.logger.Error("payment settled for closed order",
			zap.String("order_no", order.OrderNo),
			zap.String("transaction_no", txn.TransactionNo),
		)
		return callbackResultSuccess, nil
	}

	msg := fmt.Sprintf("Payment %s of order %s confirmed by %s", txn.TransactionNo, order.OrderNo, method)
	_ = createAuditLog(ctx, p.auditRepo, &order.UserID, models.AuditActionPaymentCallback, msg, true, nil, metadata, extra)
	return callbackResultSuccess, nil
}

// unmatchedCallback records a verified outcome that no pending transaction can absorb. The
// delivery is acknowledged so the provider stops retrying; the audit row is the alert.
func (p *PaymentFlowImpl) unmatchedCallback(ctx context.Context, method models.PaymentMethod, order *models.PaymentOrder, data *services.PaymentCallbackData, metadata *ClientMetadata, reason string) (string, error) {
	var userID *uuid.UUID
	if order != nil {
		userID = &order.UserID
	}
	errMsg := fmt.Sprintf("%s %s notification matched nothing: %s", data.Status, method, reason)
	_ = createAuditLog(ctx, p.auditRepo, userID, models.AuditActionPaymentUnmatched,
		fmt.Sprintf("Unmatched %s notification for order %s", method, data.OrderNo), false, &errMsg, metadata,
		map[string]any{
			"payment_method":          method,
			"order_no":                data.OrderNo,
			"external_transaction_id": data.ExternalTransactionID,
			"status":                  data.Status,
			"amount":                  data.Amount.String(),
		})
	p.logger.Error("unmatched payment notification",
		zap.String("payment_method", method.String()),
		zap.String("order_no", data.OrderNo),
		zap.String("external_transaction_id", data.ExternalTransactionID),
		zap.String("reason", reason),
	)
	return callbackResultUnmatched, nil
}

func (p *PaymentFlowImpl) completeTransaction(ctx context.Context, id uint, status models.PaymentTransactionStatus, updates map[string]any) error {
	ok, err := p.txnRepo.Complete(ctx, id, status, updates)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConcurrentUpdate
	}
	return nil
}

// acquireCallbackLock serializes deliveries for one order. Without redis, or when redis is
// unreachable, the conditional updates alone guard the rows.
func (p *PaymentFlowImpl) acquireCallbackLock(ctx context.Context, method models.PaymentMethod, orderNo string) (func(), error) {
	noop := func() {}
	if p.cache == nil {
		return noop, nil
	}

	ttl := p.paymentCfg.CallbackLockTTL
	if ttl <= 0 {
		ttl = defaultCallbackLockTTL
	}
	key := fmt.Sprintf("%spayment:callback:%s:%s", p.cachePrefix, method, orderNo)
	token := uuid.NewString()

	acquired, err := p.cache.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		p.logger.Warn("callback lock unavailable", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	if !acquired {
		return nil, ErrCallbackInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, p.cache, []string{key}, token).Err(); err != nil && err != redis.Nil {
			p.logger.Warn("failed to release callback lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
