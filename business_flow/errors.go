// Package businessflow contains the payment, refund and wallet use cases of the engine
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Not found
	ErrOrderNotFound       = errors.New("payment order not found")
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrRefundNotFound      = errors.New("refund record not found")
	ErrBalanceNotFound     = errors.New("user balance not found")
	ErrPriceConfigNotFound = errors.New("price config not found")

	// Invalid state
	ErrInvalidOrderState  = errors.New("order is not in a valid state for this operation")
	ErrInvalidRefundState = errors.New("refund is not in a valid state for this operation")
	ErrRefundInProgress   = errors.New("another refund is already in progress for this order")

	// Expired
	ErrOrderExpired = errors.New("payment order has expired")

	// Conflict
	ErrConcurrentUpdate   = errors.New("record was modified concurrently")
	ErrCallbackInProgress = errors.New("callback for this order is already being processed")

	ErrForbidden = errors.New("operation not permitted for caller")

	ErrInsufficientFunds = errors.New("insufficient funds")

	// Validation
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrRefundAmountExceedsOrder = errors.New("refund amount exceeds order amount")
	ErrUnsupportedPaymentMethod = errors.New("payment method is not supported")
	ErrInvalidLedgerOperation   = errors.New("invalid balance transaction type")
	ErrInvalidFilter            = errors.New("invalid filter")
	ErrInvalidOrderType         = errors.New("order type is not supported")
	ErrInvalidConfigKey         = errors.New("config key is not recognised for this gateway")
	ErrEncryptionUnavailable    = errors.New("config encryption key is not configured")

	// Gateway
	ErrExternalGateway             = errors.New("external payment gateway error")
	ErrGatewayNotConfigured        = errors.New("payment gateway is not configured")
	ErrSignatureVerificationFailed = errors.New("gateway signature verification failed")

	ErrLedgerOutsideTransaction = errors.New("balance mutation requires an active transaction")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// ErrorCode returns the code of the outermost BusinessError in err's chain
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

func IsRefundNotFound(err error) bool {
	return errors.Is(err, ErrRefundNotFound)
}

func IsBalanceNotFound(err error) bool {
	return errors.Is(err, ErrBalanceNotFound)
}

func IsPriceConfigNotFound(err error) bool {
	return errors.Is(err, ErrPriceConfigNotFound)
}

// IsNotFound reports any of the not found sentinels
func IsNotFound(err error) bool {
	return IsOrderNotFound(err) || IsTransactionNotFound(err) || IsRefundNotFound(err) ||
		IsBalanceNotFound(err) || IsPriceConfigNotFound(err)
}

func IsInvalidOrderState(err error) bool {
	return errors.Is(err, ErrInvalidOrderState)
}

func IsInvalidRefundState(err error) bool {
	return errors.Is(err, ErrInvalidRefundState)
}

func IsRefundInProgress(err error) bool {
	return errors.Is(err, ErrRefundInProgress)
}

func IsInvalidState(err error) bool {
	return IsInvalidOrderState(err) || IsInvalidRefundState(err) || IsRefundInProgress(err)
}

func IsOrderExpired(err error) bool {
	return errors.Is(err, ErrOrderExpired)
}

func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

func IsCallbackInProgress(err error) bool {
	return errors.Is(err, ErrCallbackInProgress)
}

func IsConflict(err error) bool {
	return IsConcurrentUpdate(err) || IsCallbackInProgress(err)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

func IsRefundAmountExceedsOrder(err error) bool {
	return errors.Is(err, ErrRefundAmountExceedsOrder)
}

func IsUnsupportedPaymentMethod(err error) bool {
	return errors.Is(err, ErrUnsupportedPaymentMethod)
}

func IsInvalidLedgerOperation(err error) bool {
	return errors.Is(err, ErrInvalidLedgerOperation)
}

func IsInvalidFilter(err error) bool {
	return errors.Is(err, ErrInvalidFilter)
}

func IsInvalidOrderType(err error) bool {
	return errors.Is(err, ErrInvalidOrderType)
}

func IsInvalidConfigKey(err error) bool {
	return errors.Is(err, ErrInvalidConfigKey)
}

func IsEncryptionUnavailable(err error) bool {
	return errors.Is(err, ErrEncryptionUnavailable)
}

func IsValidationError(err error) bool {
	return IsInvalidAmount(err) || IsRefundAmountExceedsOrder(err) || IsUnsupportedPaymentMethod(err) ||
		IsInvalidLedgerOperation(err) || IsInvalidFilter(err) || IsInvalidOrderType(err) ||
		IsInvalidConfigKey(err) || IsEncryptionUnavailable(err)
}

func IsExternalGateway(err error) bool {
	return errors.Is(err, ErrExternalGateway) || errors.Is(err, ErrGatewayNotConfigured)
}

func IsGatewayNotConfigured(err error) bool {
	return errors.Is(err, ErrGatewayNotConfigured)
}

func IsSignatureVerificationFailed(err error) bool {
	return errors.Is(err, ErrSignatureVerificationFailed)
}

func IsLedgerOutsideTransaction(err error) bool {
	return errors.Is(err, ErrLedgerOutsideTransaction)
}
