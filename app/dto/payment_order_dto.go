package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePaymentOrderRequest represents the request to open a payment order.
// Amount may be omitted, in which case the current price of the order type applies.
type CreatePaymentOrderRequest struct {
	OrderType     string           `json:"order_type" validate:"required,oneof=consultation prescription medicine other"`
	Amount        *decimal.Decimal `json:"amount,omitempty" swaggertype:"string" validate:"omitempty,decimal_gt0"`
	AppointmentID *string          `json:"appointment_id,omitempty" validate:"omitempty,uuid"`
	Description   *string          `json:"description,omitempty" validate:"omitempty,max=500"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// PaymentOrderResponse is the public view of an order
type PaymentOrderResponse struct {
	UUID          string          `json:"uuid"`
	OrderNo       string          `json:"order_no"`
	UserID        string          `json:"user_id"`
	AppointmentID *string         `json:"appointment_id,omitempty"`
	OrderType     string          `json:"order_type"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	PaymentTime   *time.Time      `json:"payment_time,omitempty"`
	ExpireTime    time.Time       `json:"expire_time"`
	Description   *string         `json:"description,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ListPaymentOrdersRequest carries the typed list filter; dates are YYYY-MM-DD
type ListPaymentOrdersRequest struct {
	UserID    *string `query:"user_id" json:"user_id,omitempty" validate:"omitempty,uuid"`
	Status    *string `query:"status" json:"status,omitempty" validate:"omitempty,oneof=pending paid cancelled refunded partial_refunded"`
	OrderType *string `query:"order_type" json:"order_type,omitempty" validate:"omitempty,oneof=consultation prescription medicine other"`
	StartDate *string `query:"start_date" json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `query:"end_date" json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Page      int     `query:"page" json:"page" validate:"omitempty,min=1"`
	PageSize  int     `query:"page_size" json:"page_size" validate:"omitempty,min=1,max=100"`
}

type ListPaymentOrdersResponse struct {
	Items      []PaymentOrderResponse `json:"items"`
	Pagination PaginationInfo         `json:"pagination"`
}

// InitiatePaymentRequest selects the payment method for a pending order
type InitiatePaymentRequest struct {
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=alipay wechat balance bank_card"`
	TradeType     *string `json:"trade_type,omitempty" validate:"omitempty,oneof=page wap native jsapi app"`
	ReturnURL     *string `json:"return_url,omitempty" validate:"omitempty,url,max=512"`
	OpenID        *string `json:"openid,omitempty" validate:"omitempty,max=128"`
}

// InitiatePaymentResponse carries what the client needs to complete payment
type InitiatePaymentResponse struct {
	OrderNo       string            `json:"order_no"`
	TransactionNo string            `json:"transaction_no"`
	PaymentMethod string            `json:"payment_method"`
	Status        string            `json:"status"` // transaction status
	OrderStatus   string            `json:"order_status"`
	PaymentURL    string            `json:"payment_url,omitempty"`
	QRCode        string            `json:"qr_code,omitempty"`
	PrepayID      string            `json:"prepay_id,omitempty"`
	ClientParams  map[string]string `json:"client_params,omitempty"`
}

// PaymentStatisticsRequest narrows statistics; non-admin callers are forced to themselves
type PaymentStatisticsRequest struct {
	UserID    *string `query:"user_id" json:"user_id,omitempty" validate:"omitempty,uuid"`
	StartDate *string `query:"start_date" json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `query:"end_date" json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type PaymentStatisticsResponse struct {
	TotalOrders    int64           `json:"total_orders"`
	TotalAmount    decimal.Decimal `json:"total_amount" swaggertype:"string"`
	PaidOrders     int64           `json:"paid_orders"`
	PaidAmount     decimal.Decimal `json:"paid_amount" swaggertype:"string"`
	RefundedOrders int64           `json:"refunded_orders"`
	RefundedAmount decimal.Decimal `json:"refunded_amount" swaggertype:"string"`
}

// PaymentTransactionResponse is the public view of a transaction
type PaymentTransactionResponse struct {
	UUID                  string          `json:"uuid"`
	TransactionNo         string          `json:"transaction_no"`
	OrderNo               string          `json:"order_no,omitempty"`
	PaymentMethod         string          `json:"payment_method"`
	TransactionType       string          `json:"transaction_type"`
	Amount                decimal.Decimal `json:"amount" swaggertype:"string"`
	Status                string          `json:"status"`
	ExternalTransactionID *string         `json:"external_transaction_id,omitempty"`
	ErrorCode             *string         `json:"error_code,omitempty"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
	InitiatedAt           time.Time       `json:"initiated_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

// ReconcileTransactionResponse reports the outcome of a provider status query
type ReconcileTransactionResponse struct {
	Transaction    PaymentTransactionResponse `json:"transaction"`
	ProviderStatus string                     `json:"provider_status"`
	Applied        bool                       `json:"applied"`
}
