package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentTransactionType distinguishes payment attempts from refund settlements
type PaymentTransactionType string

const (
	PaymentTransactionTypePayment PaymentTransactionType = "payment"
	PaymentTransactionTypeRefund  PaymentTransactionType = "refund"
)

// PaymentTransactionStatus represents the state of a single money movement
type PaymentTransactionStatus string

const (
	PaymentTransactionStatusPending PaymentTransactionStatus = "pending"
	PaymentTransactionStatusSuccess PaymentTransactionStatus = "success"
	PaymentTransactionStatusFailed  PaymentTransactionStatus = "failed"
)

func (s PaymentTransactionStatus) IsTerminal() bool {
	return s == PaymentTransactionStatusSuccess || s == PaymentTransactionStatusFailed
}

// PaymentTransaction is one attempted money movement tied to an order
type PaymentTransaction struct {
	ID              uint                     `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID            uuid.UUID                `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	TransactionNo   string                   `gorm:"type:varchar(32);uniqueIndex;not null" json:"transaction_no"`
	OrderID         uint                     `gorm:"not null;index" json:"order_id"`
	UserID          uuid.UUID                `gorm:"type:uuid;not null;index" json:"user_id"`
	PaymentMethod   PaymentMethod            `gorm:"type:varchar(20);not null" json:"payment_method"`
	TransactionType PaymentTransactionType   `gorm:"type:varchar(20);not null" json:"transaction_type"`
	Amount          decimal.Decimal          `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status          PaymentTransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Gateway correlation
	PrepayID              *string `gorm:"type:varchar(128)" json:"prepay_id,omitempty"`
	TradeNo               *string `gorm:"type:varchar(128)" json:"trade_no,omitempty"`
	ExternalTransactionID *string `gorm:"type:varchar(128);index" json:"external_transaction_id,omitempty"`

	// Raw payloads
	RequestData  datatypes.JSON `gorm:"type:jsonb" json:"request_data,omitempty"`
	ResponseData datatypes.JSON `gorm:"type:jsonb" json:"response_data,omitempty"`
	CallbackData datatypes.JSON `gorm:"type:jsonb" json:"callback_data,omitempty"`

	ErrorCode    *string `gorm:"type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	InitiatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Order *PaymentOrder `gorm:"foreignKey:OrderID" json:"-"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// BeforeCreate ensures UUID is set
func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return nil
}

// PaymentTransactionFilter represents filter criteria for transaction queries
type PaymentTransactionFilter struct {
	ID                    *uint                     `json:"id,omitempty"`
	UUID                  *uuid.UUID                `json:"uuid,omitempty"`
	OrderID               *uint                     `json:"order_id,omitempty"`
	UserID                *uuid.UUID                `json:"user_id,omitempty"`
	PaymentMethod         *PaymentMethod            `json:"payment_method,omitempty"`
	TransactionType       *PaymentTransactionType   `json:"transaction_type,omitempty"`
	Status                *PaymentTransactionStatus `json:"status,omitempty"`
	ExternalTransactionID *string                   `json:"external_transaction_id,omitempty"`
	InitiatedBefore       *time.Time                `json:"initiated_before,omitempty"`
}
