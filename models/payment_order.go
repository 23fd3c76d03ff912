package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderType is the kind of platform service an order pays for
type OrderType string

const (
	OrderTypeConsultation OrderType = "consultation"
	OrderTypePrescription OrderType = "prescription"
	OrderTypeMedicine     OrderType = "medicine"
	OrderTypeOther        OrderType = "other"
)

func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeConsultation, OrderTypePrescription, OrderTypeMedicine, OrderTypeOther:
		return true
	}
	return false
}

// PaymentOrderStatus represents the lifecycle state of an order
type PaymentOrderStatus string

const (
	PaymentOrderStatusPending         PaymentOrderStatus = "pending"
	PaymentOrderStatusPaid            PaymentOrderStatus = "paid"
	PaymentOrderStatusCancelled       PaymentOrderStatus = "cancelled"
	PaymentOrderStatusRefunded        PaymentOrderStatus = "refunded"
	PaymentOrderStatusPartialRefunded PaymentOrderStatus = "partial_refunded"
)

var orderTransitions = map[PaymentOrderStatus][]PaymentOrderStatus{
	PaymentOrderStatusPending: {PaymentOrderStatusPaid, PaymentOrderStatusCancelled},
	PaymentOrderStatusPaid:    {PaymentOrderStatusRefunded, PaymentOrderStatusPartialRefunded},
}

// CanTransitionTo reports whether next is a legal successor of s
func (s PaymentOrderStatus) CanTransitionTo(next PaymentOrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s PaymentOrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// PaymentOrder is a priced request to consume a platform service
type PaymentOrder struct {
	ID            uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID          `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	OrderNo       string             `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_no"`
	UserID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	AppointmentID *uuid.UUID         `gorm:"type:uuid;index" json:"appointment_id,omitempty"`
	OrderType     OrderType          `gorm:"type:varchar(20);not null;index" json:"order_type"`
	Amount        decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string             `gorm:"type:varchar(3);not null;default:'CNY'" json:"currency"`
	Status        PaymentOrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod *PaymentMethod     `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	PaymentTime   *time.Time         `json:"payment_time,omitempty"`
	ExpireTime    time.Time          `gorm:"not null" json:"expire_time"`
	Description   *string            `gorm:"type:text" json:"description,omitempty"`
	Metadata      datatypes.JSON     `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// BeforeCreate ensures UUID is set
func (o *PaymentOrder) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == uuid.Nil {
		o.UUID = uuid.New()
	}
	return nil
}

// IsExpiredAt reports whether the payment window closed before now
func (o *PaymentOrder) IsExpiredAt(now time.Time) bool {
	return now.After(o.ExpireTime)
}

// IsOwnedBy reports whether userID owns the order
func (o *PaymentOrder) IsOwnedBy(userID uuid.UUID) bool {
	return o.UserID == userID
}

// PaymentOrderFilter represents filter criteria for order queries
type PaymentOrderFilter struct {
	ID            *uint               `json:"id,omitempty"`
	UUID          *uuid.UUID          `json:"uuid,omitempty"`
	OrderNo       *string             `json:"order_no,omitempty"`
	UserID        *uuid.UUID          `json:"user_id,omitempty"`
	AppointmentID *uuid.UUID          `json:"appointment_id,omitempty"`
	Status        *PaymentOrderStatus `json:"status,omitempty"`
	OrderType     *OrderType          `json:"order_type,omitempty"`
	CreatedAfter  *time.Time          `json:"created_after,omitempty"`
	CreatedBefore *time.Time          `json:"created_before,omitempty"`
}

// PaymentStatistics aggregates order counts and sums by status
type PaymentStatistics struct {
	TotalOrders    int64           `json:"total_orders"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidOrders     int64           `json:"paid_orders"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	RefundedOrders int64           `json:"refunded_orders"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
}
