package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundStatus represents the review and settlement state of a refund
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSuccess    RefundStatus = "success"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled" // rejected by reviewer
)

// OpenRefundStatuses are the states that block another refund on the same order
var OpenRefundStatuses = []RefundStatus{RefundStatusPending, RefundStatusProcessing}

// RefundRecord is a request to return money for a paid order
type RefundRecord struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID             uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	RefundNo         string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"refund_no"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	TransactionID    uint            `gorm:"not null" json:"transaction_id"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	RequestedBy      uuid.UUID       `gorm:"type:uuid;not null" json:"requested_by"`
	RefundAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"refund_amount"`
	RefundReason     string          `gorm:"type:text;not null" json:"refund_reason"`
	Status           RefundStatus    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewedBy       *uuid.UUID      `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes      *string         `gorm:"type:text" json:"review_notes,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	ExternalRefundID *string         `gorm:"type:varchar(128)" json:"external_refund_id,omitempty"`
	FailureReason    *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Order *PaymentOrder `gorm:"foreignKey:OrderID" json:"-"`
}

func (RefundRecord) TableName() string {
	return "refund_records"
}

// BeforeCreate ensures UUID is set
func (r *RefundRecord) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	return nil
}

// RefundRecordFilter represents filter criteria for refund queries
type RefundRecordFilter struct {
	ID       *uint          `json:"id,omitempty"`
	UUID     *uuid.UUID     `json:"uuid,omitempty"`
	OrderID  *uint          `json:"order_id,omitempty"`
	UserID   *uuid.UUID     `json:"user_id,omitempty"`
	Status   *RefundStatus  `json:"status,omitempty"`
	Statuses []RefundStatus `json:"statuses,omitempty"`
}
