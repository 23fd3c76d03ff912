package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRefundRequest represents a refund request against a paid order
type CreateRefundRequest struct {
	OrderUUID    string          `json:"order_uuid" validate:"required,uuid"`
	RefundAmount decimal.Decimal `json:"refund_amount" swaggertype:"string" validate:"decimal_gt0"`
	RefundReason string          `json:"refund_reason" validate:"required,min=2,max=500"`
}

// ReviewRefundRequest approves or rejects a pending refund
type ReviewRefundRequest struct {
	Approved    *bool   `json:"approved" validate:"required"`
	ReviewNotes *string `json:"review_notes,omitempty" validate:"omitempty,max=500"`
}

// RefundResponse is the public view of a refund record
type RefundResponse struct {
	UUID             string          `json:"uuid"`
	RefundNo         string          `json:"refund_no"`
	OrderNo          string          `json:"order_no,omitempty"`
	UserID           string          `json:"user_id"`
	RequestedBy      string          `json:"requested_by"`
	RefundAmount     decimal.Decimal `json:"refund_amount" swaggertype:"string"`
	RefundReason     string          `json:"refund_reason"`
	Status           string          `json:"status"`
	ReviewedBy       *string         `json:"reviewed_by,omitempty"`
	ReviewNotes      *string         `json:"review_notes,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	ExternalRefundID *string         `json:"external_refund_id,omitempty"`
	FailureReason    *string         `json:"failure_reason,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
