package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       *uuid.UUID     `gorm:"type:uuid;index:idx_audit_user_id" json:"user_id,omitempty"`
	Action       string         `gorm:"type:varchar(64);not null;index:idx_audit_action" json:"action"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string        `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent    *string        `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string        `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool          `gorm:"default:true" json:"success"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionOrderCreated          = "payment_order_created"
	AuditActionOrderCancelled        = "payment_order_cancelled"
	AuditActionPaymentInitiated      = "payment_initiated"
	AuditActionPaymentInitiateFailed = "payment_initiate_failed"
	AuditActionPaymentCallback       = "payment_callback_processed"
	AuditActionPaymentCallbackFailed = "payment_callback_failed"
	AuditActionPaymentAfterCancel    = "payment_received_for_closed_order"
	AuditActionPaymentUnmatched      = "payment_notification_unmatched"
	AuditActionRefundRequested       = "refund_requested"
	AuditActionRefundApproved        = "refund_approved"
	AuditActionRefundRejected        = "refund_rejected"
	AuditActionRefundFailed          = "refund_failed"
	AuditActionBalanceAdjusted       = "balance_adjusted"
	AuditActionGatewayConfigUpdated  = "gateway_config_updated"
	AuditActionTransactionReconciled = "transaction_reconciled"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	UserID        *uuid.UUID
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
