package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ClientMetadata holds client information recorded on audit entries
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// Caller is the authenticated principal as asserted by the identity token
type Caller struct {
	UserID uuid.UUID
	Role   string
}

// SystemCaller acts on behalf of background workers
var SystemCaller = Caller{Role: services.RoleAdmin}

func (c Caller) IsAdmin() bool {
	return c.Role == services.RoleAdmin
}

// actorID is the audit actor; nil for SystemCaller
func (c Caller) actorID() *uuid.UUID {
	if c.UserID == uuid.Nil {
		return nil
	}
	id := c.UserID
	return &id
}

// CanAccess reports whether the caller may read or act on a resource of owner
func (c Caller) CanAccess(owner uuid.UUID) bool {
	return c.IsAdmin() || c.UserID == owner
}

// scopeUser resolves the user a list or statistics query runs for. Non-admins are
// always scoped to themselves.
func (c Caller) scopeUser(requested *string) (*uuid.UUID, error) {
	if !c.IsAdmin() {
		id := c.UserID
		return &id, nil
	}
	if requested == nil || *requested == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*requested)
	if err != nil {
		return nil, fmt.Errorf("%w: user_id", ErrInvalidFilter)
	}
	return &id, nil
}

// dateRange converts inclusive YYYY-MM-DD bounds into a half-open created_at window
func dateRange(start, end *string) (*time.Time, *time.Time, error) {
	from, err := utils.ParseDatePtr(utils.Deref(start))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: start_date", ErrInvalidFilter)
	}
	to, err := utils.ParseDatePtr(utils.Deref(end))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: end_date", ErrInvalidFilter)
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, fmt.Errorf("%w: start_date after end_date", ErrInvalidFilter)
	}
	return from, to, nil
}

// validateMoney accepts positive amounts with at most two decimal places
func validateMoney(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}

// isTimeout reports whether err is a deadline or network timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func fromJSON(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// createAuditLog writes an audit entry; callers ignore its error so auditing never
// fails the business operation
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, userID *uuid.UUID, action, description string, success bool, errorMsg *string, metadata *ClientMetadata, extra map[string]any) error {
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
		Metadata:     toJSON(extra),
	}

	// Extract request ID from context if available
	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = &metadata.RequestID
	}

	return auditRepo.Save(ctx, audit)
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func ToPaymentOrderResponse(o *models.PaymentOrder) dto.PaymentOrderResponse {
	resp := dto.PaymentOrderResponse{
		UUID:          o.UUID.String(),
		OrderNo:       o.OrderNo,
		UserID:        o.UserID.String(),
		AppointmentID: uuidString(o.AppointmentID),
		OrderType:     string(o.OrderType),
		Amount:        o.Amount,
		Currency:      o.Currency,
		Status:        string(o.Status),
		PaymentTime:   o.PaymentTime,
		ExpireTime:    o.ExpireTime,
		Description:   o.Description,
		Metadata:      fromJSON(o.Metadata),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaymentMethod != nil {
		resp.PaymentMethod = utils.ToPtr(o.PaymentMethod.String())
	}
	return resp
}

func ToPaymentTransactionResponse(t *models.PaymentTransaction, orderNo string) dto.PaymentTransactionResponse {
	return dto.PaymentTransactionResponse{
		UUID:                  t.UUID.String(),
		TransactionNo:         t.TransactionNo,
		OrderNo:               orderNo,
		PaymentMethod:         t.PaymentMethod.String(),
		TransactionType:       string(t.TransactionType),
		Amount:                t.Amount,
		Status:                string(t.Status),
		ExternalTransactionID: t.ExternalTransactionID,
		ErrorCode:             t.ErrorCode,
		ErrorMessage:          t.ErrorMessage,
		InitiatedAt:           t.InitiatedAt,
		CompletedAt:           t.CompletedAt,
	}
}

func ToRefundResponse(r *models.RefundRecord, orderNo string) dto.RefundResponse {
	return dto.RefundResponse{
		UUID:             r.UUID.String(),
		RefundNo:         r.RefundNo,
		OrderNo:          orderNo,
		UserID:           r.UserID.String(),
		RequestedBy:      r.RequestedBy.String(),
		RefundAmount:     r.RefundAmount,
		RefundReason:     r.RefundReason,
		Status:           string(r.Status),
		ReviewedBy:       uuidString(r.ReviewedBy),
		ReviewNotes:      r.ReviewNotes,
		ReviewedAt:       r.ReviewedAt,
		ExternalRefundID: r.ExternalRefundID,
		FailureReason:    r.FailureReason,
		CompletedAt:      r.CompletedAt,
		CreatedAt:        r.CreatedAt,
	}
}

func ToUserBalanceResponse(b *models.UserBalance) dto.UserBalanceResponse {
	return dto.UserBalanceResponse{
		UserID:        b.UserID.String(),
		Balance:       b.Balance,
		FrozenBalance: b.FrozenBalance,
		TotalIncome:   b.TotalIncome,
		TotalExpense:  b.TotalExpense,
		UpdatedAt:     b.UpdatedAt,
	}
}

func ToBalanceTransactionResponse(t *models.BalanceTransaction) dto.BalanceTransactionResponse {
	return dto.BalanceTransactionResponse{
		UUID:            t.UUID.String(),
		TransactionType: string(t.TransactionType),
		Amount:          t.Amount,
		BalanceBefore:   t.BalanceBefore,
		BalanceAfter:    t.BalanceAfter,
		RelatedType:     t.RelatedType,
		RelatedID:       uuidString(t.RelatedID),
		Description:     t.Description,
		CreatedAt:       t.CreatedAt,
	}
}

func ToPriceConfigResponse(p *models.PriceConfig) dto.PriceConfigResponse {
	resp := dto.PriceConfigResponse{
		ServiceType:    p.ServiceType,
		Price:          p.Price,
		DiscountPrice:  p.DiscountPrice,
		EffectivePrice: p.EffectivePrice(),
		Description:    p.Description,
	}
	if p.EffectiveDate != nil {
		resp.EffectiveDate = utils.ToPtr(p.EffectiveDate.Format(utils.DateLayout))
	}
	if p.ExpiryDate != nil {
		resp.ExpiryDate = utils.ToPtr(p.ExpiryDate.Format(utils.DateLayout))
	}
	return resp
}
