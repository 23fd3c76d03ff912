package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/services"
	"github.com/amirphl/medipay/config"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/repository"
	"github.com/amirphl/medipay/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentFlow handles the order lifecycle, payment initiation and gateway callbacks
type PaymentFlow interface {
	CreateOrder(ctx context.Context, caller Caller, req *dto.CreatePaymentOrderRequest, metadata *ClientMetadata) (*dto.PaymentOrderResponse, error)
	GetOrder(ctx context.Context, caller Caller, orderUUID string) (*dto.PaymentOrderResponse, error)
	GetOrderByNumber(ctx context.Context, caller Caller, orderNo string) (*dto.PaymentOrderResponse, error)
	ListOrders(ctx context.Context, caller Caller, req *dto.ListPaymentOrdersRequest) (*dto.ListPaymentOrdersResponse, error)
	CancelOrder(ctx context.Context, caller Caller, orderUUID string, metadata *ClientMetadata) (*dto.PaymentOrderResponse, error)
	InitiatePayment(ctx context.Context, caller Caller, orderUUID string, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error)
	HandlePaymentCallback(ctx context.Context, method models.PaymentMethod, data *services.PaymentCallbackData, metadata *ClientMetadata) error
	HandleGatewayNotification(ctx context.Context, method models.PaymentMethod, body []byte, metadata *ClientMetadata) error
	NotificationAck(method models.PaymentMethod, success bool) (string, []byte)
	GetStatistics(ctx context.Context, caller Caller, req *dto.PaymentStatisticsRequest) (*dto.PaymentStatisticsResponse, error)
	ReconcileTransaction(ctx context.Context, caller Caller, transactionUUID string, metadata *ClientMetadata) (*dto.ReconcileTransactionResponse, error)
	ExportOrders(ctx context.Context, caller Caller, req *dto.ExportPaymentOrdersRequest) (string, []byte, error)
}

// ReconcileScheduler queues a delayed provider status query for a pending gateway transaction
type ReconcileScheduler interface {
	ScheduleReconcile(ctx context.Context, transactionUUID uuid.UUID) error
}

// PaymentFlowImpl implements the payment business flow
type PaymentFlowImpl struct {
	orderRepo       repository.PaymentOrderRepository
	txnRepo         repository.PaymentTransactionRepository
	appointmentRepo repository.AppointmentRepository
	auditRepo       repository.AuditLogRepository
	ledger          BalanceLedger
	prices          PriceResolver
	credentials     CredentialSource
	gateways        map[models.PaymentMethod]services.PaymentGateway
	reconciler      ReconcileScheduler
	cache           *redis.Client
	db              *gorm.DB
	logger          *zap.Logger

	paymentCfg  config.PaymentConfig
	cachePrefix string
}

// NewPaymentFlow creates a new payment flow instance. reconciler and cache may be nil.
func NewPaymentFlow(
	orderRepo repository.PaymentOrderRepository,
	txnRepo repository.PaymentTransactionRepository,
	appointmentRepo repository.AppointmentRepository,
	auditRepo repository.AuditLogRepository,
	ledger BalanceLedger,
	prices PriceResolver,
	credentials CredentialSource,
	gateways []services.PaymentGateway,
	reconciler ReconcileScheduler,
	cache *redis.Client,
	db *gorm.DB,
	paymentCfg config.PaymentConfig,
	cacheCfg config.CacheConfig,
	logger *zap.Logger,
) PaymentFlow {
	byMethod := make(map[models.PaymentMethod]services.PaymentGateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}
	return &PaymentFlowImpl{
		orderRepo:       orderRepo,
		txnRepo:         txnRepo,
		appointmentRepo: appointmentRepo,
		auditRepo:       auditRepo,
		ledger:          ledger,
		prices:          prices,
		credentials:     credentials,
		gateways:        byMethod,
		reconciler:      reconciler,
		cache:           cache,
		db:              db,
		logger:          logger,
		paymentCfg:      paymentCfg,
		cachePrefix:     cacheCfg.RedisPrefix,
	}
}

func (p *PaymentFlowImpl) orderTTL() time.Duration {
	if p.paymentCfg.OrderTTL > 0 {
		return p.paymentCfg.OrderTTL
	}
	return utils.DefaultOrderTTL
}

// CreateOrder opens a pending order for the caller. A missing amount is taken from the
// current price of the order type.
func (p *PaymentFlowImpl) CreateOrder(ctx context.Context, caller Caller, req *dto.CreatePaymentOrderRequest, metadata *ClientMetadata) (*dto.PaymentOrderResponse, error) {
	orderType := models.OrderType(req.OrderType)
	if !orderType.IsValid() {
		return nil, NewBusinessError("CREATE_ORDER_FAILED", "Invalid order type", ErrInvalidOrderType)
	}

	var amount decimal.Decimal
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		price, err := p.prices.CurrentPrice(ctx, string(orderType))
		if err != nil {
			return nil, NewBusinessError("CREATE_ORDER_FAILED", "No price configured for order type", err)
		}
		amount = price.EffectivePrice()
	}
	if err := validateMoney(amount); err != nil {
		return nil, NewBusinessError("CREATE_ORDER_FAILED", "Invalid order amount", err)
	}

	var appointmentID *uuid.UUID
	if req.AppointmentID != nil && *req.AppointmentID != "" {
		id, err := uuid.Parse(*req.AppointmentID)
		if err != nil {
			return nil, NewBusinessError("CREATE_ORDER_FAILED", "Invalid appointment id", fmt.Errorf("%w: appointment_id", ErrInvalidFilter))
		}
		appointmentID = &id
	}

	now := utils.UTCNow()
	metadataJSON := toJSON(req.Metadata)
	if len(metadataJSON) == 0 || string(metadataJSON) == "null" {
		metadataJSON = toJSON(map[string]any{})
	}
	order := &models.PaymentOrder{
		OrderNo:       utils.NewSerialNumber(utils.OrderNumberPrefix, now),
		UserID:        caller.UserID,
		AppointmentID: appointmentID,
		OrderType:     orderType,
		Amount:        amount,
		Currency:      utils.DefaultCurrency,
		Status:        models.PaymentOrderStatusPending,
		ExpireTime:    now.Add(p.orderTTL()),
		Description:   req.Description,
		Metadata:      metadataJSON,
	}

	if err := p.orderRepo.Save(ctx, order); err != nil {
		errMsg := fmt.Sprintf("Creating %s order for user %s failed: %s", orderType, caller.UserID, err.Error())
		_ = createAuditLog(ctx, p.auditRepo, &caller.UserID, models.AuditActionOrderCreated, errMsg, false, &errMsg, metadata, nil)
		return nil, NewBusinessError("CREATE_ORDER_FAILED", "Failed to create order", err)
	}
	services.RecordOrderCreated(string(orderType))

	msg := fmt.Sprintf("Created order %s of %s for user %s", order.OrderNo, amount, caller.UserID)
	_ = createAuditLog(ctx, p.auditRepo, &caller.UserID, models.AuditActionOrderCreated, msg, true, nil, metadata, map[string]any{"order_no": order.OrderNo})

	resp := ToPaymentOrderResponse(order)
	return &resp, nil
}

func parseOrderUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrOrderNotFound, raw)
	}
	return id, nil
}

// loadOrder fetches an order the caller may access
func (p *PaymentFlowImpl) loadOrder(ctx context.Context, caller Caller, orderUUID string) (*models.PaymentOrder, error) {
	id, err := parseOrderUUID(orderUUID)
	if err != nil {
		return nil, err
	}
	order, err := p.orderRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !caller.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (p *PaymentFlowImpl) GetOrder(ctx context.Context, caller Caller, orderUUID string) (*dto.PaymentOrderResponse, error) {
	order, err := p.loadOrder(ctx, caller, orderUUID)
	if err != nil {
		return nil, NewBusinessError("GET_ORDER_FAILED", "Failed to get order", err)
	}
	resp := ToPaymentOrderResponse(order)
	return &resp, nil
}

func (p *PaymentFlowImpl) GetOrderByNumber(ctx context.Context, caller Caller, orderNo string) (*dto.PaymentOrderResponse, error) {
	order, err := p.orderRepo.ByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, NewBusinessError("GET_ORDER_FAILED", "Failed to get order", err)
	}
	if order == nil {
		return nil, NewBusinessError("GET_ORDER_FAILED", "Failed to get order", ErrOrderNotFound)
	}
	if !caller.CanAccess(order.UserID) {
		return nil, NewBusinessError("GET_ORDER_FAILED", "Failed to get order", ErrForbidden)
	}
	resp := ToPaymentOrderResponse(order)
	return &resp, nil
}

// orderFilter builds the typed filter shared by list, statistics and export
func orderFilter(caller Caller, userID, status, orderType, startDate, endDate *string) (models.PaymentOrderFilter, error) {
	var filter models.PaymentOrderFilter

	target, err := caller.scopeUser(userID)
	if err != nil {
		return filter, err
	}
	filter.UserID = target

	if status != nil && *status != "" {
		s := models.PaymentOrderStatus(*status)
		filter.Status = &s
	}
	if orderType != nil && *orderType != "" {
		t := models.OrderType(*orderType)
		if !t.IsValid() {
			return filter, fmt.Errorf("%w: order_type", ErrInvalidFilter)
		}
		filter.OrderType = &t
	}
	filter.CreatedAfter, filter.CreatedBefore, err = dateRange(startDate, endDate)
	if err != nil {
		return filter, err
	}
	return filter, nil
}

// ListOrders pages through orders newest first
func (p *PaymentFlowImpl) ListOrders(ctx context.Context, caller Caller, req *dto.ListPaymentOrdersRequest) (*dto.ListPaymentOrdersResponse, error) {
	filter, err := orderFilter(caller, req.UserID, req.Status, req.OrderType, req.StartDate, req.EndDate)
	if err != nil {
		return nil, NewBusinessError("LIST_ORDERS_FAILED", "Invalid order filter", err)
	}

	page, pageSize, offset := utils.NormalizePage(req.Page, req.PageSize)
	total, err := p.orderRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_ORDERS_FAILED", "Failed to count orders", err)
	}
	orders, err := p.orderRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_ORDERS_FAILED", "Failed to list orders", err)
	}

	items := make([]dto.PaymentOrderResponse, 0, len(orders))
	for _, o := range orders {
		items = append(items, ToPaymentOrderResponse(o))
	}
	return &dto.ListPaymentOrdersResponse{
		Items:      items,
		Pagination: dto.NewPaginationInfo(page, pageSize, total),
	}, nil
}

// CancelOrder closes a pending order
func (p *PaymentFlowImpl) CancelOrder(ctx context.Context, caller Caller, orderUUID string, metadata *ClientMetadata) (*dto.PaymentOrderResponse, error) {
	order, err := p.loadOrder(ctx, caller, orderUUID)
	if err != nil {
		return nil, NewBusinessError("CANCEL_ORDER_FAILED", "Failed to cancel order", err)
	}
	if order.Status != models.PaymentOrderStatusPending {
		return nil, NewBusinessErrorf("CANCEL_ORDER_FAILED", "Order in status %s cannot be cancelled", ErrInvalidOrderState, order.Status)
	}

	ok, err := p.orderRepo.TransitionStatus(ctx, order.ID, models.PaymentOrderStatusPending, models.PaymentOrderStatusCancelled, nil)
	if err == nil && !ok {
		err = ErrConcurrentUpdate
	}
	if err != nil {
		errMsg := fmt.Sprintf("Cancelling order %s failed: %s", order.OrderNo, err.Error())
		_ = createAuditLog(ctx, p.auditRepo, &caller.UserID, models.AuditActionOrderCancelled, errMsg, false, &errMsg, metadata, map[string]any{"order_no": order.OrderNo})
		return nil, NewBusinessError("CANCEL_ORDER_FAILED", "Failed to cancel order", err)
	}

	msg := fmt.Sprintf("Cancelled order %s", order.OrderNo)
	_ = createAuditLog(ctx, p.auditRepo, &caller.UserID, models.AuditActionOrderCancelled, msg, true, nil, metadata, map[string]any{"order_no": order.OrderNo})

	updated, err := p.orderRepo.ByID(ctx, order.ID)
	if err != nil || updated == nil {
		order.Status = models.PaymentOrderStatusCancelled
		updated = order
	}
	resp := ToPaymentOrderResponse(updated)
	return &resp, nil
}

// InitiatePayment starts paying a pending order with the chosen method. Balance payments
// settle immediately; gateway payments return what the client needs to finish at the provider.
func (p *PaymentFlowImpl) InitiatePayment(ctx context.Context, caller Caller, orderUUID string, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error) {
	method := models.PaymentMethod(req.PaymentMethod)
	if method != models.PaymentMethodBalance && !method.IsGateway() {
		return nil, NewBusinessErrorf("INITIATE_PAYMENT_FAILED", "Payment method %s is not supported", ErrUnsupportedPaymentMethod, req.PaymentMethod)
	}

	order, err := p.loadOrder(ctx, caller, orderUUID)
	if err != nil {
		return nil, NewBusinessError("INITIATE_PAYMENT_FAILED", "Failed to initiate payment", err)
	}
	if !order.IsOwnedBy(caller.UserID) {
		return nil, NewBusinessError("INITIATE_PAYMENT_FAILED", "Only the order owner may pay", ErrForbidden)
	}
	if order.Status != models.PaymentOrderStatusPending {
		return nil, NewBusinessErrorf("INITIATE_PAYMENT_FAILED", "Order in status %s cannot be paid", ErrInvalidOrderState, order.Status)
	}
	if order.IsExpiredAt(utils.UTCNow()) {
		return nil, NewBusinessError("INITIATE_PAYMENT_FAILED", "Order payment window has closed", ErrOrderExpired)
	}

	var resp *dto.InitiatePaymentResponse
	if method == models.PaymentMethodBalance {
		resp, err = p.payWithBalance(ctx, order)
	} else {
		resp, err = p.payWithGateway(ctx, order, method, req, metadata)
	}
	services.RecordPaymentInitiation(method.String(), err)

	extra := map[string]any{"order_no": order.OrderNo, "payment_method": method}
	if err != nil {
		errMsg := fmt.Sprintf("Payment of order %s with %s failed: %s", order.OrderNo, method, err.Error())
		_ = createAuditLog(ctx, p.auditRepo, &caller.UserID, models.AuditActionPaymentInitiateFailed, errMsg, false, &errMsg, metadata, extra)
		return nil, NewBusinessError("INITIATE_PAYMENT_FAILED", "Failed to initiate payment", err)
	}

	extra["transaction_no"] = resp.TransactionNo
	msg := fmt.Sprintf("Initiated %s payment %s for order %s", method, resp.TransactionNo, order.OrderNo)
	_ = createAuditLog(ctx, p.auditRepo, &caller.UserID, models.AuditActionPaymentInitiated, msg, true, nil, metadata, extra)

	return resp, nil
}

func newPaymentTransaction(order *models.PaymentOrder, method models.PaymentMethod, now time.Time) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		TransactionNo:   utils.NewSerialNumber(utils.TransactionNumberPrefix, now),
		OrderID:         order.ID,
		UserID:          order.UserID,
		PaymentMethod:   method,
		TransactionType: models.PaymentTransactionTypePayment,
		Amount:          order.Amount,
		Status:          models.PaymentTransactionStatusPending,
		InitiatedAt:     now,
	}
}

// payWithBalance settles the order from the owner's wallet in one unit
func (p *PaymentFlowImpl) payWithBalance(ctx context.Context, order *models.PaymentOrder) (*dto.InitiatePaymentResponse, error) {
	now := utils.UTCNow()
	txn := newPaymentTransaction(order, models.PaymentMethodBalance, now)

	err := repository.WithTransaction(ctx, p.db, func(txCtx context.Context) error {
		if err := p.txnRepo.Save(txCtx, txn); err != nil {
			return err
		}

		_, _, err := p.ledger.Mutate(txCtx, LedgerEntry{
			UserID:      order.UserID,
			Type:        models.BalanceTransactionTypeExpense,
			Amount:      order.Amount,
			RelatedType: models.BalanceRelatedTypeOrder,
			RelatedID:   &order.UUID,
			Description: fmt.Sprintf("Payment for order %s", order.OrderNo),
		})
		if err != nil {
			return err
		}

		ok, err := p.txnRepo.Complete(txCtx, txn.ID, models.PaymentTransactionStatusSuccess, map[string]any{"completed_at": now})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		return p.markOrderPaid(txCtx, order, txn, now)
	})
	if err != nil {
		return nil, err
	}
	services.RecordLedgerMutation(string(models.BalanceTransactionTypeExpense))

	return &dto.InitiatePaymentResponse{
		OrderNo:       order.OrderNo,
		TransactionNo: txn.TransactionNo,
		PaymentMethod: models.PaymentMethodBalance.String(),
		Status:        string(models.PaymentTransactionStatusSuccess),
		OrderStatus:   string(models.PaymentOrderStatusPaid),
	}, nil
}

// markOrderPaid moves a pending order to paid, fails the order's other pending payments and
// confirms its appointment. It must run inside the unit that settles the transaction.
func (p *PaymentFlowImpl) markOrderPaid(ctx context.Context, order *models.PaymentOrder, settled *models.PaymentTransaction, paidAt time.Time) error {
	ok, err := p.orderRepo.TransitionStatus(ctx, order.ID, models.PaymentOrderStatusPending, models.PaymentOrderStatusPaid, map[string]any{
		"payment_method": settled.PaymentMethod,
		"payment_time":   paidAt,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConcurrentUpdate
	}

	superseded, err := p.txnRepo.CloseOtherPending(ctx, order.ID, settled.ID, map[string]any{
		"error_code":    "SUPERSEDED",
		"error_message": fmt.Sprintf("order settled by %s", settled.TransactionNo),
		"completed_at":  paidAt,
	})
	if err != nil {
		return err
	}
	if superseded > 0 {
		p.logger.Info("closed superseded payments",
			zap.String("order_no", order.OrderNo),
			zap.String("settled_by", settled.TransactionNo),
			zap.Int64("count", superseded),
		)
	}

	if order.AppointmentID != nil {
		confirmed, err := p.appointmentRepo.Confirm(ctx, *order.AppointmentID)
		if err != nil {
			return err
		}
		if !confirmed {
			p.logger.Warn("appointment not confirmed after payment",
				zap.String("order_no", order.OrderNo),
				zap.String("appointment_id", order.AppointmentID.String()),
			)
		}
	}
	return nil
}

func defaultTradeType(method models.PaymentMethod) services.TradeType {
	if method == models.PaymentMethodWechat {
		return services.TradeTypeNative
	}
	return services.TradeTypePage
}

// payWithGateway records a pending transaction and asks the provider for a prepay session.
// No database transaction is held while the provider is called.
func (p *PaymentFlowImpl) payWithGateway(ctx context.Context, order *models.PaymentOrder, method models.PaymentMethod, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error) {
	gateway, ok := p.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, method)
	}
	creds, err := p.credentials.Credentials(ctx, method)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	txn := newPaymentTransaction(order, method, now)
	if err := p.txnRepo.Save(ctx, txn); err != nil {
		return nil, err
	}

	tradeType := services.TradeType(utils.Deref(req.TradeType))
	if tradeType == "" {
		tradeType = defaultTradeType(method)
	}
	gwReq := &services.GatewayOrderRequest{
		OrderNo:   order.OrderNo,
		Amount:    order.Amount,
		Subject:   fmt.Sprintf("TCM-%s", order.OrderType),
		Body:      utils.Deref(order.Description),
		TradeType: tradeType,
		ReturnURL: utils.Deref(req.ReturnURL),
		PayerID:   utils.Deref(req.OpenID),
		ExpireAt:  order.ExpireTime,
	}
	if metadata != nil {
		gwReq.ClientIP = metadata.IPAddress
	}

	result, gwErr := gateway.CreateOrder(ctx, creds, gwReq)
	if gwErr == nil && !result.Success {
		gwErr = fmt.Errorf("%s: %s", result.Code, result.Message)
	}
	if gwErr != nil {
		if isTimeout(gwErr) {
			// the provider may still have created the session; leave it to reconciliation
			p.logger.Warn("gateway create order timed out",
				zap.String("order_no", order.OrderNo),
				zap.String("transaction_no", txn.TransactionNo),
				zap.Error(gwErr),
			)
			p.scheduleReconcile(ctx, txn)
			return nil, fmt.Errorf("%w: %v", ErrExternalGateway, gwErr)
		}

		code := "GATEWAY_ERROR"
		updates := map[string]any{
			"error_message": gwErr.Error(),
			"completed_at":  utils.UTCNow(),
		}
		if result != nil {
			if result.Code != "" {
				code = result.Code
			}
			updates["request_data"] = toJSON(result.RequestData)
			updates["response_data"] = toJSON(result.ResponseData)
		}
		updates["error_code"] = code
		if _, err := p.txnRepo.Complete(ctx, txn.ID, models.PaymentTransactionStatusFailed, updates); err != nil {
			p.logger.Error("failed to mark transaction failed",
				zap.String("transaction_no", txn.TransactionNo),
				zap.Error(err),
			)
		}

		if errors.Is(gwErr, services.ErrGatewayMisconfigured) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayNotConfigured, gwErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalGateway, gwErr)
	}

	updates := map[string]any{
		"request_data":  toJSON(result.RequestData),
		"response_data": toJSON(result.ResponseData),
	}
	if result.PrepayID != "" {
		updates["prepay_id"] = result.PrepayID
	}
	if result.TradeNo != "" {
		updates["trade_no"] = result.TradeNo
	}
	// a callback may already have settled the transaction; nothing left to store then
	if _, err := p.txnRepo.UpdatePending(ctx, txn.ID, updates); err != nil {
		return nil, err
	}
	p.scheduleReconcile(ctx, txn)

	return &dto.InitiatePaymentResponse{
		OrderNo:       order.OrderNo,
		TransactionNo: txn.TransactionNo,
		PaymentMethod: method.String(),
		Status:        string(models.PaymentTransactionStatusPending),
		OrderStatus:   string(order.Status),
		PaymentURL:    result.PaymentURL,
		QRCode:        result.QRCode,
		PrepayID:      result.PrepayID,
		ClientParams:  result.ClientParams,
	}, nil
}

func (p *PaymentFlowImpl) scheduleReconcile(ctx context.Context, txn *models.PaymentTransaction) {
	if p.reconciler == nil {
		return
	}
	if err := p.reconciler.ScheduleReconcile(ctx, txn.UUID); err != nil {
		p.logger.Warn("failed to schedule reconciliation",
			zap.String("transaction_no", txn.TransactionNo),
			zap.Error(err),
		)
	}
}

// GetStatistics aggregates order counts and sums for the scoped user and window
func (p *PaymentFlowImpl) GetStatistics(ctx context.Context, caller Caller, req *dto.PaymentStatisticsRequest) (*dto.PaymentStatisticsResponse, error) {
	filter, err := orderFilter(caller, req.UserID, nil, nil, req.StartDate, req.EndDate)
	if err != nil {
		return nil, NewBusinessError("GET_STATISTICS_FAILED", "Invalid statistics filter", err)
	}
	stats, err := p.orderRepo.Statistics(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("GET_STATISTICS_FAILED", "Failed to compute statistics", err)
	}
	return &dto.PaymentStatisticsResponse{
		TotalOrders:    stats.TotalOrders,
		TotalAmount:    stats.TotalAmount,
		PaidOrders:     stats.PaidOrders,
		PaidAmount:     stats.PaidAmount,
		RefundedOrders: stats.RefundedOrders,
		RefundedAmount: stats.RefundedAmount,
	}, nil
}

// ReconcileTransaction asks the provider for the status of a pending gateway transaction and
// applies a settled outcome through the callback path
func (p *PaymentFlowImpl) ReconcileTransaction(ctx context.Context, caller Caller, transactionUUID string, metadata *ClientMetadata) (*dto.ReconcileTransactionResponse, error) {
	if !caller.IsAdmin() {
		return nil, NewBusinessError("RECONCILE_FAILED", "Only admins may reconcile transactions", ErrForbidden)
	}
	id, err := uuid.Parse(transactionUUID)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Transaction not found", ErrTransactionNotFound)
	}
	txn, err := p.txnRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Failed to load transaction", err)
	}
	if txn == nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Transaction not found", ErrTransactionNotFound)
	}
	order, err := p.orderRepo.ByID(ctx, txn.OrderID)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Failed to load order", err)
	}
	if order == nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Order not found", ErrOrderNotFound)
	}

	resp := &dto.ReconcileTransactionResponse{Transaction: ToPaymentTransactionResponse(txn, order.OrderNo)}
	if txn.Status != models.PaymentTransactionStatusPending {
		return resp, nil
	}

	gateway, ok := p.gateways[txn.PaymentMethod]
	if !ok {
		return nil, NewBusinessErrorf("RECONCILE_FAILED", "Payment method %s cannot be reconciled", ErrUnsupportedPaymentMethod, txn.PaymentMethod)
	}
	creds, err := p.credentials.Credentials(ctx, txn.PaymentMethod)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Failed to load gateway credentials", err)
	}
	raw, err := gateway.QueryOrder(ctx, creds, order.OrderNo)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Provider status query failed", fmt.Errorf("%w: %v", ErrExternalGateway, err))
	}
	data, err := gateway.ParseQueryResult(raw)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_FAILED", "Provider status could not be parsed", fmt.Errorf("%w: %v", ErrExternalGateway, err))
	}
	resp.ProviderStatus = string(data.Status)

	if data.Status != services.CallbackStatusPending {
		if data.OrderNo == "" {
			data.OrderNo = order.OrderNo
		}
		if data.Amount.IsZero() {
			data.Amount = txn.Amount
		}
		if err := p.HandlePaymentCallback(ctx, txn.PaymentMethod, data, metadata); err != nil {
			return nil, NewBusinessError("RECONCILE_FAILED", "Failed to apply provider status", err)
		}
		resp.Applied = true
	}

	if updated, err := p.txnRepo.ByID(ctx, txn.ID); err == nil && updated != nil {
		resp.Transaction = ToPaymentTransactionResponse(updated, order.OrderNo)
		if updated.Status == models.PaymentTransactionStatusPending {
			resp.Applied = false
		}
	}

	msg := fmt.Sprintf("Reconciled transaction %s: provider status %s", txn.TransactionNo, data.Status)
	_ = createAuditLog(ctx, p.auditRepo, caller.actorID(), models.AuditActionTransactionReconciled, msg, true, nil, metadata, map[string]any{
		"transaction_no":  txn.TransactionNo,
		"provider_status": data.Status,
		"applied":         resp.Applied,
	})
	return resp, nil
}
