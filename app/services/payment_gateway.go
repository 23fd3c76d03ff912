// Package services provides external service integrations: payment gateways, identity tokens and credential encryption
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/medipay/models"
	"github.com/shopspring/decimal"
)

// Gateway error constants
var (
	ErrGatewayMisconfigured = errors.New("payment gateway is not configured")
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")
	ErrGatewayUnavailable   = errors.New("payment gateway is unavailable")
	ErrMalformedPayload     = errors.New("malformed gateway payload")
)

// TradeType selects how the payer completes a gateway payment
type TradeType string

const (
	TradeTypePage   TradeType = "page"   // desktop redirect
	TradeTypeWap    TradeType = "wap"    // mobile browser redirect
	TradeTypeNative TradeType = "native" // QR code scanned by the wallet app
	TradeTypeJSAPI  TradeType = "jsapi"  // in-wallet web page, payer id required
	TradeTypeApp    TradeType = "app"    // native app SDK
)

// CallbackStatus is the canonical outcome reported by a gateway
type CallbackStatus string

const (
	CallbackStatusSuccess CallbackStatus = "success"
	CallbackStatusFailed  CallbackStatus = "failed"
	CallbackStatusPending CallbackStatus = "pending"
)

// GatewayCredentials are the merchant settings of one gateway, keyed like payment_configs rows
type GatewayCredentials map[string]string

// Get returns the trimmed value of key
func (c GatewayCredentials) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// GetOr returns the value of key or def when unset
func (c GatewayCredentials) GetOr(key, def string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return def
}

// Require fails with ErrGatewayMisconfigured naming every missing key
func (c GatewayCredentials) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if c.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrGatewayMisconfigured, strings.Join(missing, ", "))
	}
	return nil
}

// Merge overlays non-empty values of override on a copy of c
func (c GatewayCredentials) Merge(override map[string]string) GatewayCredentials {
	out := make(GatewayCredentials, len(c)+len(override))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range override {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

type GatewayOrderRequest struct {
	OrderNo   string
	Amount    decimal.Decimal
	Subject   string
	Body      string
	TradeType TradeType
	ReturnURL string
	ClientIP  string
	PayerID   string // wallet specific payer id, e.g. openid
	ExpireAt  time.Time
}

type GatewayOrderResult struct {
	Success      bool
	Code         string
	Message      string
	PrepayID     string
	TradeNo      string
	PaymentURL   string            // redirect target
	QRCode       string            // string to render as QR
	ClientParams map[string]string // blob the client SDK signs the payment with
	RequestData  map[string]string
	ResponseData map[string]string
}

type GatewayRefundRequest struct {
	OrderNo       string
	TransactionID string // provider transaction id
	RefundNo      string
	TotalAmount   decimal.Decimal
	RefundAmount  decimal.Decimal
	Reason        string
}

// PaymentCallbackData is a gateway notification translated to canonical shape
type PaymentCallbackData struct {
	OrderNo               string
	ExternalTransactionID string
	Amount                decimal.Decimal
	Status                CallbackStatus
	PaidAt                *time.Time
	Raw                   map[string]string
}

// PaymentGateway is the contract every wallet gateway adapter implements
type PaymentGateway interface {
	Method() models.PaymentMethod
	CreateOrder(ctx context.Context, creds GatewayCredentials, req *GatewayOrderRequest) (*GatewayOrderResult, error)
	QueryOrder(ctx context.Context, creds GatewayCredentials, orderNo string) (map[string]string, error)
	Refund(ctx context.Context, creds GatewayCredentials, req *GatewayRefundRequest) (map[string]string, error)
	VerifyNotification(creds GatewayCredentials, params map[string]string) (bool, error)
	DecodeNotification(body []byte) (map[string]string, error)
	ParseNotification(params map[string]string) (*PaymentCallbackData, error)
	ParseQueryResult(raw map[string]string) (*PaymentCallbackData, error)
	NotificationAck(success bool) (contentType string, body []byte)
}

// chinaStandardTime is the zone both gateways stamp times in
var chinaStandardTime = time.FixedZone("CST", 8*3600)

func parseGatewayTime(layout, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.ParseInLocation(layout, value, chinaStandardTime)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
