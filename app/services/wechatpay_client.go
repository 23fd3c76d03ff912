package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/medipay/models"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	WechatPayProductionAPI = "https://api.mch.weixin.qq.com"

	wechatTimeLayout  = "20060102150405"
	wechatSuccess     = "SUCCESS"
	wechatSignMD5     = "MD5"
	wechatSignHMAC    = "HMAC-SHA256"
	wechatDefaultIP   = "127.0.0.1"
	wechatMaxBodySize = 1 << 20
)

// WechatPayClient is the adapter for wallet gateway W: XML request and response bodies,
// amounts in integer cents, digest signatures keyed by the merchant API key.
type WechatPayClient struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Timeout    time.Duration
	Now        func() time.Time
}

func NewWechatPayClient(timeout time.Duration, limiter *rate.Limiter) *WechatPayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WechatPayClient{
		HTTPClient: &http.Client{Timeout: timeout},
		Limiter:    limiter,
		Timeout:    timeout,
		Now:        time.Now,
	}
}

func (c *WechatPayClient) Method() models.PaymentMethod { return models.PaymentMethodWechat }

// WechatSign signs params as upper-case hex over "k1=v1&k2=v2&key=<apiKey>"
func WechatSign(params map[string]string, signType, apiKey string) string {
	content := BuildSignContent(params, "sign") + "&key=" + apiKey
	if strings.EqualFold(signType, wechatSignHMAC) {
		return strings.ToUpper(DigestHMACSHA256(content, apiKey))
	}
	return strings.ToUpper(DigestMD5(content))
}

func wechatSignType(creds GatewayCredentials) (string, error) {
	st := strings.ToUpper(creds.GetOr("sign_type", wechatSignMD5))
	if st != wechatSignMD5 && st != wechatSignHMAC {
		return "", fmt.Errorf("%w: unsupported wechat sign type %q", ErrGatewayMisconfigured, st)
	}
	return st, nil
}

// toCents converts a two-decimal amount into integer fen
func toCents(amount decimal.Decimal) (int64, error) {
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %s has sub-cent precision", ErrGatewayRejected, amount.String())
	}
	return cents.IntPart(), nil
}

func fromCents(value string) (decimal.Decimal, error) {
	cents, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fee %q", ErrMalformedPayload, value)
	}
	return decimal.New(cents, -2), nil
}

func wechatTradeType(t TradeType) (string, error) {
	switch t {
	case TradeTypeNative, TradeTypePage, "":
		return "NATIVE", nil
	case TradeTypeJSAPI:
		return "JSAPI", nil
	case TradeTypeApp:
		return "APP", nil
	case TradeTypeWap:
		return "MWEB", nil
	default:
		return "", fmt.Errorf("%w: wechat does not support trade type %q", ErrGatewayRejected, t)
	}
}

// CreateOrder calls unifiedorder and shapes the client artifacts for the chosen trade type
func (c *WechatPayClient) CreateOrder(ctx context.Context, creds GatewayCredentials, req *GatewayOrderRequest) (*GatewayOrderResult, error) {
	if err := creds.Require("app_id", "mch_id", "api_key", "notify_url"); err != nil {
		return nil, err
	}
	signType, err := wechatSignType(creds)
	if err != nil {
		return nil, err
	}
	tradeType, err := wechatTradeType(req.TradeType)
	if err != nil {
		return nil, err
	}
	if tradeType == "JSAPI" && req.PayerID == "" {
		return nil, fmt.Errorf("%w: openid is required for JSAPI payments", ErrGatewayRejected)
	}
	fee, err := toCents(req.Amount)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"appid":            creds.Get("app_id"),
		"mch_id":           creds.Get("mch_id"),
		"nonce_str":        NewNonce(),
		"body":             req.Subject,
		"out_trade_no":     req.OrderNo,
		"total_fee":        strconv.FormatInt(fee, 10),
		"spbill_create_ip": firstNonEmpty(req.ClientIP, wechatDefaultIP),
		"notify_url":       creds.Get("notify_url"),
		"trade_type":       tradeType,
	}
	if req.Body != "" {
		params["attach"] = req.Body
	}
	if req.PayerID != "" {
		params["openid"] = req.PayerID
	}
	if !req.ExpireAt.IsZero() {
		params["time_expire"] = req.ExpireAt.In(chinaStandardTime).Format(wechatTimeLayout)
	}
	if signType != wechatSignMD5 {
		params["sign_type"] = signType
	}

	resp, err := c.call(ctx, creds, signType, "unifiedorder", "/pay/unifiedorder", params)
	if err != nil {
		return nil, err
	}

	result := &GatewayOrderResult{RequestData: params, ResponseData: resp}
	if resp["return_code"] != wechatSuccess {
		result.Code = firstNonEmpty(resp["return_code"], "FAIL")
		result.Message = resp["return_msg"]
		return result, nil
	}
	if resp["result_code"] != wechatSuccess {
		result.Code = firstNonEmpty(resp["err_code"], resp["result_code"])
		result.Message = resp["err_code_des"]
		return result, nil
	}

	result.Success = true
	result.Code = wechatSuccess
	result.PrepayID = resp["prepay_id"]
	result.QRCode = resp["code_url"]
	result.PaymentURL = resp["mweb_url"]

	apiKey := creds.Get("api_key")
	switch tradeType {
	case "JSAPI":
		result.ClientParams = WechatJSAPIParams(creds.Get("app_id"), result.PrepayID, apiKey, signType, c.Now())
	case "APP":
		result.ClientParams = WechatAppParams(creds.Get("app_id"), creds.Get("mch_id"), result.PrepayID, apiKey, signType, c.Now())
	}
	return result, nil
}

// WechatJSAPIParams is the signed blob an in-wallet page hands to the JS bridge
func WechatJSAPIParams(appID, prepayID, apiKey, signType string, now time.Time) map[string]string {
	params := map[string]string{
		"appId":     appID,
		"timeStamp": strconv.FormatInt(now.Unix(), 10),
		"nonceStr":  NewNonce(),
		"package":   "prepay_id=" + prepayID,
		"signType":  signType,
	}
	params["paySign"] = WechatSign(params, signType, apiKey)
	return params
}

// WechatAppParams is the signed blob a native app hands to the wallet SDK
func WechatAppParams(appID, mchID, prepayID, apiKey, signType string, now time.Time) map[string]string {
	params := map[string]string{
		"appid":     appID,
		"partnerid": mchID,
		"prepayid":  prepayID,
		"package":   "Sign=WXPay",
		"noncestr":  NewNonce(),
		"timestamp": strconv.FormatInt(now.Unix(), 10),
	}
	params["sign"] = WechatSign(params, signType, apiKey)
	return params
}

func (c *WechatPayClient) QueryOrder(ctx context.Context, creds GatewayCredentials, orderNo string) (map[string]string, error) {
	if err := creds.Require("app_id", "mch_id", "api_key"); err != nil {
		return nil, err
	}
	signType, err := wechatSignType(creds)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"appid":        creds.Get("app_id"),
		"mch_id":       creds.Get("mch_id"),
		"out_trade_no": orderNo,
		"nonce_str":    NewNonce(),
	}
	if signType != wechatSignMD5 {
		params["sign_type"] = signType
	}
	return c.call(ctx, creds, signType, "orderquery", "/pay/orderquery", params)
}

// Refund requests a refund of a settled trade. Production merchants need a client
// certificate on HTTPClient for this endpoint.
func (c *WechatPayClient) Refund(ctx context.Context, creds GatewayCredentials, req *GatewayRefundRequest) (map[string]string, error) {
	if err := creds.Require("app_id", "mch_id", "api_key"); err != nil {
		return nil, err
	}
	signType, err := wechatSignType(creds)
	if err != nil {
		return nil, err
	}
	total, err := toCents(req.TotalAmount)
	if err != nil {
		return nil, err
	}
	refund, err := toCents(req.RefundAmount)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"appid":         creds.Get("app_id"),
		"mch_id":        creds.Get("mch_id"),
		"nonce_str":     NewNonce(),
		"out_trade_no":  req.OrderNo,
		"out_refund_no": req.RefundNo,
		"total_fee":     strconv.FormatInt(total, 10),
		"refund_fee":    strconv.FormatInt(refund, 10),
	}
	if req.TransactionID != "" {
		params["transaction_id"] = req.TransactionID
	}
	if req.Reason != "" {
		params["refund_desc"] = req.Reason
	}
	if signType != wechatSignMD5 {
		params["sign_type"] = signType
	}

	resp, err := c.call(ctx, creds, signType, "refund", "/secapi/pay/refund", params)
	if err != nil {
		return nil, err
	}
	if resp["return_code"] != wechatSuccess || resp["result_code"] != wechatSuccess {
		return resp, fmt.Errorf("%w: %s", ErrGatewayRejected, firstNonEmpty(resp["err_code_des"], resp["return_msg"], resp["err_code"]))
	}
	return resp, nil
}

func (c *WechatPayClient) apiURL(creds GatewayCredentials) string {
	return strings.TrimRight(creds.GetOr("api_url", WechatPayProductionAPI), "/")
}

// call signs params, posts them as XML and verifies the signature of a successful response
func (c *WechatPayClient) call(ctx context.Context, creds GatewayCredentials, signType, operation, path string, params map[string]string) (resp map[string]string, err error) {
	start := time.Now()
	defer func() { observeGatewayRequest("wechat", operation, start, err) }()

	apiKey := creds.Get("api_key")
	params["sign"] = WechatSign(params, signType, apiKey)

	if c.Limiter != nil {
		if err = c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(creds)+path, bytes.NewReader(EncodeWechatXML(params)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: wechat status %d for %s", ErrGatewayUnavailable, httpResp.StatusCode, operation)
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, wechatMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	resp, err = DecodeWechatXML(body)
	if err != nil {
		return nil, err
	}
	if resp["return_code"] == wechatSuccess && resp["sign"] != "" {
		if claimed := resp["sign_type"]; claimed != "" && !strings.EqualFold(claimed, signType) {
			return nil, fmt.Errorf("%w: response sign_type %q, configured %q", ErrGatewayRejected, claimed, signType)
		}
		if !EqualSignature(WechatSign(resp, signType, apiKey), resp["sign"]) {
			return nil, fmt.Errorf("%w: response signature mismatch", ErrGatewayRejected)
		}
	}
	return resp, nil
}

func (c *WechatPayClient) VerifyNotification(creds GatewayCredentials, params map[string]string) (bool, error) {
	if err := creds.Require("api_key"); err != nil {
		return false, err
	}
	sig := params["sign"]
	if sig == "" {
		return false, nil
	}
	signType, err := wechatSignType(creds)
	if err != nil {
		return false, err
	}
	// the algorithm is ours to choose, never the sender's
	if claimed := params["sign_type"]; claimed != "" && !strings.EqualFold(claimed, signType) {
		return false, fmt.Errorf("%w: notification sign_type %q, configured %q", ErrGatewayRejected, claimed, signType)
	}
	return EqualSignature(WechatSign(params, signType, creds.Get("api_key")), sig), nil
}

func (c *WechatPayClient) DecodeNotification(body []byte) (map[string]string, error) {
	return DecodeWechatXML(body)
}

func (c *WechatPayClient) ParseNotification(params map[string]string) (*PaymentCallbackData, error) {
	if params["out_trade_no"] == "" {
		return nil, fmt.Errorf("%w: out_trade_no missing", ErrMalformedPayload)
	}
	amount, err := fromCents(params["total_fee"])
	if err != nil {
		return nil, err
	}

	status := CallbackStatusFailed
	if params["return_code"] == wechatSuccess && params["result_code"] == wechatSuccess {
		status = CallbackStatusSuccess
	}
	return &PaymentCallbackData{
		OrderNo:               params["out_trade_no"],
		ExternalTransactionID: params["transaction_id"],
		Amount:                amount,
		Status:                status,
		PaidAt:                parseGatewayTime(wechatTimeLayout, params["time_end"]),
		Raw:                   params,
	}, nil
}

// ParseQueryResult maps an orderquery response. A failed query says nothing about the
// trade, so it reads as pending.
func (c *WechatPayClient) ParseQueryResult(raw map[string]string) (*PaymentCallbackData, error) {
	data := &PaymentCallbackData{
		OrderNo:               raw["out_trade_no"],
		ExternalTransactionID: raw["transaction_id"],
		Status:                CallbackStatusPending,
		Raw:                   raw,
	}
	if raw["return_code"] != wechatSuccess || raw["result_code"] != wechatSuccess {
		return data, nil
	}

	switch raw["trade_state"] {
	case "SUCCESS", "REFUND":
		data.Status = CallbackStatusSuccess
	case "CLOSED", "REVOKED", "PAYERROR":
		data.Status = CallbackStatusFailed
	}
	if fee := raw["total_fee"]; fee != "" {
		amount, err := fromCents(fee)
		if err != nil {
			return nil, err
		}
		data.Amount = amount
	}
	data.PaidAt = parseGatewayTime(wechatTimeLayout, raw["time_end"])
	return data, nil
}

func (c *WechatPayClient) NotificationAck(success bool) (string, []byte) {
	ack := map[string]string{"return_code": wechatSuccess, "return_msg": "OK"}
	if !success {
		ack = map[string]string{"return_code": "FAIL", "return_msg": "rejected"}
	}
	return "application/xml; charset=utf-8", EncodeWechatXML(ack)
}
