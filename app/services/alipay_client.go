package services

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/medipay/models"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	AlipayProductionGateway = "https://openapi.alipay.com/gateway.do"
	AlipaySandboxGateway    = "https://openapi-sandbox.dl.alipaydev.com/gateway.do"

	alipayTimeLayout  = "2006-01-02 15:04:05"
	alipaySuccessCode = "10000"
	alipayMaxBody     = 1 << 20
)

// AlipayClient is the adapter for wallet gateway A: signed form posts, JSON responses,
// form encoded notifications acknowledged with a literal body.
type AlipayClient struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Timeout    time.Duration
	Now        func() time.Time
}

func NewAlipayClient(timeout time.Duration, limiter *rate.Limiter) *AlipayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AlipayClient{
		HTTPClient: &http.Client{Timeout: timeout},
		Limiter:    limiter,
		Timeout:    timeout,
		Now:        time.Now,
	}
}

func (c *AlipayClient) Method() models.PaymentMethod { return models.PaymentMethodAlipay }

type alipayBizContent struct {
	OutTradeNo  string `json:"out_trade_no"`
	TotalAmount string `json:"total_amount"`
	Subject     string `json:"subject"`
	Body        string `json:"body,omitempty"`
	ProductCode string `json:"product_code,omitempty"`
	QuitURL     string `json:"quit_url,omitempty"`
	TimeExpire  string `json:"time_expire,omitempty"`
}

type alipaySigner struct {
	signType string
	private  *rsa.PrivateKey
	public   *rsa.PublicKey
	md5Key   string
}

func newAlipaySigner(creds GatewayCredentials, signType string, needPrivate bool) (*alipaySigner, error) {
	s := &alipaySigner{signType: strings.ToUpper(signType)}
	switch s.signType {
	case "RSA2":
		if needPrivate {
			if err := creds.Require("private_key"); err != nil {
				return nil, err
			}
			key, err := ParseRSAPrivateKey(creds.Get("private_key"))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGatewayMisconfigured, err)
			}
			s.private = key
		}
		if pub := creds.Get("alipay_public_key"); pub != "" {
			key, err := ParseRSAPublicKey(pub)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGatewayMisconfigured, err)
			}
			s.public = key
		}
	case "MD5":
		if err := creds.Require("md5_key"); err != nil {
			return nil, err
		}
		s.md5Key = creds.Get("md5_key")
	default:
		return nil, fmt.Errorf("%w: unsupported alipay sign type %q", ErrGatewayMisconfigured, signType)
	}
	return s, nil
}

func (s *alipaySigner) sign(content string) (string, error) {
	if s.signType == "MD5" {
		return DigestMD5(content + s.md5Key), nil
	}
	if s.private == nil {
		return "", fmt.Errorf("%w: private_key", ErrGatewayMisconfigured)
	}
	return SignRSA2(content, s.private)
}

func (s *alipaySigner) verify(content, signature string) (bool, error) {
	if s.signType == "MD5" {
		return EqualSignature(DigestMD5(content+s.md5Key), signature), nil
	}
	if s.public == nil {
		return false, fmt.Errorf("%w: alipay_public_key", ErrGatewayMisconfigured)
	}
	return VerifyRSA2(content, signature, s.public), nil
}

func (c *AlipayClient) gatewayURL(creds GatewayCredentials) string {
	return creds.GetOr("gateway_url", AlipayProductionGateway)
}

// signedParams builds the common request envelope and signs it. Request signing covers
// sign_type; only the sign field itself is excluded.
func (c *AlipayClient) signedParams(creds GatewayCredentials, signer *alipaySigner, apiMethod string, biz any, returnURL string) (map[string]string, error) {
	bizJSON, err := json.Marshal(biz)
	if err != nil {
		return nil, fmt.Errorf("failed to encode biz_content: %w", err)
	}

	params := map[string]string{
		"app_id":      creds.Get("app_id"),
		"method":      apiMethod,
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   signer.signType,
		"timestamp":   c.Now().In(chinaStandardTime).Format(alipayTimeLayout),
		"version":     "1.0",
		"notify_url":  creds.Get("notify_url"),
		"biz_content": string(bizJSON),
	}
	if returnURL == "" {
		returnURL = creds.Get("return_url")
	}
	if returnURL != "" {
		params["return_url"] = returnURL
	}
	for k, v := range params {
		if v == "" {
			delete(params, k)
		}
	}

	sig, err := signer.sign(BuildSignContent(params, "sign"))
	if err != nil {
		return nil, err
	}
	params["sign"] = sig
	return params, nil
}

func encodeForm(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

// CreateOrder builds a signed payment request. Redirect and app flows are returned without a
// network call; the QR flow calls precreate.
func (c *AlipayClient) CreateOrder(ctx context.Context, creds GatewayCredentials, req *GatewayOrderRequest) (*GatewayOrderResult, error) {
	if err := creds.Require("app_id"); err != nil {
		return nil, err
	}
	signer, err := newAlipaySigner(creds, creds.GetOr("sign_type", "RSA2"), true)
	if err != nil {
		return nil, err
	}

	biz := alipayBizContent{
		OutTradeNo:  req.OrderNo,
		TotalAmount: req.Amount.StringFixed(2),
		Subject:     req.Subject,
		Body:        req.Body,
	}
	if !req.ExpireAt.IsZero() {
		biz.TimeExpire = req.ExpireAt.In(chinaStandardTime).Format(alipayTimeLayout)
	}

	var apiMethod string
	switch req.TradeType {
	case TradeTypePage, "":
		apiMethod = "alipay.trade.page.pay"
		biz.ProductCode = "FAST_INSTANT_TRADE_PAY"
	case TradeTypeWap:
		apiMethod = "alipay.trade.wap.pay"
		biz.ProductCode = "QUICK_WAP_WAY"
		biz.QuitURL = req.ReturnURL
	case TradeTypeApp:
		apiMethod = "alipay.trade.app.pay"
		biz.ProductCode = "QUICK_MSECURITY_PAY"
	case TradeTypeNative:
		apiMethod = "alipay.trade.precreate"
	default:
		return nil, fmt.Errorf("%w: alipay does not support trade type %q", ErrGatewayRejected, req.TradeType)
	}

	params, err := c.signedParams(creds, signer, apiMethod, biz, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	result := &GatewayOrderResult{RequestData: params}

	switch req.TradeType {
	case TradeTypeNative:
		resp, err := c.execute(ctx, creds, signer, apiMethod, params)
		if err != nil {
			return nil, err
		}
		result.ResponseData = resp
		if resp["code"] != alipaySuccessCode {
			result.Code = firstNonEmpty(resp["sub_code"], resp["code"])
			result.Message = firstNonEmpty(resp["sub_msg"], resp["msg"])
			return result, nil
		}
		result.QRCode = resp["qr_code"]
		result.TradeNo = resp["trade_no"]
	case TradeTypeApp:
		result.ClientParams = map[string]string{"order_string": encodeForm(params)}
	default:
		result.PaymentURL = c.gatewayURL(creds) + "?" + encodeForm(params)
	}

	result.Success = true
	result.Code = alipaySuccessCode
	return result, nil
}

// QueryOrder asks the gateway for the current state of a trade
func (c *AlipayClient) QueryOrder(ctx context.Context, creds GatewayCredentials, orderNo string) (map[string]string, error) {
	if err := creds.Require("app_id"); err != nil {
		return nil, err
	}
	signer, err := newAlipaySigner(creds, creds.GetOr("sign_type", "RSA2"), true)
	if err != nil {
		return nil, err
	}

	params, err := c.signedParams(creds, signer, "alipay.trade.query", map[string]string{"out_trade_no": orderNo}, "")
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, creds, signer, "alipay.trade.query", params)
}

// Refund returns money of a settled trade to the payer
func (c *AlipayClient) Refund(ctx context.Context, creds GatewayCredentials, req *GatewayRefundRequest) (map[string]string, error) {
	if err := creds.Require("app_id"); err != nil {
		return nil, err
	}
	signer, err := newAlipaySigner(creds, creds.GetOr("sign_type", "RSA2"), true)
	if err != nil {
		return nil, err
	}

	biz := map[string]string{
		"trade_no":       req.TransactionID,
		"out_trade_no":   req.OrderNo,
		"refund_amount":  req.RefundAmount.StringFixed(2),
		"out_request_no": req.RefundNo,
		"refund_reason":  req.Reason,
	}
	for k, v := range biz {
		if v == "" {
			delete(biz, k)
		}
	}

	params, err := c.signedParams(creds, signer, "alipay.trade.refund", biz, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.execute(ctx, creds, signer, "alipay.trade.refund", params)
	if err != nil {
		return nil, err
	}
	if resp["code"] != alipaySuccessCode {
		return resp, fmt.Errorf("%w: %s", ErrGatewayRejected, firstNonEmpty(resp["sub_msg"], resp["msg"]))
	}
	return resp, nil
}

// execute posts params to the gateway and returns the flattened <method>_response node
func (c *AlipayClient) execute(ctx context.Context, creds GatewayCredentials, signer *alipaySigner, apiMethod string, params map[string]string) (resp map[string]string, err error) {
	start := time.Now()
	defer func() { observeGatewayRequest("alipay", apiMethod, start, err) }()

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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL(creds), strings.NewReader(encodeForm(params)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: alipay status %d for %s", ErrGatewayUnavailable, httpResp.StatusCode, apiMethod)
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, alipayMaxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	return parseAlipayResponse(body, apiMethod, signer)
}

func parseAlipayResponse(body []byte, apiMethod string, signer *alipaySigner) (map[string]string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	node, ok := envelope[strings.ReplaceAll(apiMethod, ".", "_")+"_response"]
	if !ok {
		node, ok = envelope["error_response"]
	}
	if !ok {
		return nil, fmt.Errorf("%w: no response node for %s", ErrMalformedPayload, apiMethod)
	}

	var sig string
	if raw, present := envelope["sign"]; present {
		if err := json.Unmarshal(raw, &sig); err != nil {
			return nil, fmt.Errorf("%w: sign: %v", ErrMalformedPayload, err)
		}
	}
	if sig != "" && signer.signType == "RSA2" && signer.public != nil {
		if !VerifyRSA2(string(node), sig, signer.public) {
			return nil, fmt.Errorf("%w: response signature mismatch", ErrGatewayRejected)
		}
	}

	return flattenJSONObject(node)
}

func flattenJSONObject(raw []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case nil:
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			out[k] = string(encoded)
		}
	}
	return out, nil
}

// VerifyNotification checks a notification's signature with the configured algorithm.
// Notification signing excludes both sign and sign_type.
func (c *AlipayClient) VerifyNotification(creds GatewayCredentials, params map[string]string) (bool, error) {
	sig := params["sign"]
	if sig == "" {
		return false, nil
	}
	signType := creds.GetOr("sign_type", "RSA2")
	if claimed := params["sign_type"]; claimed != "" && !strings.EqualFold(claimed, signType) {
		return false, fmt.Errorf("%w: notification sign_type %q, configured %q", ErrGatewayRejected, claimed, signType)
	}
	signer, err := newAlipaySigner(creds, signType, false)
	if err != nil {
		return false, err
	}
	return signer.verify(BuildSignContent(params, "sign", "sign_type"), sig)
}

// DecodeNotification parses the form encoded notification body
func (c *AlipayClient) DecodeNotification(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params, nil
}

func alipayTradeStatus(status string) CallbackStatus {
	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return CallbackStatusSuccess
	case "TRADE_CLOSED":
		return CallbackStatusFailed
	default:
		return CallbackStatusPending
	}
}

// ParseNotification translates a verified notification to canonical shape
func (c *AlipayClient) ParseNotification(params map[string]string) (*PaymentCallbackData, error) {
	if params["out_trade_no"] == "" {
		return nil, fmt.Errorf("%w: out_trade_no missing", ErrMalformedPayload)
	}
	amount, err := decimal.NewFromString(params["total_amount"])
	if err != nil {
		return nil, fmt.Errorf("%w: total_amount %q", ErrMalformedPayload, params["total_amount"])
	}
	return &PaymentCallbackData{
		OrderNo:               params["out_trade_no"],
		ExternalTransactionID: params["trade_no"],
		Amount:                amount,
		Status:                alipayTradeStatus(params["trade_status"]),
		PaidAt:                parseGatewayTime(alipayTimeLayout, params["gmt_payment"]),
		Raw:                   params,
	}, nil
}

// ParseQueryResult translates an alipay.trade.query response to canonical shape
func (c *AlipayClient) ParseQueryResult(raw map[string]string) (*PaymentCallbackData, error) {
	if raw["code"] != alipaySuccessCode {
		// ACQ.TRADE_NOT_EXIST until the payer opens the cashier
		return &PaymentCallbackData{OrderNo: raw["out_trade_no"], Status: CallbackStatusPending, Raw: raw}, nil
	}
	data, err := c.ParseNotification(raw)
	if err != nil {
		return nil, err
	}
	data.PaidAt = parseGatewayTime(alipayTimeLayout, raw["send_pay_date"])
	return data, nil
}

// NotificationAck is the literal body the gateway expects
func (c *AlipayClient) NotificationAck(success bool) (string, []byte) {
	if success {
		return "text/plain; charset=utf-8", []byte("success")
	}
	return "text/plain; charset=utf-8", []byte("failure")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
