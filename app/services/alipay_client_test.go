package services

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alipayFixture struct {
	creds        GatewayCredentials
	merchantPub  *rsa.PublicKey
	platformPriv *rsa.PrivateKey
}

func newAlipayFixture(t *testing.T) alipayFixture {
	t.Helper()
	_, merchantPriv, merchantPubPEM := newTestKeyPair(t)
	platformKey, _, platformPub := newTestKeyPair(t)

	merchantPub, err := ParseRSAPublicKey(merchantPubPEM)
	require.NoError(t, err)

	return alipayFixture{
		creds: GatewayCredentials{
			"app_id":            "2021000000000001",
			"private_key":       merchantPriv,
			"alipay_public_key": platformPub,
			"sign_type":         "RSA2",
			"notify_url":        "https://pay.example.com/api/v1/payments/callback/alipay",
			"gateway_url":       AlipaySandboxGateway,
		},
		merchantPub:  merchantPub,
		platformPriv: platformKey,
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
}

func TestAlipayCreateOrder_PageRedirect(t *testing.T) {
	fx := newAlipayFixture(t)
	client := NewAlipayClient(time.Second, nil)
	client.Now = fixedNow

	result, err := client.CreateOrder(context.Background(), fx.creds, &GatewayOrderRequest{
		OrderNo:   "ORD202503011630001234",
		Amount:    decimal.RequireFromString("199.5"),
		Subject:   "TCM-consultation",
		TradeType: TradeTypePage,
		ReturnURL: "https://app.example.com/paid",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, strings.HasPrefix(result.PaymentURL, AlipaySandboxGateway+"?"))

	u, err := url.Parse(result.PaymentURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "alipay.trade.page.pay", q.Get("method"))
	assert.Equal(t, "2025-03-01 16:30:00", q.Get("timestamp"), "timestamps are stamped in UTC+8")
	assert.Equal(t, "https://app.example.com/paid", q.Get("return_url"))
	assert.Contains(t, q.Get("biz_content"), `"total_amount":"199.50"`)
	assert.Contains(t, q.Get("biz_content"), `"product_code":"FAST_INSTANT_TRADE_PAY"`)

	params := map[string]string{}
	for k := range q {
		params[k] = q.Get(k)
	}
	assert.True(t, VerifyRSA2(BuildSignContent(params, "sign"), params["sign"], fx.merchantPub))
}

func TestAlipayCreateOrder_AppOrderString(t *testing.T) {
	fx := newAlipayFixture(t)
	client := NewAlipayClient(time.Second, nil)

	result, err := client.CreateOrder(context.Background(), fx.creds, &GatewayOrderRequest{
		OrderNo:   "ORD1",
		Amount:    decimal.RequireFromString("10"),
		Subject:   "TCM-medicine",
		TradeType: TradeTypeApp,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.PaymentURL)
	assert.Contains(t, result.ClientParams["order_string"], "method=alipay.trade.app.pay")
}

func TestAlipayCreateOrder_Precreate(t *testing.T) {
	fx := newAlipayFixture(t)

	node := `{"code":"10000","msg":"Success","out_trade_no":"ORD1","qr_code":"https://qr.alipay.com/bax01"}`
	sig, err := SignRSA2(node, fx.platformPriv)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		params := map[string]string{}
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		assert.Equal(t, "alipay.trade.precreate", params["method"])
		assert.True(t, VerifyRSA2(BuildSignContent(params, "sign"), params["sign"], fx.merchantPub))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alipay_trade_precreate_response":` + node + `,"sign":"` + sig + `"}`))
	}))
	defer server.Close()

	creds := fx.creds.Merge(map[string]string{"gateway_url": server.URL})
	client := NewAlipayClient(time.Second, nil)

	result, err := client.CreateOrder(context.Background(), creds, &GatewayOrderRequest{
		OrderNo:   "ORD1",
		Amount:    decimal.RequireFromString("88.00"),
		Subject:   "TCM-consultation",
		TradeType: TradeTypeNative,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "https://qr.alipay.com/bax01", result.QRCode)
	assert.Equal(t, "10000", result.ResponseData["code"])
}

func TestAlipayCreateOrder_PrecreateTamperedResponse(t *testing.T) {
	fx := newAlipayFixture(t)

	sig, err := SignRSA2(`{"code":"10000","qr_code":"https://qr.alipay.com/real"}`, fx.platformPriv)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alipay_trade_precreate_response":{"code":"10000","qr_code":"https://evil"},"sign":"` + sig + `"}`))
	}))
	defer server.Close()

	client := NewAlipayClient(time.Second, nil)
	_, err = client.CreateOrder(context.Background(), fx.creds.Merge(map[string]string{"gateway_url": server.URL}), &GatewayOrderRequest{
		OrderNo:   "ORD1",
		Amount:    decimal.RequireFromString("1"),
		TradeType: TradeTypeNative,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayRejected)
}

func TestAlipayCreateOrder_BusinessFailure(t *testing.T) {
	fx := newAlipayFixture(t)
	fx.creds["alipay_public_key"] = ""

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alipay_trade_precreate_response":{"code":"40004","msg":"Business Failed","sub_code":"ACQ.TRADE_HAS_CLOSE","sub_msg":"closed"}}`))
	}))
	defer server.Close()

	client := NewAlipayClient(time.Second, nil)
	result, err := client.CreateOrder(context.Background(), fx.creds.Merge(map[string]string{"gateway_url": server.URL}), &GatewayOrderRequest{
		OrderNo:   "ORD1",
		Amount:    decimal.RequireFromString("1"),
		TradeType: TradeTypeNative,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "ACQ.TRADE_HAS_CLOSE", result.Code)
	assert.Equal(t, "closed", result.Message)
}

func TestAlipayCreateOrder_Misconfigured(t *testing.T) {
	client := NewAlipayClient(time.Second, nil)

	_, err := client.CreateOrder(context.Background(), GatewayCredentials{"app_id": "1"}, &GatewayOrderRequest{OrderNo: "ORD1"})
	assert.ErrorIs(t, err, ErrGatewayMisconfigured)

	_, err = client.CreateOrder(context.Background(), GatewayCredentials{"app_id": "1", "sign_type": "SM2"}, &GatewayOrderRequest{OrderNo: "ORD1"})
	assert.ErrorIs(t, err, ErrGatewayMisconfigured)
}

func signedAlipayNotification(t *testing.T, key *rsa.PrivateKey) map[string]string {
	t.Helper()
	params := map[string]string{
		"notify_id":    "n-1",
		"out_trade_no": "ORD1",
		"trade_no":     "2025030122001",
		"total_amount": "88.00",
		"trade_status": "TRADE_SUCCESS",
		"gmt_payment":  "2025-03-01 16:31:02",
		"sign_type":    "RSA2",
	}
	sig, err := SignRSA2(BuildSignContent(params, "sign", "sign_type"), key)
	require.NoError(t, err)
	params["sign"] = sig
	return params
}

func TestAlipayNotification_VerifyAndParse(t *testing.T) {
	fx := newAlipayFixture(t)
	client := NewAlipayClient(time.Second, nil)
	params := signedAlipayNotification(t, fx.platformPriv)

	ok, err := client.VerifyNotification(fx.creds, params)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := client.ParseNotification(params)
	require.NoError(t, err)
	assert.Equal(t, "ORD1", data.OrderNo)
	assert.Equal(t, "2025030122001", data.ExternalTransactionID)
	assert.True(t, data.Amount.Equal(decimal.RequireFromString("88")))
	assert.Equal(t, CallbackStatusSuccess, data.Status)
	require.NotNil(t, data.PaidAt)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 31, 2, 0, time.UTC), *data.PaidAt)

	params["total_amount"] = "0.01"
	ok, err = client.VerifyNotification(fx.creds, params)
	require.NoError(t, err)
	assert.False(t, ok, "tampered amount must fail")

	delete(params, "sign")
	ok, err = client.VerifyNotification(fx.creds, params)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlipayNotification_MD5(t *testing.T) {
	client := NewAlipayClient(time.Second, nil)
	creds := GatewayCredentials{"md5_key": "secret", "sign_type": "MD5"}

	params := map[string]string{"out_trade_no": "ORD1", "total_amount": "1.00", "trade_status": "WAIT_BUYER_PAY"}
	params["sign"] = DigestMD5(BuildSignContent(params) + "secret")

	ok, err := client.VerifyNotification(creds, params)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := client.ParseNotification(params)
	require.NoError(t, err)
	assert.Equal(t, CallbackStatusPending, data.Status)
}

func TestAlipayNotification_SignTypeIsPinned(t *testing.T) {
	fx := newAlipayFixture(t)
	client := NewAlipayClient(time.Second, nil)
	creds := GatewayCredentials{"md5_key": "secret"}
	for k, v := range fx.creds {
		creds[k] = v
	}

	params := map[string]string{
		"out_trade_no": "ORD1",
		"trade_no":     "2025030122001",
		"total_amount": "88.00",
		"trade_status": "TRADE_SUCCESS",
		"sign_type":    "MD5",
	}
	params["sign"] = DigestMD5(BuildSignContent(params, "sign", "sign_type") + "secret")

	ok, err := client.VerifyNotification(creds, params)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.False(t, ok)

	// dropping the claim falls back to RSA2, which the MD5 digest cannot satisfy
	delete(params, "sign_type")
	ok, err = client.VerifyNotification(creds, params)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlipayDecodeNotificationAndAck(t *testing.T) {
	client := NewAlipayClient(time.Second, nil)

	params, err := client.DecodeNotification([]byte("out_trade_no=ORD1&total_amount=1.00&subject=TCM%2Dconsultation"))
	require.NoError(t, err)
	assert.Equal(t, "TCM-consultation", params["subject"])

	_, err = client.DecodeNotification([]byte("a=%zz"))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, body := client.NotificationAck(true)
	assert.Equal(t, "success", string(body))
	_, body = client.NotificationAck(false)
	assert.Equal(t, "failure", string(body))
}

func TestAlipayParse_Errors(t *testing.T) {
	client := NewAlipayClient(time.Second, nil)

	_, err := client.ParseNotification(map[string]string{"total_amount": "1"})
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = client.ParseNotification(map[string]string{"out_trade_no": "ORD1", "total_amount": "abc"})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestAlipayParseQueryResult(t *testing.T) {
	client := NewAlipayClient(time.Second, nil)

	data, err := client.ParseQueryResult(map[string]string{"code": "40004", "sub_code": "ACQ.TRADE_NOT_EXIST", "out_trade_no": "ORD1"})
	require.NoError(t, err)
	assert.Equal(t, CallbackStatusPending, data.Status)

	data, err = client.ParseQueryResult(map[string]string{
		"code":          "10000",
		"out_trade_no":  "ORD1",
		"trade_no":      "T1",
		"total_amount":  "88.00",
		"trade_status":  "TRADE_CLOSED",
		"send_pay_date": "",
	})
	require.NoError(t, err)
	assert.Equal(t, CallbackStatusFailed, data.Status)
	assert.Nil(t, data.PaidAt)
}
