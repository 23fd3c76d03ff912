package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentOrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_orders_created_total",
			Help: "Payment orders created",
		},
		[]string{"order_type"},
	)

	paymentInitiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Payment initiations by method and result",
		},
		[]string{"method", "result"},
	)

	paymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway notifications by method and result",
		},
		[]string{"method", "result"},
	)

	refundsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Refund reviews by result",
		},
		[]string{"result"},
	)

	ledgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_ledger_mutations_total",
			Help: "Wallet mutations by type",
		},
		[]string{"type"},
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Outbound gateway request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"gateway", "operation", "result"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordOrderCreated counts a new order
func RecordOrderCreated(orderType string) {
	paymentOrdersCreated.WithLabelValues(orderType).Inc()
}

// RecordPaymentInitiation counts an initiate attempt
func RecordPaymentInitiation(method string, err error) {
	paymentInitiations.WithLabelValues(method, outcome(err)).Inc()
}

// RecordCallback counts a processed gateway notification
func RecordCallback(method, result string) {
	paymentCallbacks.WithLabelValues(method, result).Inc()
}

// RecordRefund counts a refund review outcome
func RecordRefund(result string) {
	refundsSettled.WithLabelValues(result).Inc()
}

// RecordLedgerMutation counts a committed wallet mutation
func RecordLedgerMutation(kind string) {
	ledgerMutations.WithLabelValues(kind).Inc()
}

func observeGatewayRequest(gateway, operation string, start time.Time, err error) {
	gatewayRequestDuration.WithLabelValues(gateway, operation, outcome(err)).Observe(time.Since(start).Seconds())
}
