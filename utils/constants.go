package utils

import (
	"time"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// RequestIDKey is the context key carrying the inbound request id
const RequestIDKey = "X-Request-ID"

// Payment constants
const (
	// DefaultCurrency is the only currency orders are priced in
	DefaultCurrency = "CNY"

	// DefaultOrderTTL is how long a pending order may be paid for
	DefaultOrderTTL = 2 * time.Hour

	// Serial number prefixes
	OrderNumberPrefix       = "ORD"
	TransactionNumberPrefix = "TXN"
	RefundNumberPrefix      = "RFD"
)

// Pagination defaults
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)
