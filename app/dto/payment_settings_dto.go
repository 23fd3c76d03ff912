package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceConfigResponse struct {
	ServiceType    string           `json:"service_type"`
	Price          decimal.Decimal  `json:"price" swaggertype:"string"`
	DiscountPrice  *decimal.Decimal `json:"discount_price,omitempty" swaggertype:"string"`
	EffectivePrice decimal.Decimal  `json:"effective_price" swaggertype:"string"`
	EffectiveDate  *string          `json:"effective_date,omitempty"`
	ExpiryDate     *string          `json:"expiry_date,omitempty"`
	Description    *string          `json:"description,omitempty"`
}

type ListPriceConfigsResponse struct {
	Items []PriceConfigResponse `json:"items"`
}

// GatewayConfigEntry is one credential key of a gateway. Encrypted values are masked on read.
type GatewayConfigEntry struct {
	ConfigKey   string    `json:"config_key"`
	ConfigValue string    `json:"config_value"`
	IsEncrypted bool      `json:"is_encrypted"`
	Description *string   `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type GatewayConfigResponse struct {
	PaymentMethod string               `json:"payment_method"`
	Entries       []GatewayConfigEntry `json:"entries"`
}

type UpdateGatewayConfigEntry struct {
	ConfigKey   string  `json:"config_key" validate:"required,max=64"`
	ConfigValue string  `json:"config_value" validate:"required,max=8192"`
	Encrypt     bool    `json:"encrypt"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// UpdateGatewayConfigRequest upserts credential keys of one gateway
type UpdateGatewayConfigRequest struct {
	Entries []UpdateGatewayConfigEntry `json:"entries" validate:"required,min=1,max=32,dive"`
}

// ExportPaymentOrdersRequest filters the admin workbook export
type ExportPaymentOrdersRequest struct {
	UserID    *string `query:"user_id" json:"user_id,omitempty" validate:"omitempty,uuid"`
	Status    *string `query:"status" json:"status,omitempty" validate:"omitempty,oneof=pending paid cancelled refunded partial_refunded"`
	OrderType *string `query:"order_type" json:"order_type,omitempty" validate:"omitempty,oneof=consultation prescription medicine other"`
	StartDate *string `query:"start_date" json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `query:"end_date" json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
