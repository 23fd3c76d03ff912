package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceConfig is one versioned price for a service type
type PriceConfig struct {
	ID            uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	ServiceType   string           `gorm:"type:varchar(32);not null;index" json:"service_type"`
	Price         decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"price"`
	DiscountPrice *decimal.Decimal `gorm:"type:numeric(12,2)" json:"discount_price,omitempty"`
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`
	EffectiveDate *time.Time       `gorm:"type:date" json:"effective_date,omitempty"`
	ExpiryDate    *time.Time       `gorm:"type:date" json:"expiry_date,omitempty"`
	Description   *string          `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PriceConfig) TableName() string {
	return "price_configs"
}

// EffectivePrice is the discount price when set, the list price otherwise
func (p *PriceConfig) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() {
		return *p.DiscountPrice
	}
	return p.Price
}

// PriceConfigFilter represents filter criteria for price queries
type PriceConfigFilter struct {
	ServiceType *string    `json:"service_type,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
	ActiveOn    *time.Time `json:"active_on,omitempty"` // window contains this date
}
