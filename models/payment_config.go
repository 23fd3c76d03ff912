package models

import (
	"time"
)

// PaymentConfig is one credential entry for a gateway
type PaymentConfig struct {
	ID            uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null;uniqueIndex:uk_payment_configs_method_key" json:"payment_method"`
	ConfigKey     string        `gorm:"type:varchar(64);not null;uniqueIndex:uk_payment_configs_method_key" json:"config_key"`
	ConfigValue   string        `gorm:"type:text;not null" json:"config_value"`
	IsEncrypted   bool          `gorm:"not null;default:false" json:"is_encrypted"`
	Description   *string       `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PaymentConfig) TableName() string {
	return "payment_configs"
}
