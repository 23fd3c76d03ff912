// Package models contains domain entities of the payment and settlement engine
package models

// PaymentMethod identifies the channel money moves through
type PaymentMethod string

const (
	PaymentMethodAlipay   PaymentMethod = "alipay"    // Wallet gateway A
	PaymentMethodWechat   PaymentMethod = "wechat"    // Wallet gateway B
	PaymentMethodBalance  PaymentMethod = "balance"   // Platform-held balance
	PaymentMethodBankCard PaymentMethod = "bank_card" // Accepted in data, not settled
)

// IsGateway reports whether the method is settled by a third-party gateway
func (m PaymentMethod) IsGateway() bool {
	return m == PaymentMethodAlipay || m == PaymentMethodWechat
}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodAlipay, PaymentMethodWechat, PaymentMethodBalance, PaymentMethodBankCard:
		return true
	}
	return false
}

func (m PaymentMethod) String() string {
	return string(m)
}
