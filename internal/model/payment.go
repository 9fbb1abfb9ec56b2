package model

import (
	"time"
)

// PaymentIntentStatus provider-side state of a payment attempt
type PaymentIntentStatus string

const (
	IntentStatusRequiresPayment PaymentIntentStatus = "requires_payment"
	IntentStatusSucceeded       PaymentIntentStatus = "succeeded"
	IntentStatusCanceled        PaymentIntentStatus = "canceled"
)

// PaymentIntent a request to collect an order total through a provider
type PaymentIntent struct {
	ID                    uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	IntentNo              string              `gorm:"type:varchar(32);uniqueIndex;not null" json:"intent_no"`
	OrderID               uint64              `gorm:"type:bigint unsigned;not null;index" json:"order_id"`
	BuyerID               uint64              `gorm:"type:bigint unsigned;not null;index" json:"buyer_id"`
	Amount                int64               `gorm:"type:bigint;not null" json:"amount"`
	Currency              string              `gorm:"type:varchar(3);not null" json:"currency"`
	Provider              string              `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderRef           string              `gorm:"type:varchar(64);not null" json:"provider_ref"`
	ClientSecret          string              `gorm:"type:varchar(128);not null" json:"client_secret"`
	ProviderTransactionID *string             `gorm:"type:varchar(64)" json:"provider_transaction_id,omitempty"`
	Status                PaymentIntentStatus `gorm:"type:varchar(20);not null;default:'requires_payment';index" json:"status"`
	SucceededAt           *time.Time          `gorm:"type:timestamp" json:"succeeded_at,omitempty"`
	CreatedAt             time.Time           `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// IsOpen reports whether the intent still awaits payment
func (p *PaymentIntent) IsOpen() bool {
	return p.Status == IntentStatusRequiresPayment
}
