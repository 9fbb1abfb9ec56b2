package model

import (
	"fmt"
	"time"
)

// OrderStatus lifecycle state of an order, stored lower-snake-case
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCanceled       OrderStatus = "canceled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// orderTransitions is the complete set of legal status changes.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCanceled},
	OrderStatusPaid:           {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:        {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:      nil,
	OrderStatusCanceled:       nil,
	OrderStatusRefunded:       nil,
}

// AllOrderStatuses lists every status in lifecycle order
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPendingPayment,
		OrderStatusPaid,
		OrderStatusShipped,
		OrderStatusCompleted,
		OrderStatusCanceled,
		OrderStatusRefunded,
	}
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is in the transition table
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order a purchase of one post. All amounts are cents and are fixed at creation.
type Order struct {
	ID                   uint64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OrderNo              string      `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_no"`
	BuyerID              uint64      `gorm:"type:bigint unsigned;not null;index:idx_orders_buyer_status,priority:1" json:"buyer_id"`
	SellerID             uint64      `gorm:"type:bigint unsigned;not null;index:idx_orders_seller_status,priority:1" json:"seller_id"`
	PostID               uint64      `gorm:"type:bigint unsigned;not null;index" json:"post_id"`
	PostTitle            string      `gorm:"type:varchar(200);not null" json:"post_title"`
	BaseAmount           int64       `gorm:"type:bigint;not null" json:"base_amount"`
	DeliveryFee          int64       `gorm:"type:bigint;not null;default:0" json:"delivery_fee"`
	ServiceFee           int64       `gorm:"type:bigint;not null" json:"service_fee"`
	Tax                  int64       `gorm:"type:bigint;not null" json:"tax"`
	Total                int64       `gorm:"type:bigint;not null" json:"total"`
	PaymentMethod        string      `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentTransactionID *string     `gorm:"type:varchar(64)" json:"payment_transaction_id,omitempty"`
	Status               OrderStatus `gorm:"type:varchar(20);not null;default:'pending_payment';index:idx_orders_buyer_status,priority:2;index:idx_orders_seller_status,priority:2" json:"status"`
	ShippingAddress      string      `gorm:"type:varchar(255)" json:"shipping_address"`
	ShippingReceiver     string      `gorm:"type:varchar(50)" json:"shipping_receiver"`
	ShippingPhone        string      `gorm:"type:varchar(20)" json:"shipping_phone"`
	PaidAt               *time.Time  `gorm:"type:timestamp" json:"paid_at,omitempty"`
	ShippedAt            *time.Time  `gorm:"type:timestamp" json:"shipped_at,omitempty"`
	CompletedAt          *time.Time  `gorm:"type:timestamp" json:"completed_at,omitempty"`
	CanceledAt           *time.Time  `gorm:"type:timestamp" json:"canceled_at,omitempty"`
	RefundedAt           *time.Time  `gorm:"type:timestamp" json:"refunded_at,omitempty"`
	CreatedAt            time.Time   `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt            time.Time   `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// PaymentMethod payment method const
const (
	PaymentMethodCard   = "card"
	PaymentMethodWallet = "wallet"
	PaymentMethodBank   = "bank"
)

// IsValidPaymentMethod reports whether m is accepted at checkout
func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodWallet, PaymentMethodBank:
		return true
	}
	return false
}

// IsParty reports whether userID is the buyer or the seller
func (o *Order) IsParty(userID uint64) bool {
	return o.BuyerID == userID || o.SellerID == userID
}

// TimestampColumn returns the column stamped when an order enters status s
func TimestampColumn(s OrderStatus) string {
	switch s {
	case OrderStatusPaid:
		return "paid_at"
	case OrderStatusShipped:
		return "shipped_at"
	case OrderStatusCompleted:
		return "completed_at"
	case OrderStatusCanceled:
		return "canceled_at"
	case OrderStatusRefunded:
		return "refunded_at"
	}
	return ""
}

// Amount bounds. With amounts up to MaxAmount and rates up to MaxRateBP
// every fee product stays far inside int64.
const (
	MaxAmount int64 = 1_000_000_000_000
	MaxRateBP int64 = 10_000
)

// Fees is the price breakdown snapshotted onto an order
type Fees struct {
	Base     int64
	Delivery int64
	Service  int64
	Tax      int64
	Total    int64
}

// ComputeFees applies basis-point rates to base, rounding half up to the cent.
// Inputs outside [0, MaxAmount] or rates outside [0, MaxRateBP] are rejected.
func ComputeFees(base, delivery, serviceFeeBP, taxBP int64) (Fees, error) {
	switch {
	case base < 0 || base > MaxAmount:
		return Fees{}, fmt.Errorf("base amount %d out of range", base)
	case delivery < 0 || delivery > MaxAmount:
		return Fees{}, fmt.Errorf("delivery fee %d out of range", delivery)
	case serviceFeeBP < 0 || serviceFeeBP > MaxRateBP, taxBP < 0 || taxBP > MaxRateBP:
		return Fees{}, fmt.Errorf("fee rate out of range")
	}

	service := percentOf(base, serviceFeeBP)
	tax := percentOf(base, taxBP)
	return Fees{
		Base:     base,
		Delivery: delivery,
		Service:  service,
		Tax:      tax,
		Total:    base + delivery + service + tax,
	}, nil
}

func percentOf(amount, bp int64) int64 {
	return (amount*bp + 5000) / 10000
}
