package models

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderOnHold     OrderStatus = "on-hold"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
	OrderFailed     OrderStatus = "failed"
)

// RetryEligible reports whether an order in this status may still have its
// payment retried. Anything else means the order was resolved some other way
// (paid manually, cancelled, refunded) between scheduling and firing.
func (s OrderStatus) RetryEligible() bool {
	switch s {
	case OrderPending, OrderOnHold, OrderFailed:
		return true
	}
	return false
}

func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderPending, OrderOnHold, OrderProcessing, OrderCompleted, OrderCancelled, OrderRefunded, OrderFailed:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive        SubscriptionStatus = "active"
	SubscriptionOnHold        SubscriptionStatus = "on-hold"
	SubscriptionPendingCancel SubscriptionStatus = "pending-cancel"
	SubscriptionCancelled     SubscriptionStatus = "cancelled"
	SubscriptionExpired       SubscriptionStatus = "expired"
)

func ValidSubscriptionStatus(s string) bool {
	switch SubscriptionStatus(s) {
	case SubscriptionActive, SubscriptionOnHold, SubscriptionPendingCancel, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

// Order is a renewal order together with the subscription it pays for.
// renewd only ever writes the two status fields; everything else belongs to
// the billing platform.
type Order struct {
	ID                 string             `json:"id"`
	SubscriptionID     string             `json:"subscription_id"`
	CustomerEmail      string             `json:"customer_email"`
	AmountCents        int64              `json:"amount_cents"`
	Currency           string             `json:"currency"`
	Status             OrderStatus        `json:"status"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
