package models

import (
	"encoding/json"
	"time"
)

// RetryRule describes what happens after the Nth consecutive renewal payment
// failure: how long to wait before charging again, which statuses the order
// and subscription carry while the retry is pending, and which email
// templates (if any) replace the platform's default failure mail. A rule is
// identified by its position in the rule table; index 0 applies after the
// first failure.
type RetryRule struct {
	RetryAfter         time.Duration
	OrderStatus        OrderStatus
	SubscriptionStatus SubscriptionStatus
	EmailCustomer      string
	EmailAdmin         string
}

type ruleJSON struct {
	RetryAfterSecs     int64  `json:"retry_after_secs"`
	OrderStatus        string `json:"order_status"`
	SubscriptionStatus string `json:"subscription_status"`
	EmailCustomer      string `json:"email_customer,omitempty"`
	EmailAdmin         string `json:"email_admin,omitempty"`
}

// MarshalJSON serializes the delay as whole seconds so rule snapshots stored
// alongside retry records stay readable and stable across Go versions.
func (r RetryRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleJSON{
		RetryAfterSecs:     int64(r.RetryAfter / time.Second),
		OrderStatus:        string(r.OrderStatus),
		SubscriptionStatus: string(r.SubscriptionStatus),
		EmailCustomer:      r.EmailCustomer,
		EmailAdmin:         r.EmailAdmin,
	})
}

func (r *RetryRule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.RetryAfter = time.Duration(raw.RetryAfterSecs) * time.Second
	r.OrderStatus = OrderStatus(raw.OrderStatus)
	r.SubscriptionStatus = SubscriptionStatus(raw.SubscriptionStatus)
	r.EmailCustomer = raw.EmailCustomer
	r.EmailAdmin = raw.EmailAdmin
	return nil
}
