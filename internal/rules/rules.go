// Package rules owns the retry rule table: the ordered list of rules that
// decide, per consecutive failure count, when the next payment retry fires
// and what it looks like.
package rules

import (
	"fmt"
	"time"

	"github.com/renewhq/renewd/internal/config"
	"github.com/renewhq/renewd/internal/models"
)

// Source supplies the ordered rule table. Deployments can plug in their own
// implementation; the resolver and manager only ever see this interface.
type Source interface {
	Rules() []models.RetryRule
}

// TableSource is a static Source over a fixed slice of rules.
type TableSource struct {
	rules []models.RetryRule
}

func NewTableSource(rules []models.RetryRule) *TableSource {
	return &TableSource{rules: rules}
}

func (s *TableSource) Rules() []models.RetryRule {
	return s.rules
}

// Default is the built-in rule table, used when the config declares no rules.
// Five retries over roughly a week, holding the order in pending and the
// subscription on hold, with the admin notified on every attempt and the
// customer from the second attempt on.
func Default() []models.RetryRule {
	return []models.RetryRule{
		{
			RetryAfter:         12 * time.Hour,
			OrderStatus:        models.OrderPending,
			SubscriptionStatus: models.SubscriptionOnHold,
			EmailAdmin:         "admin_payment_retry",
		},
		{
			RetryAfter:         12 * time.Hour,
			OrderStatus:        models.OrderPending,
			SubscriptionStatus: models.SubscriptionOnHold,
			EmailCustomer:      "customer_payment_retry",
			EmailAdmin:         "admin_payment_retry",
		},
		{
			RetryAfter:         24 * time.Hour,
			OrderStatus:        models.OrderPending,
			SubscriptionStatus: models.SubscriptionOnHold,
			EmailAdmin:         "admin_payment_retry",
		},
		{
			RetryAfter:         48 * time.Hour,
			OrderStatus:        models.OrderPending,
			SubscriptionStatus: models.SubscriptionOnHold,
			EmailCustomer:      "customer_payment_retry",
			EmailAdmin:         "admin_payment_retry",
		},
		{
			RetryAfter:         72 * time.Hour,
			OrderStatus:        models.OrderPending,
			SubscriptionStatus: models.SubscriptionOnHold,
			EmailCustomer:      "customer_payment_retry",
			EmailAdmin:         "admin_payment_retry",
		},
	}
}

// FromConfig validates and converts the configured rule list. An empty list
// yields the built-in default table.
func FromConfig(cfgs []config.RuleConfig) ([]models.RetryRule, error) {
	if len(cfgs) == 0 {
		return Default(), nil
	}

	rules := make([]models.RetryRule, 0, len(cfgs))
	for i, rc := range cfgs {
		if rc.After <= 0 {
			return nil, fmt.Errorf("rule %d: \"after\" must be a positive duration, got %s", i, rc.After)
		}
		if !models.ValidOrderStatus(rc.OrderStatus) {
			return nil, fmt.Errorf("rule %d: unknown order status %q", i, rc.OrderStatus)
		}
		if !models.ValidSubscriptionStatus(rc.SubscriptionStatus) {
			return nil, fmt.Errorf("rule %d: unknown subscription status %q", i, rc.SubscriptionStatus)
		}
		rules = append(rules, models.RetryRule{
			RetryAfter:         rc.After,
			OrderStatus:        models.OrderStatus(rc.OrderStatus),
			SubscriptionStatus: models.SubscriptionStatus(rc.SubscriptionStatus),
			EmailCustomer:      rc.EmailCustomer,
			EmailAdmin:         rc.EmailAdmin,
		})
	}
	return rules, nil
}
