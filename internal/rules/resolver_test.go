package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewhq/renewd/internal/config"
	"github.com/renewhq/renewd/internal/models"
)

func threeRules() []models.RetryRule {
	return []models.RetryRule{
		{RetryAfter: 1 * time.Hour, OrderStatus: models.OrderPending, SubscriptionStatus: models.SubscriptionOnHold},
		{RetryAfter: 12 * time.Hour, OrderStatus: models.OrderPending, SubscriptionStatus: models.SubscriptionOnHold, EmailCustomer: "customer_payment_retry"},
		{RetryAfter: 72 * time.Hour, OrderStatus: models.OrderOnHold, SubscriptionStatus: models.SubscriptionOnHold, EmailCustomer: "customer_payment_retry", EmailAdmin: "admin_payment_retry"},
	}
}

func TestResolverResolve(t *testing.T) {
	resolver, err := NewResolver(NewTableSource(threeRules()), true)
	require.NoError(t, err)

	t.Run("exact index", func(t *testing.T) {
		rule, ok := resolver.Resolve(0)
		require.True(t, ok)
		assert.Equal(t, 1*time.Hour, rule.RetryAfter)

		rule, ok = resolver.Resolve(1)
		require.True(t, ok)
		assert.Equal(t, 12*time.Hour, rule.RetryAfter)
	})

	t.Run("last configured rule", func(t *testing.T) {
		rule, ok := resolver.Resolve(2)
		require.True(t, ok)
		assert.Equal(t, 72*time.Hour, rule.RetryAfter)
		assert.Equal(t, "admin_payment_retry", rule.EmailAdmin)
	})

	t.Run("stops at table boundary", func(t *testing.T) {
		_, ok := resolver.Resolve(3)
		assert.False(t, ok)

		_, ok = resolver.Resolve(100)
		assert.False(t, ok)
	})

	t.Run("negative count", func(t *testing.T) {
		_, ok := resolver.Resolve(-1)
		assert.False(t, ok)
	})

	t.Run("deterministic", func(t *testing.T) {
		first, ok := resolver.Resolve(1)
		require.True(t, ok)
		for i := 0; i < 10; i++ {
			rule, ok := resolver.Resolve(1)
			require.True(t, ok)
			assert.Equal(t, first, rule)
		}
	})
}

func TestResolverDisabled(t *testing.T) {
	resolver, err := NewResolver(NewTableSource(threeRules()), false)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, ok := resolver.Resolve(i)
		assert.False(t, ok, "disabled resolver must never return a rule")
	}
}

func TestResolverEmptyTable(t *testing.T) {
	_, err := NewResolver(NewTableSource(nil), true)
	assert.ErrorIs(t, err, ErrNoRules)

	// Disabled retries tolerate an empty table.
	resolver, err := NewResolver(NewTableSource(nil), false)
	require.NoError(t, err)
	_, ok := resolver.Resolve(0)
	assert.False(t, ok)
}

// customSource proves the resolver only depends on the Source contract.
type customSource struct {
	rule models.RetryRule
}

func (s customSource) Rules() []models.RetryRule {
	return []models.RetryRule{s.rule}
}

func TestResolverCustomSource(t *testing.T) {
	want := models.RetryRule{RetryAfter: 5 * time.Minute, OrderStatus: models.OrderFailed, SubscriptionStatus: models.SubscriptionPendingCancel}
	resolver, err := NewResolver(customSource{rule: want}, true)
	require.NoError(t, err)

	rule, ok := resolver.Resolve(0)
	require.True(t, ok)
	assert.Equal(t, want, rule)

	_, ok = resolver.Resolve(1)
	assert.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	t.Run("empty list yields defaults", func(t *testing.T) {
		table, err := FromConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), table)
		assert.Len(t, table, 5)
	})

	t.Run("valid rules", func(t *testing.T) {
		table, err := FromConfig([]config.RuleConfig{
			{After: time.Hour, OrderStatus: "pending", SubscriptionStatus: "on-hold", EmailAdmin: "admin_payment_retry"},
		})
		require.NoError(t, err)
		require.Len(t, table, 1)
		assert.Equal(t, models.OrderPending, table[0].OrderStatus)
	})

	t.Run("rejects bad order status", func(t *testing.T) {
		_, err := FromConfig([]config.RuleConfig{
			{After: time.Hour, OrderStatus: "paused", SubscriptionStatus: "on-hold"},
		})
		assert.Error(t, err)
	})

	t.Run("rejects non-positive delay", func(t *testing.T) {
		_, err := FromConfig([]config.RuleConfig{
			{After: 0, OrderStatus: "pending", SubscriptionStatus: "on-hold"},
		})
		assert.Error(t, err)
	})
}
