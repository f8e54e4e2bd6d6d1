package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStatusTransitions(t *testing.T) {
	tests := []struct {
		from    RetryStatus
		to      RetryStatus
		allowed bool
	}{
		{RetryPending, RetryProcessing, true},
		{RetryPending, RetryCancelled, true},
		{RetryPending, RetryComplete, false},
		{RetryPending, RetryFailed, false},
		{RetryProcessing, RetryComplete, true},
		{RetryProcessing, RetryFailed, true},
		{RetryProcessing, RetryCancelled, true},
		{RetryProcessing, RetryPending, false},
		{RetryComplete, RetryPending, false},
		{RetryComplete, RetryProcessing, false},
		{RetryFailed, RetryProcessing, false},
		{RetryCancelled, RetryPending, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRetryStatusTerminal(t *testing.T) {
	assert.False(t, RetryPending.Terminal())
	assert.False(t, RetryProcessing.Terminal())
	assert.True(t, RetryComplete.Terminal())
	assert.True(t, RetryFailed.Terminal())
	assert.True(t, RetryCancelled.Terminal())
}

func TestNewRetry(t *testing.T) {
	rule := RetryRule{
		RetryAfter:         2 * time.Hour,
		OrderStatus:        OrderPending,
		SubscriptionStatus: SubscriptionOnHold,
	}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	r := NewRetry("ord_1", rule, now)
	assert.Empty(t, r.ID, "store assigns the ID")
	assert.Equal(t, "ord_1", r.OrderID)
	assert.Equal(t, RetryPending, r.Status)
	assert.Equal(t, now.Add(2*time.Hour), r.ScheduledAt)
	assert.Equal(t, rule, r.Rule)
}

func TestRetryRuleSnapshotRoundTrip(t *testing.T) {
	rule := RetryRule{
		RetryAfter:         36 * time.Hour,
		OrderStatus:        OrderOnHold,
		SubscriptionStatus: SubscriptionOnHold,
		EmailCustomer:      "customer_payment_retry",
	}

	data, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"retry_after_secs":129600`)

	var got RetryRule
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rule, got)
}
